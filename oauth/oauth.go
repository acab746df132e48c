// Package oauth holds the wire-level data model shared by the broker and
// telco services: the OAuth token response shape, grant types, and the
// telecom identifier used to route and cache token requests.
package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GrantType enumerates the OAuth 2.0 grant types (RFC 6749).
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantImplicit          GrantType = "implicit"
)

// Claim names embedded in minted tokens and used as routing/cache inputs.
const (
	ClaimMCC      = "mcc"
	ClaimSN       = "sn"
	ClaimAuthCode = "auth_code"
)

// Token is the OAuth-style token response returned by both services and the
// value persisted to the cache. IssuedAt and ExpiresAt are Unix seconds,
// matching the iat/exp claim convention of the signed token they describe.
type Token struct {
	AccessToken string     `json:"access_token"`
	GrantType   *GrantType `json:"grant_type,omitempty"`
	TokenType   string     `json:"token_type"`
	IssuedAt    int64      `json:"iat"`
	ExpiresAt   int64      `json:"exp"`
}

// ErrEmptyAccessToken indicates a token with no access_token value.
var ErrEmptyAccessToken = errors.New("oauth: access token cannot be empty")

// NewToken builds a Token with the default "Bearer" token type.
func NewToken(accessToken string, grant GrantType, issuedAt, expiresAt time.Time) (*Token, error) {
	if accessToken == "" {
		return nil, ErrEmptyAccessToken
	}
	return &Token{
		AccessToken: accessToken,
		GrantType:   &grant,
		TokenType:   "Bearer",
		IssuedAt:    issuedAt.Unix(),
		ExpiresAt:   expiresAt.Unix(),
	}, nil
}

// Lifetime reports exp-iat. Cache TTLs are derived from it so a cached token
// expires exactly when the token itself does.
func (t *Token) Lifetime() time.Duration {
	return time.Duration(t.ExpiresAt-t.IssuedAt) * time.Second
}

// Validate checks the invariants NewToken enforces, for tokens decoded off
// the wire or out of the cache.
func (t *Token) Validate() error {
	if t.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	return nil
}

// DecodeToken unmarshals and validates a serialized Token.
func DecodeToken(data []byte) (*Token, error) {
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("oauth: decode token: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Encode serializes the token to its JSON wire form.
func (t *Token) Encode() ([]byte, error) {
	return json.Marshal(t)
}
