// Package verify validates broker-minted access tokens from the consuming
// side, fetching the signing keys from the issuer's published JWKS endpoint.
// It is the client-facing counterpart of jwtsig, which only sees local key
// material.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/opentelco/tokenbroker/oauth"
)

// ErrUnauthorized indicates the token failed signature, expiry or claim
// checks. Wrapped errors carry the detail.
var ErrUnauthorized = errors.New("verify: token rejected")

// Identity is the subscriber a verified token was issued for.
type Identity struct {
	MCC      string
	SN       string
	AuthCode string
	Claims   jwt.MapClaims
}

// Verifier checks tokens against a remote JWKS document. Key refresh is
// handled by keyfunc in the background for the lifetime of the context
// passed to New.
type Verifier struct {
	kf          keyfunc.Keyfunc
	allowedAlgs []string
	leeway      time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithAllowedAlgs restricts acceptable signing algorithms. Default RS256.
func WithAllowedAlgs(algs ...string) Option {
	return func(v *Verifier) { v.allowedAlgs = algs }
}

// WithLeeway sets the clock-skew tolerance for expiry checks. Default 60s.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

// New fetches the JWKS at jwksURL and returns a Verifier bound to it. The
// context governs both the initial fetch and subsequent refreshes.
func New(ctx context.Context, jwksURL string, opts ...Option) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("verify: jwks url required")
	}
	v := &Verifier{
		allowedAlgs: []string{"RS256"},
		leeway:      60 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("verify: jwks init: %w", err)
	}
	v.kf = kf
	return v, nil
}

// Verify parses and validates a token, returning the subscriber identity
// embedded in its claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	parsed, err := parser.ParseWithClaims(token, jwt.MapClaims{}, v.kf.KeyfuncCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrUnauthorized)
	}

	mcc, _ := claims[oauth.ClaimMCC].(string)
	sn, _ := claims[oauth.ClaimSN].(string)
	if mcc == "" || sn == "" {
		return nil, fmt.Errorf("%w: token missing subscriber claims", ErrUnauthorized)
	}
	authCode, _ := claims[oauth.ClaimAuthCode].(string)

	return &Identity{MCC: mcc, SN: sn, AuthCode: authCode, Claims: claims}, nil
}
