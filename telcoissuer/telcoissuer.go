// Package telcoissuer implements the issuing side of the token exchange: the
// per-operator service that validates an inbound authorization code, mints a
// signed token for the subscriber, and memoizes it.
package telcoissuer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opentelco/tokenbroker/cache"
	"github.com/opentelco/tokenbroker/jwtsig"
	"github.com/opentelco/tokenbroker/oauth"
	"github.com/opentelco/tokenbroker/secrets"
)

// DefaultAuthCodeMarker is the substring an authorization code must contain
// (case-insensitively) to be accepted by this demo backend.
const DefaultAuthCodeMarker = "best_auth"

// ErrInvalidAuthCode indicates the authorization code failed the backend's
// acceptance rule. Transports surface it as 401.
var ErrInvalidAuthCode = errors.New("telcoissuer: invalid auth code")

// Service mints telco-side tokens. Construct with New; a nil cache disables
// memoization.
type Service struct {
	secrets secrets.Provider
	store   cache.Cache
	log     *slog.Logger
	marker  string

	bg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches a token cache.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.store = c }
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithAuthCodeMarker overrides the acceptance marker.
func WithAuthCodeMarker(m string) Option {
	return func(s *Service) { s.marker = m }
}

// New constructs a telco issuer over a secret provider.
func New(sp secrets.Provider, opts ...Option) *Service {
	s := &Service{
		secrets: sp,
		log:     slog.New(slog.DiscardHandler),
		marker:  DefaultAuthCodeMarker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueToken validates the authorization code, then returns a cached token
// when one exists or mints and caches a fresh one.
func (s *Service) IssueToken(ctx context.Context, id oauth.TelecomIdentifier, authCode string) (*oauth.Token, error) {
	if !s.acceptAuthCode(authCode) {
		s.log.ErrorContext(ctx, "auth code rejected", "mcc", id.MCC(), "sn", id.SN())
		return nil, ErrInvalidAuthCode
	}

	key := cache.Key(cache.KeyTelecomToken, id)
	if tok := s.cachedToken(ctx, key); tok != nil {
		s.log.InfoContext(ctx, "telco token served from cache", "mcc", id.MCC(), "sn", id.SN())
		return tok, nil
	}

	tok, err := s.mint(ctx, id, authCode)
	if err != nil {
		return nil, err
	}
	s.saveTokenAsync(ctx, key, tok)
	return tok, nil
}

// Drain blocks until background cache writes complete. For shutdown/tests.
func (s *Service) Drain() { s.bg.Wait() }

func (s *Service) acceptAuthCode(authCode string) bool {
	return strings.Contains(strings.ToLower(authCode), s.marker)
}

func (s *Service) cachedToken(ctx context.Context, key string) *oauth.Token {
	if s.store == nil {
		return nil
	}
	data, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.ErrorContext(ctx, "cache read failed, proceeding uncached", "key", key, "err", err)
		return nil
	}
	if data == nil {
		return nil
	}
	tok, err := oauth.DecodeToken(data)
	if err != nil {
		s.log.ErrorContext(ctx, "cached token undecodable, proceeding uncached", "key", key, "err", err)
		return nil
	}
	return tok
}

func (s *Service) mint(ctx context.Context, id oauth.TelecomIdentifier, authCode string) (*oauth.Token, error) {
	enc, err := s.secrets.JWTEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("telcoissuer: signing key: %w", err)
	}
	signed, err := jwtsig.Sign(map[string]any{
		oauth.ClaimMCC:      id.MCC(),
		oauth.ClaimSN:       id.SN(),
		oauth.ClaimAuthCode: authCode,
	}, enc)
	if err != nil {
		return nil, fmt.Errorf("telcoissuer: mint token: %w", err)
	}
	s.log.InfoContext(ctx, "telco token minted", "mcc", id.MCC(), "sn", id.SN())
	return oauth.NewToken(signed.Token, oauth.GrantClientCredentials, signed.IssuedAt, signed.ExpiresAt)
}

func (s *Service) saveTokenAsync(ctx context.Context, key string, tok *oauth.Token) {
	if s.store == nil {
		return
	}
	data, err := tok.Encode()
	if err != nil {
		s.log.ErrorContext(ctx, "token encode for cache failed", "key", key, "err", err)
		return
	}
	ttl := tok.Lifetime()
	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(bgCtx, 5*time.Second)
		defer cancel()
		if err := s.store.Set(ctx, key, data, ttl); err != nil {
			s.log.Error("cache write failed", "key", key, "err", err)
			return
		}
		s.log.Info("token saved to cache", "key", key, "ttl", ttl)
	}()
}
