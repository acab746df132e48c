// Package broker implements the broker-side token pipeline: resolve the
// telco backend for a telecom identifier, fetch the backend's token with the
// backend's own client credentials, then mint a broker token wrapping the
// exchange. Issued tokens are memoized in an optional cache with TTLs equal
// to the token lifetime.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/opentelco/tokenbroker/cache"
	"github.com/opentelco/tokenbroker/directory"
	"github.com/opentelco/tokenbroker/jwtsig"
	"github.com/opentelco/tokenbroker/oauth"
	"github.com/opentelco/tokenbroker/secrets"
)

// DefaultBackendTimeout bounds the outbound call to a telco backend.
const DefaultBackendTimeout = 30 * time.Second

// defaultTokenPath is where telco backends expose their token endpoint,
// relative to the backend's base URL.
const defaultTokenPath = "/api/demo/token"

// maxUpstreamBody caps how much of a backend response is read back.
const maxUpstreamBody = 1 << 20

var (
	// ErrRouteNotFound indicates the directory has no backend for the
	// identifier. Transports surface it as a client error.
	ErrRouteNotFound = errors.New("broker: destination telco data not found")

	// ErrBackendUnavailable indicates the telco backend could not be reached
	// or did not answer within the timeout.
	ErrBackendUnavailable = errors.New("broker: failed to contact telco service")
)

// UpstreamError carries a telco backend's non-2xx response through to the
// caller verbatim: the backend's status and body are passed along, not
// translated into a broker fault.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("broker: telco service error (status %d): %s", e.StatusCode, e.Body)
}

// Service runs the broker token pipeline. Construct with New; a nil cache is
// valid and simply disables memoization.
type Service struct {
	dir     directory.Resolver
	secrets secrets.Provider
	store   cache.Cache
	httpc   *http.Client
	log     *slog.Logger
	path    string

	bg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches a token cache. Absent a cache every request goes
// through the full pipeline.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.store = c }
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithHTTPClient replaces the outbound client, including its timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpc = c }
}

// WithTokenPath overrides the backend token endpoint path.
func WithTokenPath(p string) Option {
	return func(s *Service) { s.path = p }
}

// New constructs a broker Service over a directory resolver and a secret
// provider.
func New(dir directory.Resolver, sp secrets.Provider, opts ...Option) *Service {
	s := &Service{
		dir:     dir,
		secrets: sp,
		httpc:   &http.Client{Timeout: DefaultBackendTimeout},
		log:     slog.New(slog.DiscardHandler),
		path:    defaultTokenPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueToken runs the pipeline for one request: cache lookup, directory
// resolve, remote fetch, local mint. A broker-scoped cache hit short-circuits
// everything after it.
func (s *Service) IssueToken(ctx context.Context, id oauth.TelecomIdentifier, authCode string) (*oauth.Token, error) {
	brokerKey := cache.Key(cache.KeyBrokerToken, id)
	if tok := s.cachedToken(ctx, brokerKey); tok != nil {
		s.log.InfoContext(ctx, "broker token served from cache", "mcc", id.MCC(), "sn", id.SN())
		return tok, nil
	}

	rec, err := s.dir.Resolve(id.MCC(), id.SN())
	if err != nil {
		if errors.Is(err, directory.ErrNoRoute) {
			return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
		}
		return nil, fmt.Errorf("broker: directory resolve: %w", err)
	}

	telcoToken, err := s.fetchTelcoToken(ctx, id, rec, authCode)
	if err != nil {
		return nil, err
	}
	s.saveTokenAsync(ctx, cache.Key(cache.KeyTelecomToken, id), telcoToken)

	brokerToken, err := s.mintBrokerToken(ctx, id, authCode)
	if err != nil {
		return nil, err
	}
	s.saveTokenAsync(ctx, brokerKey, brokerToken)

	return brokerToken, nil
}

// Drain blocks until all in-flight background cache writes have completed.
// Intended for shutdown and tests; the response path never waits on it.
func (s *Service) Drain() { s.bg.Wait() }

// cachedToken reads a token from the cache, failing open: any read error is
// logged and treated as a miss.
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

// saveTokenAsync persists a token without blocking the response path. The
// write's failure is logged and dropped; it never surfaces to the caller.
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

// fetchTelcoToken forwards the token request to the resolved backend. The
// forwarded form embeds the backend's own client credentials as a JSON
// payload alongside the original authorization code; mcc and sn travel as
// query parameters.
func (s *Service) fetchTelcoToken(ctx context.Context, id oauth.TelecomIdentifier, rec directory.Record, authCode string) (*oauth.Token, error) {
	target, err := s.buildTargetURL(rec.BaseURL, id)
	if err != nil {
		return nil, fmt.Errorf("broker: backend url: %w", err)
	}

	telcoAuth, err := json.Marshal(secrets.ClientCredentials{
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: encode telco auth: %w", err)
	}
	form := url.Values{
		"telco_auth": {string(telcoAuth)},
		"auth_code":  {authCode},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("broker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	s.log.InfoContext(ctx, "forwarding token request", "target", target)
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	tok, err := oauth.DecodeToken(body)
	if err != nil {
		return nil, fmt.Errorf("broker: invalid token payload from backend: %w", err)
	}
	return tok, nil
}

func (s *Service) buildTargetURL(baseURL string, id oauth.TelecomIdentifier) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + s.path)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mcc", id.MCC())
	q.Set("sn", id.SN())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// mintBrokerToken signs the broker's own wrapping token, embedding the
// telecom identifier and the original authorization code as claims.
func (s *Service) mintBrokerToken(ctx context.Context, id oauth.TelecomIdentifier, authCode string) (*oauth.Token, error) {
	enc, err := s.secrets.JWTEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("broker: signing key: %w", err)
	}
	signed, err := jwtsig.Sign(map[string]any{
		oauth.ClaimMCC:      id.MCC(),
		oauth.ClaimSN:       id.SN(),
		oauth.ClaimAuthCode: authCode,
	}, enc)
	if err != nil {
		return nil, fmt.Errorf("broker: mint token: %w", err)
	}
	s.log.InfoContext(ctx, "broker token minted", "mcc", id.MCC(), "sn", id.SN())
	return oauth.NewToken(signed.Token, oauth.GrantClientCredentials, signed.IssuedAt, signed.ExpiresAt)
}
