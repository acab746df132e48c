package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opentelco/tokenbroker/cache"
	"github.com/opentelco/tokenbroker/internal/wellknown"
	"github.com/opentelco/tokenbroker/secrets"
)

// DefaultAPIVersion is the path segment under /api/ that requests are
// mounted on when no version is configured.
const DefaultAPIVersion = "demo"

// JWKSPath is where the telco handler publishes its signing keys.
const JWKSPath = "/.well-known/jwks.json"

// Option configures a handler.
type Option func(*config)

type config struct {
	apiVersion string
	logger     *slog.Logger
	store      cache.Cache
}

// WithAPIVersion overrides the /api/{version} path segment.
func WithAPIVersion(v string) Option {
	return func(c *config) { c.apiVersion = v }
}

// WithLogger sets the logger used by the handler. If not provided, logs are
// discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithCache supplies the store backing the JWKS endpoint. Only meaningful
// for the telco handler; without it every JWKS request regenerates the
// document.
func WithCache(store cache.Cache) Option {
	return func(c *config) { c.store = store }
}

func buildConfig(opts []Option) config {
	cfg := config{apiVersion: DefaultAPIVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// NewBrokerHandler serves the routing side of the pipeline: POST
// /api/{version}/token resolves the caller's telco and brokers a token for
// it.
func NewBrokerHandler(issuer Issuer, opts ...Option) http.Handler {
	cfg := buildConfig(opts)
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST /api/%s/token", cfg.apiVersion), handleToken(issuer, cfg.logger))
	return withRequestLogging(cfg.logger, mux)
}

// NewTelcoHandler serves the issuing side: POST /api/{version}/token mints
// tokens directly, and GET /.well-known/jwks.json publishes the keys to
// verify them with.
func NewTelcoHandler(issuer Issuer, sp secrets.Provider, opts ...Option) http.Handler {
	cfg := buildConfig(opts)
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST /api/%s/token", cfg.apiVersion), handleToken(issuer, cfg.logger))
	mux.HandleFunc("GET "+JWKSPath, handleJWKS(sp, cfg.store, cfg.logger))
	return withRequestLogging(cfg.logger, mux)
}

// handleJWKS serves the published key set. Cache reads fail open; a
// generation failure is the only way this returns an error.
func handleJWKS(sp secrets.Provider, store cache.Cache, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if store != nil {
			doc, err := store.Get(ctx, cache.JWKSKey)
			if err != nil {
				log.ErrorContext(ctx, "jwks cache read failed, regenerating", "err", err)
			} else if doc != nil {
				w.Header().Set("Content-Type", jsonMediaType.String())
				_, _ = w.Write(doc)
				return
			}
		}

		enc, err := sp.JWTEncryptionKey()
		if err != nil {
			log.ErrorContext(ctx, "jwks generation failed: no encryption key", "err", err)
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		doc, err := wellknown.JWKS(enc)
		if err != nil {
			log.ErrorContext(ctx, "jwks generation failed", "err", err)
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if store != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := store.Set(ctx, cache.JWKSKey, doc, cache.JWKSTTL); err != nil {
					log.Error("jwks cache write failed", "err", err)
				}
			}()
		}

		w.Header().Set("Content-Type", jsonMediaType.String())
		_, _ = w.Write(doc)
	}
}
