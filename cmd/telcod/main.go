// Command telcod runs the issuing side of the token pipeline: it validates
// auth codes, mints tokens for its own subscribers, and publishes the
// verification keys at /.well-known/jwks.json.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentelco/tokenbroker/cache"
	"github.com/opentelco/tokenbroker/cache/rediscache"
	"github.com/opentelco/tokenbroker/config"
	"github.com/opentelco/tokenbroker/httpapi"
	"github.com/opentelco/tokenbroker/internal/logctx"
	"github.com/opentelco/tokenbroker/secrets"
	"github.com/opentelco/tokenbroker/secrets/envsecrets"
	"github.com/opentelco/tokenbroker/telcoissuer"
)

func main() {
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(os.Stderr, nil)})
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("telcod exited", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Decode()
	if err != nil {
		return err
	}

	secrets.RegisterProvider(secrets.KindEnvironment, func() (secrets.Provider, error) {
		return envsecrets.New(), nil
	})

	sp, err := secrets.NewProvider(cfg.Providers.SecretsKind())
	if err != nil {
		return err
	}
	if err := sp.Load(ctx); err != nil {
		return fmt.Errorf("loading secrets: %w", err)
	}

	var store cache.Cache
	if cfg.Redis.Enable {
		rcfg, err := rediscache.DecodeConfig()
		if err != nil {
			return err
		}
		if rc, err := rediscache.New(ctx, rcfg); err != nil {
			log.Warn("redis unavailable, running without cache", "err", err)
		} else {
			defer rc.Close()
			store = rc
		}
	}

	issuerOpts := []telcoissuer.Option{telcoissuer.WithLogger(log)}
	handlerOpts := []httpapi.Option{
		httpapi.WithLogger(log),
		httpapi.WithAPIVersion(cfg.Server.Version),
	}
	if store != nil {
		issuerOpts = append(issuerOpts, telcoissuer.WithCache(store))
		handlerOpts = append(handlerOpts, httpapi.WithCache(store))
	}

	svc := telcoissuer.New(sp, issuerOpts...)
	defer svc.Drain()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpapi.NewTelcoHandler(svc, sp, handlerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("telco issuer listening",
		"name", cfg.Server.Name,
		"addr", cfg.Server.Addr(),
		"api_version", cfg.Server.Version)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("telco issuer stopped")
	return nil
}
