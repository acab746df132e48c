// Command brokerd runs the routing side of the token pipeline: it resolves
// subscribers to their home telco via the prefix directory and brokers
// tokens from the telco's backend, caching and re-signing them locally.
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

	"github.com/opentelco/tokenbroker/broker"
	"github.com/opentelco/tokenbroker/cache/rediscache"
	"github.com/opentelco/tokenbroker/config"
	"github.com/opentelco/tokenbroker/directory"
	"github.com/opentelco/tokenbroker/directory/yamldir"
	"github.com/opentelco/tokenbroker/httpapi"
	"github.com/opentelco/tokenbroker/internal/logctx"
	"github.com/opentelco/tokenbroker/secrets"
	"github.com/opentelco/tokenbroker/secrets/envsecrets"
)

func main() {
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(os.Stderr, nil)})
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("brokerd exited", "err", err)
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

	directory.RegisterProvider(directory.KindYAML, func() (directory.Provider, error) {
		return yamldir.NewFromEnv(log)
	})
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

	dp, err := directory.NewProvider(cfg.Providers.DirectoryKind())
	if err != nil {
		return err
	}
	if err := dp.Load(ctx); err != nil {
		return fmt.Errorf("loading telco directory: %w", err)
	}
	if w, ok := dp.(interface{ Watch(context.Context) }); ok {
		w.Watch(ctx)
	}

	opts := []broker.Option{broker.WithLogger(log)}
	if cfg.Redis.Enable {
		rcfg, err := rediscache.DecodeConfig()
		if err != nil {
			return err
		}
		if store, err := rediscache.New(ctx, rcfg); err != nil {
			log.Warn("redis unavailable, running without cache", "err", err)
		} else {
			defer store.Close()
			opts = append(opts, broker.WithCache(store))
		}
	}

	svc := broker.New(dp.Store(), sp, opts...)
	defer svc.Drain()

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: httpapi.NewBrokerHandler(svc,
			httpapi.WithLogger(log),
			httpapi.WithAPIVersion(cfg.Server.Version)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("broker listening",
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
	log.Info("broker stopped")
	return nil
}
