package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shopifybridge/internal/credential"
	"shopifybridge/internal/httpapi"
	"shopifybridge/internal/store"
	"shopifybridge/internal/telemetry"
	"shopifybridge/internal/webhook"
	"shopifybridge/pkg/config"
	"shopifybridge/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shopifybridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	log, err := logging.New(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(func(w error) { log.Warn("config", zap.Error(w)) }); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	sealer, err := credential.NewSealer(cfg.CredentialMode, cfg.AppSecret)
	if err != nil {
		return err
	}
	if sealer.Mode() == config.CredentialPlaintext {
		log.Warn("shop tokens are stored unencrypted; set APP_SECRET to enable encryption")
	}

	backend, closeBackend, err := store.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	st := store.New(backend, sealer,
		store.WithStateTTL(cfg.Store.StateTTL),
		store.WithLogger(log.Named("store")),
	)
	go purgeStates(ctx, st, cfg.Store.StateTTL, log)

	seen := webhook.NewSeenCache()
	defer seen.Stop()

	router := httpapi.NewRouter(httpapi.Dependencies{
		Cfg:         cfg,
		Store:       st,
		Log:         log,
		Metrics:     telemetry.NewMetrics(),
		WebhookSeen: seen,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", string(cfg.Store.Backend)),
			zap.String("credential_mode", string(sealer.Mode())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// purgeStates removes expired nonces on backends without native expiry.
func purgeStates(ctx context.Context, st *store.Store, ttl time.Duration, log *zap.Logger) {
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := st.PurgeExpiredStates(ctx)
			if err != nil {
				log.Warn("purge oauth states", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("purged oauth states", zap.Int64("count", n))
			}
		}
	}
}
