package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zhouzirui/z-invoice/backend/internal/config"
	"github.com/zhouzirui/z-invoice/backend/internal/handler"
	"github.com/zhouzirui/z-invoice/backend/internal/logging"
	"github.com/zhouzirui/z-invoice/backend/internal/middleware"
	dialogmodel "github.com/zhouzirui/z-invoice/backend/internal/model/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
	"github.com/zhouzirui/z-invoice/backend/internal/observability"
	"github.com/zhouzirui/z-invoice/backend/internal/service/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/service/generation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New(nil, "info").Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.NewWithFormat(cfg.Log.Format, cfg.Log.Level)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file, using system environment variables only")
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", string(cfg.AI.Provider)).Msg("failed to create chat model")
	}

	client, err := generation.NewChainClient(ctx, chatModel, generation.PromptOptions{
		Defaults: invoice.Defaults{
			Terms:             cfg.Invoice.Terms,
			ContractorLicense: cfg.Invoice.ContractorLicense,
			Warranty:          cfg.Invoice.Warranty,
			PaymentMethods:    cfg.Invoice.PaymentMethods,
		},
		TaxRateHint: cfg.Invoice.TaxRateHint,
	}, logger.Sub("generation"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize generation client")
	}
	logger.Info().
		Str("provider", string(cfg.AI.Provider)).
		Str("model", cfg.AI.Model).
		Msg("generation client initialized")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := dialogmodel.NewMemoryStore(
		dialogmodel.WithIdleTTL(cfg.Dialog.SessionTTL),
		dialogmodel.WithStoreLogger(logger.Sub("store")),
	)
	metrics := observability.NewDialogMetrics(registry, store.Len)

	go store.RunJanitor(ctx, cfg.Dialog.SweepInterval, func(keys []string) {
		metrics.RecordEvictions("idle", len(keys))
	})

	controller := dialog.NewController(client, store, dialog.Options{
		GenerationTimeout: cfg.Dialog.GenerationTimeout,
		LockWait:          cfg.Dialog.LockWait,
		Logger:            logger.Sub("dialog"),
		Metrics:           metrics,
	})

	router := handler.NewRouter(controller, registry, middleware.RateLimitConfig{
		RPS:   cfg.Server.RateLimitRPS,
		Burst: cfg.Server.RateLimitBurst,
	}, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *logging.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("invoice backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
