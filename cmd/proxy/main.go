package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sugarsense/inference-proxy/internal/audit"
	"github.com/sugarsense/inference-proxy/internal/auth"
	"github.com/sugarsense/inference-proxy/internal/config"
	"github.com/sugarsense/inference-proxy/internal/frontdoor"
	"github.com/sugarsense/inference-proxy/internal/inference"
	"github.com/sugarsense/inference-proxy/internal/redact"
	"github.com/sugarsense/inference-proxy/internal/server"
	"github.com/sugarsense/inference-proxy/internal/telemetry"
	"github.com/sugarsense/inference-proxy/internal/tokens"
)

func main() {
	configPath := flag.String("config", os.Getenv("PROXY_CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The process starts without inference credentials; calls then fail at
	// request time instead of at startup.
	if cfg.Inference.APIKey == "" || cfg.Inference.Endpoint == "" {
		logger.Warn("inference endpoint or API key not configured; /infer will return internal_error")
	}
	if cfg.Auth.VerifyURL == "" {
		logger.Warn("auth verify URL not configured; all tokens will be rejected")
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("inference-proxy", logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer store.Close()

	verifierOpts := []auth.VerifierOption{}
	if cfg.Auth.Audience != "" {
		verifierOpts = append(verifierOpts, auth.WithAudience(cfg.Auth.Audience))
	}
	verifier := auth.NewRemoteVerifier(cfg.Auth.VerifyURL, verifierOpts...)

	client := inference.NewClient(cfg.Inference.Endpoint, cfg.Inference.APIKey,
		inference.WithTimeout(cfg.InferenceTimeout()),
		inference.WithUserAgent("inference-proxy/1.0"),
	)

	handler := frontdoor.NewHandler(client, redact.New(), tokens.NewCounter(), store, logger)

	srv := server.New(server.Options{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.RequestTimeout(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}, logger, auth.Middleware(verifier, logger))

	srv.Router.Post("/infer", handler.HandleInfer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("proxy shutdown complete")
}

func newStore(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		logger.Info("audit store enabled", slog.String("path", cfg.Storage.SQLite.Path))
		return audit.NewSQLiteStore(cfg.Storage.SQLite.Path)
	default:
		return audit.NopStore{}, nil
	}
}
