// Package main provides the dispatch control server:
// - Operations: POST /operations runs a multi-wallet operation
// - Endpoints: health snapshot and manual switch
// - Kill-switch: activate, deactivate, status
// - Prometheus metrics on /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"solana-dispatch/internal/app"
	"solana-dispatch/internal/config"
	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/wallet"
)

func main() {
	configPath := flag.String("config", "dispatch.toml", "Path to TOML configuration")
	keysPath := flag.String("keys", "", "Keypair file (overrides operation.keys_path)")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *keysPath != "" {
		cfg.Operation.KeysPath = *keysPath
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	var signers []domain.Signer
	if cfg.Operation.KeysPath != "" {
		keys, err := wallet.LoadKeypairFile(cfg.Operation.KeysPath)
		if err != nil {
			logger.Error("load keys", slog.String("error", err.Error()))
			os.Exit(1)
		}
		for _, k := range keys {
			signers = append(signers, k)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	engine, err := app.New(ctx, cfg, app.Options{Logger: logger, Registerer: reg})
	if err != nil {
		logger.Error("build engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()
	engine.Start(ctx)

	srv := NewServer(ServerOptions{
		Engine:    engine.Controller,
		Summaries: engine.Summaries,
		Wallets:   signers,
		Config:    cfg,
		Gatherer:  reg,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			slog.String("addr", cfg.Server.Addr),
			slog.Int("wallets", len(signers)))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	logger.Info("shutdown complete")
}
