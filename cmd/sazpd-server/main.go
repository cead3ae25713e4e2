// Package main is the compliance console server. It polls the platform's
// admin API, runs compliance test sessions, raises alerts and serves the
// console API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/privacyshield/sazpd-console/pkg/config"
	"github.com/privacyshield/sazpd-console/pkg/console"
	"github.com/privacyshield/sazpd-console/pkg/errs"
)

func main() {
	var (
		configPath string
		listenAddr string
	)

	flag.StringVar(&configPath, "config", "", "Path to a YAML config file (optional)")
	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides server.listen_addr)")
	flag.Parse()

	_ = flag.Set("logtostderr", "true")

	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting compliance console",
		"listen", cfg.Server.ListenAddr,
		"upstream", cfg.Upstream.BaseURL,
		"database", cfg.Database.Driver,
		"auditSource", cfg.AuditSource,
		"monitoring", cfg.Monitoring.Enabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	server, err := console.NewServer(ctx, cfg, logger)
	if err != nil {
		glog.Fatalf("Failed to build console: %v", err)
	}

	router := server.MountRoutes()

	if err := server.Start(ctx); err != nil {
		glog.Fatalf("Failed to start console: %v", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("compliance console ready", "listen", cfg.Server.ListenAddr)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", errs.Attr(err))
	}

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("console shutdown error", errs.Attr(err))
	}

	logger.Info("compliance console stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
