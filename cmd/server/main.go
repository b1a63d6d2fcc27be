package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/config"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/httpserver"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/logger"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/otel"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "share-catalog", cfg.OTelEndpoint)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Warn("closing resources", "error", err)
		}
	}()

	if cfg.Trust.ReconcileInterval > 0 {
		go a.reconcileLoop(ctx, cfg.Trust.ReconcileInterval)
	}

	srv := httpserver.New(httpserver.Config{
		Addr:            cfg.Addr,
		RequestTimeout:  cfg.RequestTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, a.router(), log)
	log.Info("starting share-catalog", "addr", cfg.Addr)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return shutdownTracing(shutdownCtx)
}

// reconcileLoop repairs vouched flags and steward edges on a fixed interval.
func (a *app) reconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.trust.Reconcile(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "reconcile failed", "error", err)
				continue
			}
			a.logger.InfoContext(ctx, "reconcile complete",
				"scanned", report.Scanned,
				"repaired", report.Repaired,
				"failed", report.Failed,
			)
		}
	}
}
