package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finanzas/internal/backend"
	"finanzas/internal/cli"
	"finanzas/internal/core"
	apphttp "finanzas/internal/http"
	"finanzas/internal/ledger"
	"finanzas/internal/log"
	"finanzas/internal/middleware/security"
	"finanzas/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	store := ledger.New()
	ledgerLog := logger.WithComponent(log.ComponentLedger)
	unsubscribe := store.Subscribe(func(items []core.Transaction) {
		sum := core.Summarize(items)
		ledgerLog.Debug("Ledger updated",
			"count", len(items),
			"balance", core.FormatAmount(sum.Balance))
	})
	defer unsubscribe()

	client := services.NewSyncClient(store, res.ReadWriter, services.Options{
		Timeout:  cfg.SyncTimeout,
		Reporter: res.Reporter,
		Fallback: res.Fallback,
	})

	// A failed first load is not fatal: the status carries the error and
	// POST /refresh retries.
	if err := client.Load(ctx); err != nil {
		logger.Warn("Initial load failed", log.FieldError, err)
	}

	detector, err := security.NewDetector(cfg.TrustedProxies...)
	if err != nil {
		logger.Error("Invalid trusted proxies", log.FieldError, err)
		os.Exit(1)
	}
	srv := apphttp.NewServer(":"+cfg.Port, client, logger, apphttp.Options{Detector: detector})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting finanzas server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			log.FieldFallback, res.Fallback)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.RefreshInterval > 0 {
		refresher := services.NewRefresher(client, cfg.RefreshInterval)
		if err := refresher.Start(gctx); err != nil {
			logger.Error("Failed to start refresher", log.FieldError, err)
			os.Exit(1)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return refresher.Stop(stopCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
