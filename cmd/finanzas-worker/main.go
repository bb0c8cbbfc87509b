package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/cli"
	"finanzas/internal/config"
	"finanzas/internal/log"
	"finanzas/internal/sheets"
	"finanzas/internal/sheets/appscript"
	gsheet "finanzas/internal/sheets/google"
	"finanzas/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting finanzas-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if pending, err := repo.ListDiscrepancies(ctx, 10); err != nil {
		logger.Warn("Could not list recorded discrepancies", log.FieldError, err)
	} else {
		for _, d := range pending {
			logger.Info("Recorded discrepancy",
				log.FieldTransactionID, d.TransactionID,
				"occurred_at", d.OccurredAt,
				log.FieldError, d.Error)
		}
	}

	remote := remoteReader(ctx, cfg, logger)
	w := worker.NewDiscrepancyWorker(repo, remote)

	caches := cache.NewManager()
	caches.Register(w.Cache())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	logger.Info("Consuming discrepancy reports",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"remote_check", remote != nil)

	if err := amqpClient.ConsumeDiscrepancies(ctx, w.HandleDiscrepancyMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

// remoteReader returns the sheet used to check whether a failed write landed
// anyway, or nil when no remote is configured.
func remoteReader(ctx context.Context, cfg *config.Config, logger *log.Logger) sheets.RecordReader {
	switch {
	case cfg.DataBackend == "sheets" && cfg.GoogleSpreadsheetID != "":
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, gsheet.Credentials{
			JSON: []byte(cfg.GoogleServiceAccountJSON),
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Warn("Google Sheets unavailable, skipping remote check", log.FieldError, err)
			return nil
		}
		return client
	case appscript.IsConfigured(cfg.Endpoint):
		client, err := appscript.New(cfg.Endpoint)
		if err != nil {
			logger.Warn("Apps Script endpoint unavailable, skipping remote check", log.FieldError, err)
			return nil
		}
		return client
	}
	return nil
}
