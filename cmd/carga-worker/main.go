package main

import (
	"context"
	"errors"
	"os"
	"time"

	"carga/internal/amqp"
	"carga/internal/cli"
	"carga/internal/sheets"
	gsheet "carga/internal/sheets/google"
	mem "carga/internal/sheets/memory"
	"carga/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting carga-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var (
		appender sheets.RowAppender
		deleter  sheets.RowDeleter
	)
	switch cfg.ExportBackend {
	case "sheets":
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		appender, deleter = client, client
		logger.Info("Initialized Google Sheets export backend", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	default:
		store := mem.New()
		appender, deleter = store, store
		logger.Info("Initialized in-memory export backend")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSyncQueue, cfg.AMQPDeleteQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(repo, appender, deleter)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	go func() {
		if err := exportWorker.Run(ctx, amqpClient); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Export worker stopped", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
