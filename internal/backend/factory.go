package backend

import (
	"context"
	"errors"
	"fmt"

	"finanzas/internal/amqp"
	"finanzas/internal/log"
	"finanzas/internal/services"
	"finanzas/internal/sheets/appscript"
	gsheet "finanzas/internal/sheets/google"
	"finanzas/internal/sheets/memory"
	"finanzas/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	// dialReporter is replaced in tests.
	dialReporter func(url, exchange, queue string) (services.DiscrepancyReporter, CleanupFunc, error)
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger:       logger.WithComponent(log.ComponentBackend),
		dialReporter: dialAMQP,
	}
}

// CreateBackend builds the reader/writer for config.Type and, when AMQP is
// configured, a discrepancy reporter. A broker that cannot be reached only
// disables reporting.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case AppScriptBackend:
		res, err = f.createAppScriptBackend(config)
	case SheetsBackend:
		res, err = f.createSheetsBackend(ctx, config)
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.AMQPURL != "" {
		reporter, cleanup, err := f.dialReporter(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without discrepancy reporting", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			res.Reporter = reporter
			res.Cleanup = chain(res.Cleanup, cleanup)
		}
	}
	return res, nil
}

func (f *DefaultFactory) createAppScriptBackend(config Config) (*Result, error) {
	if !appscript.IsConfigured(config.Endpoint) {
		f.logger.Warn("Apps Script endpoint not configured, using sample data",
			log.FieldFallback, true)
		res, err := f.createMemoryBackend(config)
		if err != nil {
			return nil, err
		}
		res.Fallback = true
		return res, nil
	}

	cli, err := appscript.New(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Apps Script client: %w", err)
	}
	f.logger.Info("Initialized Apps Script backend")
	return &Result{ReadWriter: cli}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName, gsheet.Credentials{
		JSON: []byte(config.GoogleServiceAccountJSON),
		File: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)
	return &Result{ReadWriter: cli}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{ReadWriter: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store, err := memory.NewFromFiles(dataDir, config.MockDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "data_directory", dataDir, "delay", config.MockDelay)
	return &Result{ReadWriter: store}, nil
}

func dialAMQP(url, exchange, queue string) (services.DiscrepancyReporter, CleanupFunc, error) {
	client, err := amqp.NewClient(url, exchange, queue)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// chain runs every non-nil cleanup and joins their errors.
func chain(fns ...CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
