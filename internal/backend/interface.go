package backend

import (
	"context"

	"finanzas/internal/services"
	"finanzas/internal/sheets"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result is everything the sync client needs from a backend.
type Result struct {
	ReadWriter sheets.ReadWriter
	// Fallback is set when the sample data source stands in for an
	// unconfigured remote.
	Fallback bool
	// Reporter is nil when discrepancy reporting is off.
	Reporter services.DiscrepancyReporter
	Cleanup  CleanupFunc
}

// Close runs the cleanup function if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	AppScriptBackend BackendType = "appscript"
	SheetsBackend    BackendType = "sheets"
	SQLiteBackend    BackendType = "sqlite"
	MemoryBackend    BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case AppScriptBackend, SheetsBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
