// Package worker persists discrepancy reports consumed from the broker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/sheets"
)

// DiscrepancySink stores discrepancy reports.
type DiscrepancySink interface {
	RecordDiscrepancy(ctx context.Context, d core.Discrepancy) error
}

// DiscrepancyWorker records failed writes. When a remote reader is set it
// first checks whether the row reached the sheet anyway, since a failed
// submit does not prove the write was lost. Identical rows are counted: the
// write landed only if the sheet holds at least as many copies as the local
// list did when the write failed.
type DiscrepancyWorker struct {
	sink   DiscrepancySink
	remote sheets.RecordReader
	// handled remembers recently processed transaction IDs so redelivered
	// messages skip the remote check.
	handled *cache.LRUCache[struct{}]
}

const (
	handledCacheSize = 1024
	handledCacheTTL  = time.Hour
)

// NewDiscrepancyWorker builds a worker. remote may be nil.
func NewDiscrepancyWorker(sink DiscrepancySink, remote sheets.RecordReader) *DiscrepancyWorker {
	return &DiscrepancyWorker{
		sink:    sink,
		remote:  remote,
		handled: cache.NewLRUCache[struct{}](handledCacheSize, handledCacheTTL),
	}
}

// Cache exposes the redelivery cache so it can be registered for cleanup.
func (w *DiscrepancyWorker) Cache() cache.Cleaner {
	return w.handled
}

// HandleDiscrepancyMessage processes a single message from AMQP.
func (w *DiscrepancyWorker) HandleDiscrepancyMessage(ctx context.Context, msg *amqp.DiscrepancyMessage) error {
	d := msg.Discrepancy()

	if _, seen := w.handled.Get(d.TransactionID); seen {
		slog.DebugContext(ctx, "Discrepancy already handled, skipping", "transaction_id", d.TransactionID)
		return nil
	}

	slog.InfoContext(ctx, "Processing discrepancy message",
		"transaction_id", d.TransactionID,
		"kind", d.Payload.Kind,
		"amount", d.Payload.Amount.String(),
		"error", d.Error)

	if w.remote != nil {
		landed, err := w.landedRemotely(ctx, d)
		if err != nil {
			// The sheet being unreachable is no reason to lose the report.
			slog.WarnContext(ctx, "Could not check remote sheet, recording discrepancy",
				"transaction_id", d.TransactionID,
				"error", err)
		} else if landed {
			slog.InfoContext(ctx, "Transaction found on remote sheet, discarding discrepancy",
				"transaction_id", d.TransactionID)
			w.handled.Set(d.TransactionID, struct{}{})
			return nil
		}
	}

	if err := w.sink.RecordDiscrepancy(ctx, d); err != nil {
		return fmt.Errorf("record discrepancy: %w", err)
	}
	w.handled.Set(d.TransactionID, struct{}{})
	return nil
}

func (w *DiscrepancyWorker) landedRemotely(ctx context.Context, d core.Discrepancy) (bool, error) {
	records, err := w.remote.Fetch(ctx)
	if err != nil {
		return false, err
	}
	want := core.Normalize(d.Payload.Record(), civil.Date{})
	need := d.ExpectedRemoteCount()
	found := 0
	for _, r := range records {
		if core.Normalize(r, civil.Date{}).SameEntry(want) {
			if found++; found >= need {
				return true, nil
			}
		}
	}
	slog.DebugContext(ctx, "Remote copies below local count",
		"transaction_id", d.TransactionID,
		"remote", found,
		"local", need)
	return false, nil
}
