package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/singleflight"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
	"finanzas/internal/sheets"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 30 * time.Second

const reportTimeout = 10 * time.Second

// SyncError wraps a failed load or add. Err is usually a
// *sheets.TransportError or *sheets.MalformedResponseError.
type SyncError struct {
	Op  string // "load" or "add"
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// DiscrepancyReporter is told about transactions that stay in the local list
// although their remote write failed.
type DiscrepancyReporter interface {
	ReportDiscrepancy(ctx context.Context, d core.Discrepancy) error
}

type Options struct {
	// Timeout bounds each Fetch and Submit. Zero means DefaultTimeout.
	Timeout time.Duration
	// Reporter is optional.
	Reporter DiscrepancyReporter
	// Fallback marks a client backed by sample data instead of the remote
	// sheet.
	Fallback bool
	// Today and Now default to the wall clock.
	Today func() civil.Date
	Now   func() time.Time
}

// SyncClient keeps the ledger in step with the remote source. It is the only
// writer of its store.
type SyncClient struct {
	store    *ledger.Store
	reader   sheets.RecordReader
	writer   sheets.RecordWriter
	reporter DiscrepancyReporter
	timeout  time.Duration
	fallback bool
	today    func() civil.Date
	now      func() time.Time

	loads singleflight.Group

	sumMu  sync.Mutex
	sumRev uint64
	sum    *core.Summary
}

func NewSyncClient(store *ledger.Store, rw sheets.ReadWriter, opts Options) *SyncClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Today == nil {
		opts.Today = core.Today
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SyncClient{
		store:    store,
		reader:   rw,
		writer:   rw,
		reporter: opts.Reporter,
		timeout:  opts.Timeout,
		fallback: opts.Fallback,
		today:    opts.Today,
		now:      opts.Now,
	}
}

// Load fetches every record, normalizes it and replaces the ledger. On
// failure the ledger keeps its previous contents and the status carries the
// error. Concurrent calls share one fetch, which is bounded by the client
// timeout rather than by any one caller's context. A caller whose context
// ends first gets its context error; the shared fetch carries on.
func (c *SyncClient) Load(ctx context.Context) error {
	ch := c.loads.DoChan("load", func() (any, error) {
		return nil, c.load(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Shared {
			slog.DebugContext(ctx, "Joined in-flight load")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncClient) load(ctx context.Context) error {
	start := time.Now()
	c.store.SetStatus(ledger.Status{State: ledger.Loading})

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	records, err := c.reader.Fetch(fetchCtx)
	cancel()
	if err != nil {
		c.store.SetStatus(ledger.Status{State: ledger.Error, Message: err.Error()})
		slog.ErrorContext(ctx, "Load failed", "error", err, "fallback", c.fallback)
		return &SyncError{Op: "load", Err: err}
	}

	today := c.today()
	items := make([]core.Transaction, 0, len(records))
	corrected, inferred := 0, 0
	for _, raw := range records {
		t, rep := core.NormalizeWithReport(raw, today)
		if rep.SignCorrected {
			corrected++
			slog.DebugContext(ctx, "Amount sign contradicted kind, kind kept",
				"description", t.Description,
				"kind", t.Kind,
				"amount", t.Amount.String())
		}
		if rep.KindInferred {
			inferred++
		}
		items = append(items, t)
	}

	c.store.ReplaceAll(items)
	c.store.SetStatus(ledger.Status{State: ledger.Idle})

	slog.InfoContext(ctx, "Transactions loaded",
		"count", len(items),
		"sign_corrected", corrected,
		"kind_inferred", inferred,
		"fallback", c.fallback,
		"duration", time.Since(start))
	return nil
}

// Add records a user transaction dated today. The transaction is appended
// to the ledger before the remote write and stays there if the write fails;
// the returned error is then a *SyncError and a discrepancy is reported.
// Invalid input is rejected before anything changes.
func (c *SyncClient) Add(ctx context.Context, in core.Input) (core.Transaction, error) {
	t, err := core.FromInput(in, c.today())
	if err != nil {
		return core.Transaction{}, err
	}

	c.store.SetStatus(ledger.Status{State: ledger.Loading})
	c.store.Append(t)

	submitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.writer.Submit(submitCtx, t.Payload())
	cancel()
	if err != nil {
		c.store.SetStatus(ledger.Status{State: ledger.Error, Message: err.Error()})
		slog.ErrorContext(ctx, "Remote write failed, transaction kept locally",
			"transaction_id", t.ID,
			"kind", t.Kind,
			"amount", t.Amount.String(),
			"error", err)
		c.report(ctx, t, err)
		return t, &SyncError{Op: "add", Err: err}
	}

	c.store.SetStatus(ledger.Status{State: ledger.Idle})
	slog.InfoContext(ctx, "Transaction added",
		"transaction_id", t.ID,
		"kind", t.Kind,
		"amount", t.Amount.String(),
		"category", t.Category,
		"fallback", c.fallback)
	return t, nil
}

func (c *SyncClient) report(ctx context.Context, t core.Transaction, cause error) {
	if c.reporter == nil {
		return
	}
	// The caller's context may already be done; the report should still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	d := core.NewDiscrepancy(t, cause, c.now())
	d.Occurrences = max(core.CountSame(c.store.Current(), t), 1)
	if err := c.reporter.ReportDiscrepancy(ctx, d); err != nil {
		slog.ErrorContext(ctx, "Failed to report discrepancy", "transaction_id", t.ID, "error", err)
	}
}

// Summary derives the aggregates of the current ledger. The result is cached
// per ledger revision.
func (c *SyncClient) Summary() core.Summary {
	items, rev := c.store.Snapshot()
	c.sumMu.Lock()
	defer c.sumMu.Unlock()
	if c.sum == nil || c.sumRev != rev {
		s := core.Summarize(items)
		c.sum, c.sumRev = &s, rev
	}
	out := *c.sum
	out.Categories = make([]core.CategoryAmount, len(c.sum.Categories))
	copy(out.Categories, c.sum.Categories)
	return out
}

func (c *SyncClient) Transactions() []core.Transaction {
	return c.store.Current()
}

func (c *SyncClient) Status() ledger.Status {
	return c.store.Status()
}

// Fallback reports whether the client runs on sample data.
func (c *SyncClient) Fallback() bool {
	return c.fallback
}
