package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "finanzas.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

var day = civil.Date{Year: 2023, Month: 11, Day: 28}

func TestSubmitThenFetch(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	recs, err := repo.Fetch(ctx)
	if err != nil || recs == nil || len(recs) != 0 {
		t.Fatalf("expected empty non-nil result, got %v %v", recs, err)
	}

	uber := core.NewTransaction(day, "Uber", decimal.RequireFromString("5.50"), "Transporte", "", core.Expense)
	pay := core.NewTransaction(day, "Sueldo", decimal.NewFromInt(1500), "Salario", "Banco", core.Income)
	for _, tx := range []core.Transaction{uber, pay} {
		if err := repo.Submit(ctx, tx.Payload()); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	recs, err = repo.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	var txs []core.Transaction
	for _, r := range recs {
		txs = append(txs, core.Normalize(r, civil.Date{Year: 2000, Month: 1, Day: 1}))
	}
	if txs[0].Description != "Uber" || !txs[0].Amount.Equal(decimal.RequireFromString("-5.5")) || txs[0].Date != day {
		t.Fatalf("unexpected first record %+v", txs[0])
	}
	if txs[1].Account != "Banco" || txs[1].Kind != core.Income {
		t.Fatalf("unexpected second record %+v", txs[1])
	}

	sum := core.Summarize(txs)
	if !sum.Balance.Equal(decimal.RequireFromString("1494.5")) {
		t.Fatalf("balance: got %s", sum.Balance)
	}
}

func TestReopenKeepsData(t *testing.T) {
	repo, path := newTestRepo(t)
	ctx := context.Background()
	tx := core.NewTransaction(day, "Cine", decimal.NewFromInt(12), "Entretenimiento", "", core.Expense)
	if err := repo.Submit(ctx, tx.Payload()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	repo.Close()

	again, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	recs, err := again.Fetch(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected persisted record, got %v %v", recs, err)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.Fetch(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRecordDiscrepancy(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	tx, err := core.FromInput(core.Input{Amount: decimal.NewFromInt(20), Kind: core.Expense, Description: "Test", Category: "Prueba"}, day)
	if err != nil {
		t.Fatalf("from input: %v", err)
	}
	at := time.Date(2023, 11, 28, 10, 30, 0, 0, time.UTC)
	d := core.NewDiscrepancy(tx, errors.New("submit: connection refused"), at)

	if err := repo.RecordDiscrepancy(ctx, d); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Redelivery of the same report is ignored.
	if err := repo.RecordDiscrepancy(ctx, d); err != nil {
		t.Fatalf("record again: %v", err)
	}

	list, err := repo.ListDiscrepancies(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(list))
	}
	got := list[0]
	if got.TransactionID != tx.ID || got.Error != "submit: connection refused" {
		t.Fatalf("unexpected discrepancy %+v", got)
	}
	if got.Payload.Amount.String() != "-20" || got.Payload.Category != "Prueba" || got.Payload.Kind != "Gasto" {
		t.Fatalf("unexpected payload %+v", got.Payload)
	}
	if !got.OccurredAt.Equal(at) {
		t.Fatalf("occurred at: got %v, want %v", got.OccurredAt, at)
	}
}
