// Package memory provides the fallback source used when no remote endpoint is
// configured. It serves a fixed sample sequence after a simulated delay and
// keeps submitted rows for the life of the process.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"finanzas/internal/core"
	ports "finanzas/internal/sheets"
)

// SeedFile is the optional file, relative to the data directory, that
// replaces the built-in sample records.
const SeedFile = "seed_transactions.yaml"

// DefaultDelay mimics the latency of the remote sheet.
const DefaultDelay = time.Second

// Ensure interface conformance
var _ ports.ReadWriter = (*Store)(nil)

type Store struct {
	mu        sync.Mutex
	seed      []core.RawRecord
	submitted []core.RawRecord // newest first
	delay     time.Duration
}

// SampleRecords returns the built-in fallback sequence.
func SampleRecords() []core.RawRecord {
	return []core.RawRecord{
		{"Fecha": "2023-11-28", "Descripción": "Uber", "Monto": -5.50, "Categoría": "Transporte", "Tipo": "Gasto"},
		{"Fecha": "2023-11-28", "Descripción": "Sueldo", "Monto": 1500.00, "Categoría": "Salario", "Tipo": "Ingreso"},
		{"Fecha": "2023-11-27", "Descripción": "Supermercado", "Monto": -45.20, "Categoría": "Comida", "Tipo": "Gasto"},
		{"Fecha": "2023-11-26", "Descripción": "Cine", "Monto": -12.00, "Categoría": "Entretenimiento", "Tipo": "Gasto"},
	}
}

// New returns a store seeded with records. A nil seed means the built-in
// sample sequence; an empty non-nil seed means no records.
func New(seed []core.RawRecord, delay time.Duration) *Store {
	if seed == nil {
		seed = SampleRecords()
	}
	return &Store{seed: cloneRecords(seed), delay: delay}
}

// NewFromFiles loads SeedFile from base. A missing file falls back to the
// sample sequence; an unreadable or invalid one is an error.
func NewFromFiles(base string, delay time.Duration) (*Store, error) {
	path := filepath.Join(base, SeedFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(nil, delay), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var rows []map[string]any
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	seed := make([]core.RawRecord, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		seed = append(seed, core.RawRecord(r))
	}
	slog.Info("Loaded seed transactions", "path", path, "count", len(seed))
	return New(seed, delay), nil
}

// Fetch implements ports.RecordReader. Rows submitted during this process
// come first, newest first, followed by the seed.
func (s *Store) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RawRecord, 0, len(s.submitted)+len(s.seed))
	out = append(out, cloneRecords(s.submitted)...)
	out = append(out, cloneRecords(s.seed)...)
	return out, nil
}

// Submit implements ports.RecordWriter. The write is always accepted once
// the simulated delay has elapsed.
func (s *Store) Submit(ctx context.Context, p core.Payload) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append([]core.RawRecord{p.Record()}, s.submitted...)
	return nil
}

// Submitted returns how many rows were accepted by Submit.
func (s *Store) Submitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func (s *Store) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cloneRecords(in []core.RawRecord) []core.RawRecord {
	out := make([]core.RawRecord, len(in))
	for i, r := range in {
		c := make(core.RawRecord, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
