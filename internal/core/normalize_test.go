package core

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestNormalizeEmptyRecord(t *testing.T) {
	for _, raw := range []RawRecord{nil, {}} {
		tx, rep := NormalizeWithReport(raw, testDay)
		if tx.Date != testDay {
			t.Fatalf("expected today, got %v", tx.Date)
		}
		if !tx.Amount.IsZero() || tx.Kind != Expense {
			t.Fatalf("expected zero expense, got %s %s", tx.Amount, tx.Kind)
		}
		if tx.Category != "Otros" || tx.Account != "Principal" || tx.Description != "" {
			t.Fatalf("unexpected defaults: %+v", tx)
		}
		if !tx.WellFormed() {
			t.Fatalf("not well formed: %+v", tx)
		}
		if !rep.KindInferred || len(rep.Defaulted) != 5 {
			t.Fatalf("unexpected report: %+v", rep)
		}
	}
}

func TestNormalizeAliasEquivalence(t *testing.T) {
	accented := Normalize(RawRecord{"Categoría": "Comida", "Descripción": "Pan", "Monto": -3.2, "Fecha": "2023-11-27"}, testDay)
	plain := Normalize(RawRecord{"Categoria": "Comida", "Descripcion": "Pan", "Monto": -3.2, "Fecha": "2023-11-27"}, testDay)
	english := Normalize(RawRecord{"category": "Comida", "description": "Pan", "amount": "-3,20", "date": "2023-11-27"}, testDay)

	if !accented.Equal(plain) || !accented.Equal(english) {
		t.Fatalf("aliases disagree:\n%+v\n%+v\n%+v", accented, plain, english)
	}
	if accented.Category != "Comida" || accented.Description != "Pan" {
		t.Fatalf("unexpected: %+v", accented)
	}
}

func TestNormalizeAliasPriority(t *testing.T) {
	tx := Normalize(RawRecord{"Categoría": "Primero", "Categoria": "Segundo", "category": "Tercero"}, testDay)
	if tx.Category != "Primero" {
		t.Fatalf("expected first alias to win, got %q", tx.Category)
	}

	// A nil value counts as absent and the next alias is tried.
	tx = Normalize(RawRecord{"Categoría": nil, "Categoria": "Segundo"}, testDay)
	if tx.Category != "Segundo" {
		t.Fatalf("expected nil alias to be skipped, got %q", tx.Category)
	}
}

func TestNormalizeAmountCoercion(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"float", -5.5, "-5.5"},
		{"int", 1500, "1500"},
		{"int64", int64(-7), "-7"},
		{"json number", json.Number("-45.20"), "-45.2"},
		{"json exponent", json.Number("1.5e2"), "150"},
		{"json upper exponent", json.Number("-1E3"), "-1000"},
		{"json tiny", json.Number("1e-7"), "0.0000001"},
		{"string exponent", "1e3", "1000"},
		{"int16", int16(4), "4"},
		{"int8", int8(-3), "-3"},
		{"uint", uint(7), "7"},
		{"uint32", uint32(9), "9"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"string dot", "-12.00", "-12"},
		{"string comma", "-12,5", "-12.5"},
		{"decimal", decimal.RequireFromString("-1.01"), "-1.01"},
		{"garbage", "doce", "0"},
		{"bool", true, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := Normalize(RawRecord{"Monto": tc.in}, testDay)
			if !tx.Amount.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("got %s, want %s", tx.Amount, tc.want)
			}
			if !tx.WellFormed() {
				t.Fatalf("not well formed: %+v", tx)
			}
		})
	}
}

func TestNormalizeKindResolution(t *testing.T) {
	cases := []struct {
		name      string
		raw       RawRecord
		kind      Kind
		amount    string
		inferred  bool
		corrected bool
	}{
		{"explicit expense", RawRecord{"Tipo": "Gasto", "Monto": -5.5}, Expense, "-5.5", false, false},
		{"explicit income", RawRecord{"Tipo": "Ingreso", "Monto": 1500}, Income, "1500", false, false},
		{"inferred expense", RawRecord{"Monto": -3}, Expense, "-3", true, false},
		{"inferred income", RawRecord{"Monto": 3}, Income, "3", true, false},
		{"expense with positive sign", RawRecord{"Tipo": "Gasto", "Monto": 10}, Expense, "-10", false, true},
		{"income with negative sign", RawRecord{"Tipo": "Ingreso", "Monto": -10}, Income, "10", false, true},
		{"unknown label falls back to sign", RawRecord{"Tipo": "Otro", "Monto": 4}, Income, "4", true, false},
		{"english key", RawRecord{"type": "expense", "amount": 2}, Expense, "-2", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx, rep := NormalizeWithReport(tc.raw, testDay)
			if tx.Kind != tc.kind || !tx.Amount.Equal(decimal.RequireFromString(tc.amount)) {
				t.Fatalf("got %s %s, want %s %s", tx.Kind, tx.Amount, tc.kind, tc.amount)
			}
			if rep.KindInferred != tc.inferred || rep.SignCorrected != tc.corrected {
				t.Fatalf("unexpected report: %+v", rep)
			}
		})
	}
}

func TestNormalizeDates(t *testing.T) {
	cases := []struct {
		in   any
		want civil.Date
	}{
		{"2023-11-28", civil.Date{Year: 2023, Month: 11, Day: 28}},
		{"2023-11-28T00:00:00.000Z", civil.Date{Year: 2023, Month: 11, Day: 28}},
		{"2023-11-28 10:30", civil.Date{Year: 2023, Month: 11, Day: 28}},
		{time.Date(2024, 2, 29, 15, 0, 0, 0, time.UTC), civil.Date{Year: 2024, Month: 2, Day: 29}},
		{"ayer", testDay},
		{"", testDay},
		{12345, testDay},
	}
	for _, tc := range cases {
		tx := Normalize(RawRecord{"Fecha": tc.in}, testDay)
		if tx.Date != tc.want {
			t.Fatalf("%v: got %v, want %v", tc.in, tx.Date, tc.want)
		}
	}
}

func TestNormalizeNonStringText(t *testing.T) {
	tx := Normalize(RawRecord{"Descripción": 42, "Cuenta": "  Ahorro "}, testDay)
	if tx.Description != "42" || tx.Account != "Ahorro" {
		t.Fatalf("unexpected: %+v", tx)
	}
}

func TestNormalizeReportDefaulted(t *testing.T) {
	_, rep := NormalizeWithReport(RawRecord{"Fecha": "2023-11-28", "Monto": "1", "Tipo": "Ingreso"}, testDay)
	want := []string{"description", "category", "account"}
	if !slices.Equal(rep.Defaulted, want) {
		t.Fatalf("got %v, want %v", rep.Defaulted, want)
	}
}
