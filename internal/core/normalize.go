package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Column labels accepted for each canonical field, in priority order. Sources
// have used accented, unaccented and English spellings over time.
var (
	DateKeys        = []string{"Fecha", "fecha", "Date", "date"}
	DescriptionKeys = []string{"Descripción", "Descripcion", "descripción", "descripcion", "Description", "description"}
	AmountKeys      = []string{"Monto", "monto", "Amount", "amount"}
	CategoryKeys    = []string{"Categoría", "Categoria", "categoría", "categoria", "Category", "category"}
	AccountKeys     = []string{"Cuenta", "cuenta", "Account", "account"}
	KindKeys        = []string{"Tipo", "tipo", "Kind", "kind", "Type", "type"}
)

// NormalizeReport describes what Normalize had to repair in a raw record.
type NormalizeReport struct {
	// Defaulted lists canonical fields that were absent or unusable.
	Defaulted []string
	// KindInferred is set when no kind label was present and the kind was
	// taken from the sign of the amount.
	KindInferred bool
	// SignCorrected is set when the record's amount sign contradicted its
	// explicit kind and was overwritten.
	SignCorrected bool
}

// Normalize maps a raw record onto the canonical schema. It never fails: any
// missing or unparseable field falls back to its default.
func Normalize(raw RawRecord, today civil.Date) Transaction {
	t, _ := NormalizeWithReport(raw, today)
	return t
}

// NormalizeWithReport is Normalize plus a description of the repairs made.
func NormalizeWithReport(raw RawRecord, today civil.Date) (Transaction, NormalizeReport) {
	var rep NormalizeReport

	date, ok := coerceDate(lookup(raw, DateKeys))
	if !ok {
		date = today
		rep.Defaulted = append(rep.Defaulted, "date")
	}

	descValue := lookup(raw, DescriptionKeys)
	if descValue == nil {
		rep.Defaulted = append(rep.Defaulted, "description")
	}
	desc := coerceText(descValue)

	amount, ok := CoerceAmount(lookup(raw, AmountKeys))
	if !ok {
		rep.Defaulted = append(rep.Defaulted, "amount")
	}

	category := coerceText(lookup(raw, CategoryKeys))
	if strings.TrimSpace(category) == "" {
		rep.Defaulted = append(rep.Defaulted, "category")
	}
	account := coerceText(lookup(raw, AccountKeys))
	if strings.TrimSpace(account) == "" {
		rep.Defaulted = append(rep.Defaulted, "account")
	}

	kind, ok := ParseKind(coerceText(lookup(raw, KindKeys)))
	if !ok {
		// Zero counts as an expense so an empty record still satisfies
		// Expense <=> amount <= 0.
		rep.KindInferred = true
		kind = Income
		if amount.Sign() <= 0 {
			kind = Expense
		}
	} else if (kind == Expense && amount.IsPositive()) || (kind == Income && amount.IsNegative()) {
		rep.SignCorrected = true
	}

	t := NewTransaction(date, desc, amount, category, account, kind)
	return t, rep
}

// CoerceAmount converts a loosely typed value to a decimal. The boolean is
// false when v is absent or not numeric, in which case the result is zero.
func CoerceAmount(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return CoerceAmount(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint8:
		return decimal.NewFromUint64(uint64(n)), true
	case uint16:
		return decimal.NewFromUint64(uint64(n)), true
	case uint32:
		return decimal.NewFromUint64(uint64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		d, err := ParseAmount(n)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

func lookup(raw RawRecord, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func coerceText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case fmt.Stringer:
		return strings.TrimSpace(s.String())
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func coerceDate(v any) (civil.Date, bool) {
	switch d := v.(type) {
	case civil.Date:
		return d, d.IsValid()
	case time.Time:
		if d.IsZero() {
			return civil.Date{}, false
		}
		return civil.DateOf(d), true
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return civil.Date{}, false
		}
		if cd, err := civil.ParseDate(s); err == nil {
			return cd, true
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return civil.DateOf(ts), true
		}
		// Spreadsheet exports sometimes carry a time component without zone.
		if len(s) >= 10 {
			if cd, err := civil.ParseDate(s[:10]); err == nil {
				return cd, true
			}
		}
	}
	return civil.Date{}, false
}
