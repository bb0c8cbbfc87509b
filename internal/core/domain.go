package core

import (
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Expense Kind = "Gasto"
	Income  Kind = "Ingreso"
)

const (
	DefaultCategory = "Otros"
	DefaultAccount  = "Principal"
)

type (
	Kind string

	// RawRecord is a transaction row as delivered by a remote source, keyed by
	// whatever column labels that source happens to use.
	RawRecord map[string]any

	Transaction struct {
		ID          string // set on locally created transactions only
		Date        civil.Date
		Description string
		Amount      decimal.Decimal // signed: expenses are <= 0, income >= 0
		Category    string
		Account     string
		Kind        Kind
	}

	// Input is what a user supplies when recording a transaction.
	Input struct {
		Amount      decimal.Decimal // magnitude; the sign is ignored
		Kind        Kind
		Description string
		Category    string
		Account     string
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKind   = errors.New("invalid kind")
)

// ParseKind maps a kind label to a Kind. Labels are matched case-insensitively
// and both the Spanish and English spellings are accepted.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gasto", "expense":
		return Expense, true
	case "ingreso", "income":
		return Income, true
	}
	return "", false
}

func (k Kind) Validate() error {
	if k != Expense && k != Income {
		return ErrInvalidKind
	}
	return nil
}

func (k Kind) String() string {
	return string(k)
}

// NewTransaction builds a well-formed transaction. Kind is authoritative: the
// sign of amount is forced to match it.
func NewTransaction(date civil.Date, description string, amount decimal.Decimal, category, account string, kind Kind) Transaction {
	if kind != Income {
		kind = Expense
	}
	return Transaction{
		Date:        date,
		Description: strings.TrimSpace(description),
		Amount:      signFor(kind, amount),
		Category:    orDefault(category, DefaultCategory),
		Account:     orDefault(account, DefaultAccount),
		Kind:        kind,
	}
}

// FromInput builds the canonical transaction for a user submission dated today.
func FromInput(in Input, today civil.Date) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	t := NewTransaction(today, in.Description, in.Amount, in.Category, in.Account, in.Kind)
	t.ID = uuid.NewString()
	return t, nil
}

func (in Input) Validate() error {
	if in.Amount.IsZero() {
		return ErrInvalidAmount
	}
	return in.Kind.Validate()
}

// WellFormed reports whether the sign of the amount agrees with the kind.
func (t Transaction) WellFormed() bool {
	switch t.Kind {
	case Expense:
		return t.Amount.Sign() <= 0
	case Income:
		return t.Amount.Sign() >= 0
	}
	return false
}

func (t Transaction) IsExpense() bool { return t.Kind == Expense }
func (t Transaction) IsIncome() bool  { return t.Kind == Income }

// Today returns the current calendar date in local time.
func Today() civil.Date {
	return civil.DateOf(time.Now())
}

func signFor(kind Kind, amount decimal.Decimal) decimal.Decimal {
	if kind == Expense {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// SameEntry reports whether t and o describe the same sheet row. IDs exist
// only locally and are ignored.
func (t Transaction) SameEntry(o Transaction) bool {
	t.ID, o.ID = "", ""
	return t.Equal(o)
}

// CountSame returns how many items are the same entry as t.
func CountSame(items []Transaction, t Transaction) int {
	n := 0
	for _, it := range items {
		if it.SameEntry(t) {
			n++
		}
	}
	return n
}

// Equal compares two transactions field by field, using decimal equality for
// the amount.
func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID &&
		t.Date == o.Date &&
		t.Description == o.Description &&
		t.Amount.Equal(o.Amount) &&
		t.Category == o.Category &&
		t.Account == o.Account &&
		t.Kind == o.Kind
}
