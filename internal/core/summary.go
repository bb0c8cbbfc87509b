package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an expense total aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Summary is derived from a transaction list and never stored.
type Summary struct {
	Income     decimal.Decimal // sum of income amounts, >= 0
	Expenses   decimal.Decimal // sum of expense magnitudes, >= 0
	Balance    decimal.Decimal // Income - Expenses
	Categories []CategoryAmount
}

// Summarize folds the transactions into totals and a per-category expense
// breakdown. Categories keep the order in which they first appear among
// expenses. Income transactions never contribute to the breakdown.
func Summarize(items []Transaction) Summary {
	income := decimal.Zero
	expenses := decimal.Zero
	byCat := map[string]int{}
	cats := make([]CategoryAmount, 0)

	for _, t := range items {
		amt := t.Amount.Abs()
		if t.IsIncome() {
			income = income.Add(amt)
			continue
		}
		expenses = expenses.Add(amt)

		name := orDefault(t.Category, DefaultCategory)
		i, seen := byCat[name]
		if !seen {
			i = len(cats)
			byCat[name] = i
			cats = append(cats, CategoryAmount{Name: name, Amount: decimal.Zero})
		}
		cats[i].Amount = cats[i].Amount.Add(amt)
	}

	return Summary{
		Income:     income,
		Expenses:   expenses,
		Balance:    income.Sub(expenses),
		Categories: cats,
	}
}

// Category returns the expense total for name, or zero if absent.
func (s Summary) Category(name string) decimal.Decimal {
	for _, c := range s.Categories {
		if c.Name == name {
			return c.Amount
		}
	}
	return decimal.Zero
}
