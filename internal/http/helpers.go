package http

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
)

type (
	transactionJSON struct {
		ID          string      `json:"id,omitempty"`
		Date        string      `json:"date"`
		Description string      `json:"description"`
		Amount      json.Number `json:"amount"`
		Category    string      `json:"category"`
		Account     string      `json:"account"`
		Kind        string      `json:"kind"`
	}

	categoryJSON struct {
		Name  string      `json:"name"`
		Value json.Number `json:"value"`
	}

	summaryJSON struct {
		Income     json.Number    `json:"income"`
		Expenses   json.Number    `json:"expenses"`
		Balance    json.Number    `json:"balance"`
		Categories []categoryJSON `json:"categories"`
	}

	statusJSON struct {
		State    string `json:"state"`
		Message  string `json:"message,omitempty"`
		Fallback bool   `json:"fallback"`
	}
)

// amountJSON renders an amount as a JSON number with two decimals.
func amountJSON(d decimal.Decimal) json.Number {
	return json.Number(core.FormatAmount(d))
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Date:        t.Date.String(),
		Description: t.Description,
		Amount:      amountJSON(t.Amount),
		Category:    t.Category,
		Account:     t.Account,
		Kind:        t.Kind.String(),
	}
}

func toTransactionsJSON(items []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(items))
	for _, t := range items {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

func toSummaryJSON(s core.Summary) summaryJSON {
	cats := make([]categoryJSON, 0, len(s.Categories))
	for _, c := range s.Categories {
		cats = append(cats, categoryJSON{Name: c.Name, Value: amountJSON(c.Amount)})
	}
	return summaryJSON{
		Income:     amountJSON(s.Income),
		Expenses:   amountJSON(s.Expenses),
		Balance:    amountJSON(s.Balance),
		Categories: cats,
	}
}

func toStatusJSON(st ledger.Status, fallback bool) statusJSON {
	return statusJSON{State: string(st.State), Message: st.Message, Fallback: fallback}
}
