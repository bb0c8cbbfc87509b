package core

import (
	"encoding/json"
)

// Payload is the outbound shape of a transaction as the remote sheet expects
// it. Comercio is the merchant/display label and mirrors the description.
type Payload struct {
	Date        string      `json:"Fecha"`
	Description string      `json:"Descripción"`
	Merchant    string      `json:"Comercio"`
	Amount      json.Number `json:"Monto"`
	Category    string      `json:"Categoría"`
	Account     string      `json:"Cuenta"`
	Kind        string      `json:"Tipo"`
}

// Payload converts t to its outbound representation.
func (t Transaction) Payload() Payload {
	return Payload{
		Date:        t.Date.String(),
		Description: t.Description,
		Merchant:    t.Description,
		Amount:      json.Number(t.Amount.String()),
		Category:    t.Category,
		Account:     t.Account,
		Kind:        t.Kind.String(),
	}
}

// Record returns the payload as a raw record, keyed the way the remote sheet
// labels its columns. Local stores use it so that reads go through the same
// normalization as remote data.
func (p Payload) Record() RawRecord {
	return RawRecord{
		"Fecha":       p.Date,
		"Descripción": p.Description,
		"Comercio":    p.Merchant,
		"Monto":       p.Amount,
		"Categoría":   p.Category,
		"Cuenta":      p.Account,
		"Tipo":        p.Kind,
	}
}
