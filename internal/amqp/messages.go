package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"finanzas/internal/core"
)

// DiscrepancyMessage reports a transaction that was appended locally but
// whose remote write failed.
type DiscrepancyMessage struct {
	TransactionID string       `json:"transaction_id"`
	Payload       core.Payload `json:"payload"`
	Error         string       `json:"error"`
	OccurredAt    time.Time    `json:"occurred_at"`
	Occurrences   int          `json:"occurrences,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewDiscrepancyMessage wraps d for publication.
func NewDiscrepancyMessage(d core.Discrepancy) *DiscrepancyMessage {
	return &DiscrepancyMessage{
		TransactionID: d.TransactionID,
		Payload:       d.Payload,
		Error:         d.Error,
		OccurredAt:    d.OccurredAt,
		Occurrences:   d.Occurrences,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DiscrepancyMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Discrepancy converts the message back to the domain report.
func (m *DiscrepancyMessage) Discrepancy() core.Discrepancy {
	return core.Discrepancy{
		TransactionID: m.TransactionID,
		Payload:       m.Payload,
		Error:         m.Error,
		OccurredAt:    m.OccurredAt,
		Occurrences:   m.Occurrences,
	}
}

// DiscrepancyMessageFromJSON creates a message from JSON bytes
func DiscrepancyMessageFromJSON(data []byte) (*DiscrepancyMessage, error) {
	var msg DiscrepancyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" {
		return nil, errors.New("discrepancy message without transaction_id")
	}
	return &msg, nil
}
