package core

import "time"

// Discrepancy records a transaction that was shown locally but whose remote
// write failed. It is a report, not a retry: nothing reconciles it.
type Discrepancy struct {
	TransactionID string
	Payload       Payload
	Error         string
	OccurredAt    time.Time
	// Occurrences is how many entries identical to this one, itself
	// included, the local list held when the write failed. Zero means
	// unknown and counts as one.
	Occurrences int
}

// NewDiscrepancy describes the failed write of t.
func NewDiscrepancy(t Transaction, cause error, at time.Time) Discrepancy {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Discrepancy{
		TransactionID: t.ID,
		Payload:       t.Payload(),
		Error:         msg,
		OccurredAt:    at.UTC(),
		Occurrences:   1,
	}
}

// ExpectedRemoteCount is the number of identical remote rows that shows the
// failed write landed after all.
func (d Discrepancy) ExpectedRemoteCount() int {
	return max(d.Occurrences, 1)
}
