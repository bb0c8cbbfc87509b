package sheets

import (
	"context"

	"finanzas/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordReader fetches the full transaction collection as raw records.
	// Records are returned as the source delivers them; callers normalize.
	RecordReader interface {
		Fetch(ctx context.Context) ([]core.RawRecord, error)
	}

	// RecordWriter submits one transaction. A nil error only means the
	// request left without a transport failure; it is not a confirmation
	// that the remote side stored the row.
	RecordWriter interface {
		Submit(ctx context.Context, p core.Payload) error
	}

	// ReadWriter is implemented by every backend.
	ReadWriter interface {
		RecordReader
		RecordWriter
	}
)
