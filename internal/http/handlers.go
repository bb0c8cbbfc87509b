package http

import (
	"errors"
	"net/http"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
	"finanzas/internal/log"
	"finanzas/internal/services"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(toTransactionsJSON(s.client.Transactions())).Write(w)
}

// handleCreateTransaction records a transaction. A failed remote write still
// leaves the transaction in the list, so the 502 body carries it.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	parser := NewRequestBodyParser(w, r)
	if err := parser.Parse(); err != nil {
		logger.WarnContext(ctx, "Invalid request body", log.FieldError, err)
		BadRequestError("invalid request body").Write(w)
		return
	}

	in, err := ParseTransactionInput(parser)
	if err == nil {
		err = in.Validate()
	}
	if err != nil {
		UnprocessableEntityError(validationMessage(err)).Write(w)
		return
	}

	t, err := s.client.Add(ctx, in)
	if err != nil {
		var syncErr *services.SyncError
		if errors.As(err, &syncErr) {
			body := toTransactionJSON(t)
			NewJSONResponse().
				Status(http.StatusBadGateway).
				Body(errorBody{Error: syncErr.Error(), Transaction: &body}).
				Write(w)
			return
		}
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidKind) {
			UnprocessableEntityError(validationMessage(err)).Write(w)
			return
		}
		logger.ErrorContext(ctx, "Unexpected add failure", log.FieldError, err)
		ErrorResponse(http.StatusInternalServerError, "internal error").Write(w)
		return
	}

	logger.InfoContext(ctx, "Transaction created", log.NewFields().WithTransaction(t).ToSlice()...)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/transactions").
		Body(toTransactionJSON(t)).
		Write(w)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount must be a non-zero decimal number"
	case errors.Is(err, core.ErrInvalidKind):
		return "kind must be Gasto or Ingreso"
	}
	return err.Error()
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(toSummaryJSON(s.client.Summary())).Write(w)
}

// handleRefresh reloads the ledger from the remote source.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Load(r.Context()); err != nil {
		BadGatewayError(err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(struct {
		Count  int        `json:"count"`
		Status statusJSON `json:"status"`
	}{
		Count:  len(s.client.Transactions()),
		Status: toStatusJSON(s.client.Status(), s.client.Fallback()),
	}).Write(w)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(toStatusJSON(s.client.Status(), s.client.Fallback())).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports not ready while the last sync failed and there is
// nothing to serve.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.client.Status()
	if st.State == ledger.Error && len(s.client.Transactions()) == 0 {
		NewJSONResponse().
			Status(http.StatusServiceUnavailable).
			Body(map[string]any{"status": "not_ready", "sync": toStatusJSON(st, s.client.Fallback())}).
			Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{"status": "ready", "sync": toStatusJSON(st, s.client.Fallback())}).Write(w)
}
