package handler

import (
	"net/http"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Pendings (open escrows)
// ============================================================

func listPendingsHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pendings")
		defer span.End()

		items, err := escrows.ListPendings(ctx, principal(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Escrow]{Data: items, Total: len(items)})
	}
}

func createEscrowHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings")
		defer span.End()

		var req domain.CreateEscrowRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		e, err := escrows.CreateEscrow(ctx, principal(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, e)
	}
}

func getEscrowHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pendings/{escrowId}")
		defer span.End()

		e, err := escrows.GetEscrow(ctx, principal(r), chi.URLParam(r, "escrowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, e)
	}
}

func updateEscrowHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/pendings/{escrowId}")
		defer span.End()

		var req domain.UpdateEscrowRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		e, err := escrows.UpdateEscrow(ctx, principal(r), chi.URLParam(r, "escrowId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, e)
	}
}

func addContingencyHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings/{escrowId}/contingencies")
		defer span.End()

		var req domain.NewContingencyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		e, err := escrows.AddContingency(ctx, principal(r), chi.URLParam(r, "escrowId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, e)
	}
}

func toggleContingencyHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings/{escrowId}/contingencies/{contingencyId}/toggle")
		defer span.End()

		e, err := escrows.ToggleContingency(ctx, principal(r), chi.URLParam(r, "escrowId"), chi.URLParam(r, "contingencyId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, e)
	}
}

func setContingencyStatusHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/pendings/{escrowId}/contingencies/{contingencyId}/status")
		defer span.End()

		var req domain.ContingencyStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		e, err := escrows.SetContingencyStatus(ctx, principal(r), chi.URLParam(r, "escrowId"), chi.URLParam(r, "contingencyId"), req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, e)
	}
}

func depositReceivedHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings/{escrowId}/deposit/received")
		defer span.End()

		e, err := escrows.MarkDepositReceived(ctx, principal(r), chi.URLParam(r, "escrowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, e)
	}
}

func closeEscrowHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings/{escrowId}/close")
		defer span.End()

		var req domain.CloseEscrowRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		e, err := escrows.CloseEscrow(ctx, principal(r), chi.URLParam(r, "escrowId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, e)
	}
}

func cancelEscrowHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings/{escrowId}/cancel")
		defer span.End()

		e, err := escrows.CancelEscrow(ctx, principal(r), chi.URLParam(r, "escrowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, e)
	}
}

func escrowFinancialsHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pendings/{escrowId}/financials")
		defer span.End()

		fin, err := escrows.EscrowFinancials(ctx, principal(r), chi.URLParam(r, "escrowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, fin)
	}
}

func listClosedHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/closed")
		defer span.End()

		q := r.URL.Query()
		items, err := escrows.ListClosed(ctx, principal(r), q.Get("period"), q.Get("q"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Escrow]{Data: items, Total: len(items)})
	}
}
