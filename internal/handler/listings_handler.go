package handler

import (
	"net/http"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Listings
// ============================================================

func listListingsHandler(listings *service.ListingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/listings")
		defer span.End()

		items, err := listings.List(ctx, principal(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Listing]{Data: items, Total: len(items)})
	}
}

func addListingHandler(listings *service.ListingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/listings")
		defer span.End()

		var req domain.CreateListingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		l, err := listings.Add(ctx, principal(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, l)
	}
}

func updateListingHandler(listings *service.ListingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/listings/{listingId}")
		defer span.End()

		listingID := chi.URLParam(r, "listingId")
		span.SetAttributes(attribute.String("listing.id", listingID))

		var req domain.UpdateListingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		l, err := listings.Update(ctx, principal(r), listingID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, l)
	}
}

func archiveListingHandler(listings *service.ListingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/listings/{listingId}/archive")
		defer span.End()

		l, err := listings.Archive(ctx, principal(r), chi.URLParam(r, "listingId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, l)
	}
}

func convertListingHandler(escrows *service.EscrowService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/listings/{listingId}/convert")
		defer span.End()

		var opts domain.ConvertOptions
		if err := decodeJSON(r, &opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		escrowID, err := escrows.ConvertListingToEscrow(ctx, principal(r), chi.URLParam(r, "listingId"), opts)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, domain.SuccessResponse{Message: "escrow opened", ID: escrowID})
	}
}
