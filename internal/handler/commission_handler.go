package handler

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Commissions
// ============================================================

const stubFormField = "stub"

func getCommissionHandler(commissions *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pendings/{escrowId}/commission")
		defer span.End()

		c, err := commissions.Get(ctx, principal(r), chi.URLParam(r, "escrowId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}

func saveCommissionHandler(commissions *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/pendings/{escrowId}/commission")
		defer span.End()

		var req domain.ManualCommissionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c, err := commissions.SaveManual(ctx, principal(r), chi.URLParam(r, "escrowId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}

// importStubHandler accepts the stub as a multipart file field "stub" or as
// JSON {imageBase64, mimeType}. Extraction failures still answer 200 with the
// zero commission and a warning.
func importStubHandler(commissions *service.CommissionService, maxBytes int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings/{escrowId}/commission/stub")
		defer span.End()

		escrowID := chi.URLParam(r, "escrowId")
		span.SetAttributes(attribute.String("escrow.id", escrowID))

		// base64 inflates by 4/3; leave room for the JSON envelope too.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes*4/3+4096)

		stub, err := readStub(r, maxBytes)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "stub image is too large")
				return
			}
			handleServiceError(w, err, logger)
			return
		}

		res, err := commissions.ImportStub(ctx, principal(r), escrowID, stub)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func readStub(r *http.Request, maxBytes int64) (domain.CommissionStub, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/") {
		return readMultipartStub(r, maxBytes)
	}

	var req domain.StubUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.CommissionStub{}, err
		}
		return domain.CommissionStub{}, &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	payload, mime := splitDataURL(req.ImageBase64)
	if req.MimeType != "" {
		mime = req.MimeType
	}
	img, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.CommissionStub{}, &domain.ErrValidation{Field: "imageBase64", Message: "must be base64"}
	}
	if int64(len(img)) > maxBytes {
		return domain.CommissionStub{}, &http.MaxBytesError{Limit: maxBytes}
	}
	return domain.CommissionStub{Image: img, MimeType: mime}, nil
}

func readMultipartStub(r *http.Request, maxBytes int64) (domain.CommissionStub, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.CommissionStub{}, err
		}
		return domain.CommissionStub{}, &domain.ErrValidation{Field: stubFormField, Message: "invalid multipart body"}
	}
	f, hdr, err := r.FormFile(stubFormField)
	if err != nil {
		return domain.CommissionStub{}, &domain.ErrValidation{Field: stubFormField, Message: "file field \"stub\" is required"}
	}
	defer f.Close()

	img, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return domain.CommissionStub{}, err
	}
	if int64(len(img)) > maxBytes {
		return domain.CommissionStub{}, &http.MaxBytesError{Limit: maxBytes}
	}

	mime := hdr.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(img)
	}
	return domain.CommissionStub{Image: img, MimeType: mime}, nil
}

// splitDataURL separates "data:image/png;base64,<payload>" into payload and
// MIME type. Plain base64 comes back unchanged with an empty type.
func splitDataURL(s string) (payload, mime string) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return s, ""
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return s, ""
	}
	mime, _, _ = strings.Cut(meta, ";")
	return payload, mime
}

func confirmCommissionHandler(commissions *service.CommissionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pendings/{escrowId}/commission/confirm")
		defer span.End()

		var req domain.ConfirmCommissionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		c, err := commissions.Confirm(ctx, principal(r), chi.URLParam(r, "escrowId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, c)
	}
}
