package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/TaranshG/Receipt-Identifer/internal/api/middleware"
	"github.com/TaranshG/Receipt-Identifer/internal/ledger"
	"github.com/TaranshG/Receipt-Identifer/internal/pipeline"
	"github.com/TaranshG/Receipt-Identifer/internal/proofs"
)

// maxJSONBody bounds request bodies; inline images are base64 in JSON.
const maxJSONBody = pipeline.MaxImageBytes*4/3 + 1<<20

// ReceiptService is the subset of *pipeline.Service the handlers use.
type ReceiptService interface {
	Analyze(ctx context.Context, in pipeline.AnalyzeInput) (*pipeline.AnalyzeResult, error)
	Certify(ctx context.Context, in pipeline.CertifyInput) (*pipeline.CertifyResult, error)
	Verify(ctx context.Context, in pipeline.VerifyInput) (*pipeline.VerifyResult, error)
	Bundle(ctx context.Context, txID string) (*proofs.Bundle, error)
	Proofs(ctx context.Context) ([]proofs.ProofRecord, error)
	Network() string
}

// ReceiptsHandler handles the analyze, certify and verify endpoints.
type ReceiptsHandler struct {
	svc ReceiptService
	log zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(svc ReceiptService, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{svc: svc, log: log}
}

// Routes mounts every endpoint on r.
func (h *ReceiptsHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", h.Analyze)
		r.Post("/certify", h.Certify)
		r.Post("/verify", h.Verify)
		r.Get("/proofs", h.ListProofs)
		r.Get("/proofs/{txID}", h.GetProof)
	})
}

// Health handles GET /health
func (h *ReceiptsHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"network": h.svc.Network(),
	})
}

// Analyze handles POST /api/analyze. The body is either a JSON
// AnalyzeInput or the raw bytes of an image/* upload.
func (h *ReceiptsHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var in pipeline.AnalyzeInput

	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		data, err := io.ReadAll(io.LimitReader(r.Body, pipeline.MaxImageBytes+1))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Failed to read image")
			return
		}
		in.Image = data
		in.MIMEType = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	} else if !h.decode(w, r, &in) {
		return
	}

	res, err := h.svc.Analyze(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Certify handles POST /api/certify
func (h *ReceiptsHandler) Certify(w http.ResponseWriter, r *http.Request) {
	var in pipeline.CertifyInput
	if !h.decode(w, r, &in) {
		return
	}

	res, err := h.svc.Certify(r.Context(), in)
	if err != nil {
		if res != nil {
			// Anchored, but the proof store write failed.
			middleware.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":       "Certified on ledger but failed to record proof",
				"certificate": res,
			})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Verify handles POST /api/verify
func (h *ReceiptsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var in pipeline.VerifyInput
	if !h.decode(w, r, &in) {
		return
	}

	res, err := h.svc.Verify(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ListProofs handles GET /api/proofs
func (h *ReceiptsHandler) ListProofs(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Proofs(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if recs == nil {
		recs = []proofs.ProofRecord{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"proofs": recs,
		"count":  len(recs),
	})
}

// GetProof handles GET /api/proofs/{txID}
func (h *ReceiptsHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	if txID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
		return
	}

	bundle, err := h.svc.Bundle(r.Context(), txID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, bundle)
}

func (h *ReceiptsHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *ReceiptsHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var lerr *ledger.Error

	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, proofs.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Proof not found")
	case errors.Is(err, proofs.ErrTxConflict):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &lerr):
		status := http.StatusBadGateway
		if lerr.Reason == ledger.ReasonInvalidFingerprint {
			status = http.StatusBadRequest
		}
		h.log.Warn().Err(err).Str("reason", string(lerr.Reason)).Str("path", r.URL.Path).Msg("Ledger request failed")
		middleware.WriteReason(w, status, string(lerr.Reason), "Ledger request failed")
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
