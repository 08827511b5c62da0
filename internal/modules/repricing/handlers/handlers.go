// Package handlers provides HTTP handlers for batch repricing.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/modules/repricing"
	"github.com/aristath/reseller/internal/utils"
)

// BatchRunner runs repricing batches.
type BatchRunner interface {
	BatchReprice(ctx context.Context, req repricing.Request) (*repricing.BatchReport, error)
}

// Handler handles repricing HTTP requests
type Handler struct {
	service BatchRunner
	log     zerolog.Logger
}

// NewHandler creates a new repricing handler
func NewHandler(service BatchRunner, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "repricing").Logger(),
	}
}

// RegisterRoutes registers repricing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/repricing", func(r chi.Router) {
		r.Post("/run", h.HandleRun)
	})
}

// HandleRun handles POST /api/repricing/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req repricing.Request
	// An empty body reprices everything
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteBadRequest(w, h.log, "invalid request body: "+err.Error())
		return
	}
	for _, id := range req.ItemIDs {
		if id <= 0 {
			utils.WriteBadRequest(w, h.log, "item_ids must be positive")
			return
		}
	}

	report, err := h.service.BatchReprice(r.Context(), req)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, report)
}
