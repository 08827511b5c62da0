// Package handlers provides HTTP handlers for market observations.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/modules/market"
	"github.com/aristath/reseller/internal/utils"
)

// ObservationService is the market service as seen by the handlers.
type ObservationService interface {
	Observations(ctx context.Context, item domain.Item) ([]domain.MarketPrice, bool, error)
	Import(ctx context.Context, observations []domain.MarketPrice) (int, error)
	RefreshAll(ctx context.Context, items market.ItemLister) (*market.RefreshReport, error)
}

// ItemStore looks up and lists inventory items.
type ItemStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Item, error)
	ListActive(ctx context.Context) ([]domain.Item, error)
}

// EventEmitter publishes market events.
type EventEmitter interface {
	Emit(eventType events.EventType, module string, data interface{})
}

// Handler handles market HTTP requests
type Handler struct {
	service ObservationService
	items   ItemStore
	events  EventEmitter
	log     zerolog.Logger
}

// NewHandler creates a new market handler. emitter may be nil.
func NewHandler(service ObservationService, items ItemStore, emitter EventEmitter, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		items:   items,
		events:  emitter,
		log:     log.With().Str("handler", "market").Logger(),
	}
}

// RegisterRoutes registers all market routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Get("/items/{itemID}/observations", h.HandleGetObservations)
		r.Post("/observations", h.HandleImport)
		r.Post("/refresh", h.HandleRefresh)
	})
}

// HandleGetObservations handles GET /api/market/items/{itemID}/observations
func (h *Handler) HandleGetObservations(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		utils.WriteBadRequest(w, h.log, "itemID must be a positive integer")
		return
	}

	item, err := h.items.GetByID(r.Context(), itemID)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if item == nil {
		utils.WriteError(w, h.log, domain.NotFoundError{Entity: "item", Key: itemID})
		return
	}

	observations, stale, err := h.service.Observations(r.Context(), *item)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if observations == nil {
		observations = []domain.MarketPrice{}
	}
	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"item_id":      itemID,
		"stale":        stale,
		"observations": observations,
	})
}

// HandleImport handles POST /api/market/observations with a JSON array of observations.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var observations []domain.MarketPrice
	if err := json.NewDecoder(r.Body).Decode(&observations); err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}

	inserted, err := h.service.Import(r.Context(), observations)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if inserted > 0 && h.events != nil {
		h.events.Emit(events.MarketRefresh, "market", events.MarketRefreshData{Observations: inserted})
	}
	utils.WriteData(w, h.log, http.StatusCreated, map[string]int{
		"received": len(observations),
		"inserted": inserted,
	})
}

// HandleRefresh handles POST /api/market/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RefreshAll(r.Context(), h.items)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if h.events != nil {
		h.events.Emit(events.MarketRefresh, "market", events.MarketRefreshData{
			Items:        report.Items,
			Observations: report.Observations,
			Stale:        report.Stale,
			Failed:       report.Failed,
		})
	}
	utils.WriteData(w, h.log, http.StatusOK, report)
}
