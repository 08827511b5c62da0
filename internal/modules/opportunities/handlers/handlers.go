// Package handlers provides HTTP handlers for profit opportunities.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/modules/opportunities"
	"github.com/aristath/reseller/internal/utils"
)

// Reconciler is the opportunities service as seen by the handlers.
type Reconciler interface {
	Reconcile(ctx context.Context) (*opportunities.ReconcileReport, error)
	Current(ctx context.Context, filter opportunities.Filter) (*opportunities.ReconcileReport, error)
}

// Handler handles opportunities HTTP requests
type Handler struct {
	service Reconciler
	log     zerolog.Logger
}

// NewHandler creates a new opportunities handler
func NewHandler(service Reconciler, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "opportunities").Logger(),
	}
}

// RegisterRoutes registers all opportunities routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/opportunities", func(r chi.Router) {
		r.Get("/", h.HandleGetCurrent)
		r.Post("/reconcile", h.HandleReconcile)
	})
}

// HandleReconcile handles POST /api/opportunities/reconcile
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Reconcile(r.Context())
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, report)
}

// HandleGetCurrent handles GET /api/opportunities
// Query: tier, source, min_roi, max_buy_price, limit.
func (h *Handler) HandleGetCurrent(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		utils.WriteBadRequest(w, h.log, err.Error())
		return
	}

	report, err := h.service.Current(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if report == nil {
		report = &opportunities.ReconcileReport{
			Opportunities: []domain.ProfitOpportunity{},
			Summary:       opportunities.Summarize(nil),
		}
	}
	utils.WriteData(w, h.log, http.StatusOK, report)
}

func parseFilter(r *http.Request) (opportunities.Filter, error) {
	q := r.URL.Query()
	var filter opportunities.Filter

	if tier := strings.ToUpper(q.Get("tier")); tier != "" {
		switch domain.OpportunityTier(tier) {
		case domain.TierLow, domain.TierMedium, domain.TierHigh:
			filter.Tier = domain.OpportunityTier(tier)
		default:
			return filter, domain.NewValidationError("tier", "must be LOW, MEDIUM or HIGH")
		}
	}
	filter.ResaleSource = q.Get("source")

	var err error
	if filter.MinROI, err = parseFloat(q.Get("min_roi"), "min_roi"); err != nil {
		return filter, err
	}
	if filter.MaxBuyPrice, err = parseFloat(q.Get("max_buy_price"), "max_buy_price"); err != nil {
		return filter, err
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, domain.NewValidationError("limit", "must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseFloat(v, field string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, domain.NewValidationError(field, "must be a non-negative number")
	}
	return f, nil
}
