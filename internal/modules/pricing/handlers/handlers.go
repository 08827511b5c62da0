// Package handlers provides HTTP handlers for recommendations, rules and price history.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/modules/pricing"
	"github.com/aristath/reseller/internal/utils"
)

const defaultHistoryLimit = 50

// Recommender is the pricing engine as seen by the handlers.
type Recommender interface {
	Recommend(ctx context.Context, item domain.Item) (*domain.PricingResult, error)
	RecommendByID(ctx context.Context, itemID int64) (*domain.PricingResult, error)
	Explain(ctx context.Context, itemID int64) (*pricing.Explanation, error)
}

// RuleStore manages price rules.
type RuleStore interface {
	Create(ctx context.Context, rule *domain.PriceRule) error
	Update(ctx context.Context, rule *domain.PriceRule) error
	Deactivate(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.PriceRule, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.PriceRule, error)
}

// BrandMultiplierStore creates brand multipliers.
type BrandMultiplierStore interface {
	Create(ctx context.Context, m *domain.BrandMultiplier) error
}

// HistoryLister reads an item's price history, newest first.
type HistoryLister interface {
	ListByItem(ctx context.Context, itemID int64, limit int) ([]domain.PriceHistory, error)
}

// Invalidator drops cached rule snapshots after a write.
type Invalidator interface {
	Invalidate()
}

// Handler handles pricing HTTP requests
type Handler struct {
	engine  Recommender
	rules   RuleStore
	brands  BrandMultiplierStore
	history HistoryLister
	cache   Invalidator
	log     zerolog.Logger
}

// NewHandler creates a new pricing handler. cache may be nil.
func NewHandler(engine Recommender, rules RuleStore, brands BrandMultiplierStore, history HistoryLister, cache Invalidator, log zerolog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		rules:   rules,
		brands:  brands,
		history: history,
		cache:   cache,
		log:     log.With().Str("handler", "pricing").Logger(),
	}
}

// RegisterRoutes registers all pricing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/pricing", func(r chi.Router) {
		r.Post("/recommend", h.HandleRecommend)
		r.Get("/explain/{itemID}", h.HandleExplain)
		r.Get("/history/{itemID}", h.HandleGetHistory)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.HandleListRules)
			r.Post("/", h.HandleCreateRule)
			r.Get("/{id}", h.HandleGetRule)
			r.Put("/{id}", h.HandleUpdateRule)
			r.Post("/{id}/deactivate", h.HandleDeactivateRule)
		})

		r.Post("/brand-multipliers", h.HandleCreateBrandMultiplier)
	})
}

type recommendRequest struct {
	ItemID int64        `json:"item_id"`
	Item   *domain.Item `json:"item"`
}

// HandleRecommend handles POST /api/pricing/recommend
// Body: {"item_id": 1} for a stored item, or {"item": {...}} for an inline one.
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}

	var (
		result *domain.PricingResult
		err    error
	)
	switch {
	case req.Item != nil:
		result, err = h.engine.Recommend(r.Context(), *req.Item)
	case req.ItemID > 0:
		result, err = h.engine.RecommendByID(r.Context(), req.ItemID)
	default:
		utils.WriteBadRequest(w, h.log, "item_id or item is required")
		return
	}
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, result)
}

// HandleExplain handles GET /api/pricing/explain/{itemID}
func (h *Handler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	explanation, err := h.engine.Explain(r.Context(), itemID)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, explanation)
}

// HandleGetHistory handles GET /api/pricing/history/{itemID}?limit=N
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.WriteBadRequest(w, h.log, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := h.history.ListByItem(r.Context(), itemID, limit)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if rows == nil {
		rows = []domain.PriceHistory{}
	}
	utils.WriteData(w, h.log, http.StatusOK, rows)
}

// HandleListRules handles GET /api/pricing/rules
func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListActive(r.Context(), time.Now().UTC())
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if rules == nil {
		rules = []domain.PriceRule{}
	}
	utils.WriteData(w, h.log, http.StatusOK, rules)
}

// HandleGetRule handles GET /api/pricing/rules/{id}
func (h *Handler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	rule, err := h.rules.GetByID(r.Context(), id)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	if rule == nil {
		utils.WriteError(w, h.log, domain.NotFoundError{Entity: "price rule", Key: id})
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, rule)
}

// HandleCreateRule handles POST /api/pricing/rules
func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.PriceRule
	active, err := decodeWithActive(r, &rule)
	if err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}
	rule.ID = 0
	rule.IsDefault = false
	rule.Active = active
	if rule.EffectiveFrom.IsZero() {
		rule.EffectiveFrom = time.Now().UTC().Truncate(time.Second)
	}

	if err := h.rules.Create(r.Context(), &rule); err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	h.invalidate()
	utils.WriteData(w, h.log, http.StatusCreated, rule)
}

// HandleUpdateRule handles PUT /api/pricing/rules/{id}
func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var rule domain.PriceRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}
	rule.ID = id

	if err := h.rules.Update(r.Context(), &rule); err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	h.invalidate()
	utils.WriteData(w, h.log, http.StatusOK, rule)
}

// HandleDeactivateRule handles POST /api/pricing/rules/{id}/deactivate
func (h *Handler) HandleDeactivateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.rules.Deactivate(r.Context(), id); err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	h.invalidate()
	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{"id": id, "active": false})
}

// HandleCreateBrandMultiplier handles POST /api/pricing/brand-multipliers
func (h *Handler) HandleCreateBrandMultiplier(w http.ResponseWriter, r *http.Request) {
	var m domain.BrandMultiplier
	active, err := decodeWithActive(r, &m)
	if err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}
	m.ID = 0
	m.Active = active

	if err := h.brands.Create(r.Context(), &m); err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusCreated, m)
}

// decodeWithActive decodes the body into v and reports its "active" flag,
// which defaults to true when omitted.
func decodeWithActive(r *http.Request, v interface{}) (bool, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, err
	}
	var flag struct {
		Active *bool `json:"active"`
	}
	if err := json.Unmarshal(body, &flag); err != nil {
		return false, err
	}
	return flag.Active == nil || *flag.Active, nil
}

func (h *Handler) invalidate() {
	if h.cache != nil {
		h.cache.Invalidate()
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteBadRequest(w, h.log, param+" must be a positive integer")
		return 0, false
	}
	return id, true
}
