// Package handlers provides HTTP handlers for sales forecasts and their accuracy.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/modules/forecasting"
	"github.com/aristath/reseller/internal/utils"
)

// Forecaster is the forecast engine as seen by the handlers.
type Forecaster interface {
	Forecast(ctx context.Context, productID int64, horizon domain.Horizon) (*domain.SalesForecast, error)
	Generate(ctx context.Context, req forecasting.Request) (*forecasting.RunReport, error)
	Run(ctx context.Context, runID string) (*forecasting.RunReport, error)
}

// AccuracyScorer scores elapsed forecasts.
type AccuracyScorer interface {
	ScoreElapsed(ctx context.Context, now time.Time) (*forecasting.ScoreReport, error)
	RunMetrics(ctx context.Context, runID string) (*domain.RunMetrics, error)
}

// SalesRecorder appends realized sales.
type SalesRecorder interface {
	RecordSale(ctx context.Context, sale forecasting.Sale) error
}

// Handler handles forecasting HTTP requests
type Handler struct {
	engine Forecaster
	scorer AccuracyScorer
	sales  SalesRecorder
	log    zerolog.Logger
}

// NewHandler creates a new forecasting handler
func NewHandler(engine Forecaster, scorer AccuracyScorer, sales SalesRecorder, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		scorer: scorer,
		sales:  sales,
		log:    log.With().Str("handler", "forecasting").Logger(),
	}
}

// RegisterRoutes registers all forecasting routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/forecasts", func(r chi.Router) {
		r.Post("/", h.HandleForecast)
		r.Post("/runs", h.HandleGenerateRun)
		r.Get("/runs/{runID}", h.HandleGetRun)
		r.Get("/runs/{runID}/accuracy", h.HandleGetAccuracy)
		r.Post("/score", h.HandleScore)
		r.Post("/sales", h.HandleRecordSales)
	})
}

type forecastRequest struct {
	ProductID int64          `json:"product_id"`
	Horizon   domain.Horizon `json:"horizon"`
}

// HandleForecast handles POST /api/forecasts
func (h *Handler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}

	forecast, err := h.engine.Forecast(r.Context(), req.ProductID, req.Horizon)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusCreated, forecast)
}

// HandleGenerateRun handles POST /api/forecasts/runs
func (h *Handler) HandleGenerateRun(w http.ResponseWriter, r *http.Request) {
	var req forecasting.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}

	report, err := h.engine.Generate(r.Context(), req)
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusCreated, report)
}

// HandleGetRun handles GET /api/forecasts/runs/{runID}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, report)
}

// HandleGetAccuracy handles GET /api/forecasts/runs/{runID}/accuracy
func (h *Handler) HandleGetAccuracy(w http.ResponseWriter, r *http.Request) {
	m, err := h.scorer.RunMetrics(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, m)
}

// HandleScore handles POST /api/forecasts/score
func (h *Handler) HandleScore(w http.ResponseWriter, r *http.Request) {
	report, err := h.scorer.ScoreElapsed(r.Context(), time.Now().UTC())
	if err != nil {
		utils.WriteError(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, report)
}

// HandleRecordSales handles POST /api/forecasts/sales with a JSON array of sales.
func (h *Handler) HandleRecordSales(w http.ResponseWriter, r *http.Request) {
	var sales []forecasting.Sale
	if err := json.NewDecoder(r.Body).Decode(&sales); err != nil {
		utils.WriteBadRequest(w, h.log, "invalid JSON body")
		return
	}

	for i, sale := range sales {
		if sale.SoldAt.IsZero() {
			sales[i].SoldAt = time.Now().UTC()
		}
		if err := h.sales.RecordSale(r.Context(), sales[i]); err != nil {
			utils.WriteError(w, h.log, err)
			return
		}
	}
	utils.WriteData(w, h.log, http.StatusCreated, map[string]int{"recorded": len(sales)})
}
