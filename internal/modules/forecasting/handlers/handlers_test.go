package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/modules/forecasting"
)

type stubEngine struct {
	req forecasting.Request
}

func (s *stubEngine) Forecast(ctx context.Context, productID int64, horizon domain.Horizon) (*domain.SalesForecast, error) {
	if horizon.Days() == 0 {
		return nil, domain.NewValidationError("horizon", "must be one of daily, weekly, monthly")
	}
	return &domain.SalesForecast{ID: "f-1", SubjectID: productID, Horizon: horizon, Confidence: 0.4, Fallback: true}, nil
}

func (s *stubEngine) Generate(ctx context.Context, req forecasting.Request) (*forecasting.RunReport, error) {
	s.req = req
	return &forecasting.RunReport{Run: forecasting.Run{RunID: "run-1", Forecasts: len(req.Subjects)}}, nil
}

func (s *stubEngine) Run(ctx context.Context, runID string) (*forecasting.RunReport, error) {
	if runID != "run-1" {
		return nil, domain.NotFoundError{Entity: "forecast run", Key: runID}
	}
	return &forecasting.RunReport{Run: forecasting.Run{RunID: runID}}, nil
}

type stubScorer struct {
	calls int
}

func (s *stubScorer) ScoreElapsed(ctx context.Context, now time.Time) (*forecasting.ScoreReport, error) {
	s.calls++
	return &forecasting.ScoreReport{Scored: 2, RunIDs: []string{"run-1"}}, nil
}

func (s *stubScorer) RunMetrics(ctx context.Context, runID string) (*domain.RunMetrics, error) {
	return &domain.RunMetrics{RunID: runID, MAPE: 12.5, RecordsEvaluated: 3}, nil
}

type stubSales struct {
	recorded []forecasting.Sale
}

func (s *stubSales) RecordSale(ctx context.Context, sale forecasting.Sale) error {
	if sale.Quantity <= 0 {
		return domain.NewValidationError("quantity", "must be > 0")
	}
	s.recorded = append(s.recorded, sale)
	return nil
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func newHandler() (*Handler, *stubEngine, *stubScorer, *stubSales) {
	engine, scorer, sales := &stubEngine{}, &stubScorer{}, &stubSales{}
	return NewHandler(engine, scorer, sales, zerolog.Nop()), engine, scorer, sales
}

func TestHandleForecast(t *testing.T) {
	h, _, _, _ := newHandler()

	rec := serve(h, http.MethodPost, "/forecasts/", `{"product_id": 12, "horizon": "weekly"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data domain.SalesForecast `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(12), body.Data.SubjectID)
	assert.True(t, body.Data.Fallback)

	rec = serve(h, http.MethodPost, "/forecasts/", `{"product_id": 12, "horizon": "hourly"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")

	rec = serve(h, http.MethodPost, "/forecasts/", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGenerateRun(t *testing.T) {
	h, engine, _, _ := newHandler()

	rec := serve(h, http.MethodPost, "/forecasts/runs", `{"level":"brand","horizon":"monthly","subjects":[1,2],"method":"seasonal_naive"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.LevelBrand, engine.req.Level)
	assert.Equal(t, domain.HorizonMonthly, engine.req.Horizon)
	assert.Equal(t, []int64{1, 2}, engine.req.Subjects)
	assert.Equal(t, domain.MethodSeasonalNaive, engine.req.Method)
}

func TestHandleGetRun(t *testing.T) {
	h, _, _, _ := newHandler()

	rec := serve(h, http.MethodGet, "/forecasts/runs/run-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/forecasts/runs/run-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleScoreAndAccuracy(t *testing.T) {
	h, _, scorer, _ := newHandler()

	rec := serve(h, http.MethodPost, "/forecasts/score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, scorer.calls)
	assert.Contains(t, rec.Body.String(), `"scored":2`)

	rec = serve(h, http.MethodGet, "/forecasts/runs/run-1/accuracy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mape":12.5`)
}

func TestHandleRecordSales(t *testing.T) {
	h, _, _, sales := newHandler()

	rec := serve(h, http.MethodPost, "/forecasts/sales", `[{"product_id":1,"quantity":2,"revenue":40},{"product_id":2,"quantity":1,"revenue":15,"sold_at":"2026-03-01T10:00:00Z"}]`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, sales.recorded, 2)
	assert.False(t, sales.recorded[0].SoldAt.IsZero())
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), sales.recorded[1].SoldAt)

	rec = serve(h, http.MethodPost, "/forecasts/sales", `[{"product_id":1,"quantity":0}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
