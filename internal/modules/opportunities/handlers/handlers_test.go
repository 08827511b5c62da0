package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/modules/opportunities"
)

type stubReconciler struct {
	current *opportunities.ReconcileReport
	filter  opportunities.Filter
	runs    int
}

func (s *stubReconciler) Reconcile(ctx context.Context) (*opportunities.ReconcileReport, error) {
	s.runs++
	return &opportunities.ReconcileReport{Run: opportunities.Run{RunID: "run-1"}}, nil
}

func (s *stubReconciler) Current(ctx context.Context, filter opportunities.Filter) (*opportunities.ReconcileReport, error) {
	s.filter = filter
	return s.current, nil
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleReconcile(t *testing.T) {
	stub := &stubReconciler{}
	rec := serve(NewHandler(stub, zerolog.Nop()), http.MethodPost, "/opportunities/reconcile")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.runs)
	assert.Contains(t, rec.Body.String(), "run-1")
}

func TestHandleGetCurrent_ParsesFilter(t *testing.T) {
	stub := &stubReconciler{current: &opportunities.ReconcileReport{
		Run:           opportunities.Run{RunID: "run-7"},
		Opportunities: []domain.ProfitOpportunity{{ItemID: 3, Tier: domain.TierHigh}},
	}}
	rec := serve(NewHandler(stub, zerolog.Nop()), http.MethodGet, "/opportunities/?tier=high&source=stockx&min_roi=30&limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TierHigh, stub.filter.Tier)
	assert.Equal(t, "stockx", stub.filter.ResaleSource)
	assert.Equal(t, 30.0, stub.filter.MinROI)
	assert.Equal(t, 5, stub.filter.Limit)

	var body struct {
		Data opportunities.ReconcileReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-7", body.Data.Run.RunID)
	require.Len(t, body.Data.Opportunities, 1)
}

func TestHandleGetCurrent_EmptyAndInvalid(t *testing.T) {
	h := NewHandler(&stubReconciler{}, zerolog.Nop())

	rec := serve(h, http.MethodGet, "/opportunities/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"opportunities":[]`)

	for _, q := range []string{"tier=gold", "min_roi=abc", "limit=-1"} {
		rec := serve(h, http.MethodGet, "/opportunities/?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}
