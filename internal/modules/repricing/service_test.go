package repricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
	"github.com/aristath/reseller/internal/modules/pricing"
	testingpkg "github.com/aristath/reseller/internal/testing"
)

type stubRecommender struct {
	prices  map[int64]float64
	errs    map[int64]error
	clamped map[int64]bool
	onCall  func(itemID int64)
	mu      sync.Mutex
	calls   []int64
}

func (s *stubRecommender) Recommend(ctx context.Context, item domain.Item) (*domain.PricingResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, item.ID)
	s.mu.Unlock()
	if s.onCall != nil {
		s.onCall(item.ID)
	}
	if err := s.errs[item.ID]; err != nil {
		return nil, err
	}
	return &domain.PricingResult{
		ItemID:          item.ID,
		SuggestedPrice:  s.prices[item.ID],
		ConfidenceScore: 0.7,
		StrategyUsed:    string(domain.RuleTypeCostPlus),
		RuleID:          3,
		ClampedToLast:   s.clamped[item.ID],
	}, nil
}

type stubItems []domain.Item

func (s stubItems) ListRepriceable(ctx context.Context, ids []int64) ([]domain.Item, error) {
	if len(ids) == 0 {
		return s, nil
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Item
	for _, it := range s {
		if want[it.ID] {
			out = append(out, it)
		}
	}
	return out, nil
}

type stubListings struct {
	mu      sync.Mutex
	updated map[int64]float64
	fail    map[int64]bool
}

func (s *stubListings) UpdateListedPrice(ctx context.Context, itemID int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[itemID] {
		return errors.New("marketplace rejected update")
	}
	if s.updated == nil {
		s.updated = make(map[int64]float64)
	}
	s.updated[itemID] = price
	return nil
}

type harness struct {
	svc      *Service
	history  *pricing.PriceHistoryRepository
	engine   *stubRecommender
	listings *stubListings
	metrics  *metrics.Metrics
	bus      *events.Bus
}

func newHarness(t *testing.T, items stubItems, engine *stubRecommender, workers int) harness {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	history := pricing.NewPriceHistoryRepository(db.Conn(), zerolog.Nop())
	listings := &stubListings{fail: map[int64]bool{}}
	m := metrics.New()
	bus := events.NewBus(zerolog.Nop())
	cfg := config.RepricingConfig{TolerancePercent: 1, Workers: workers, StaleAfter: 24 * time.Hour}

	svc := NewService(engine, history, db.Conn(), items, listings, bus, m, cfg, zerolog.Nop())
	svc.now = func() time.Time { return testingpkg.FixedNow }
	return harness{svc: svc, history: history, engine: engine, listings: listings, metrics: m, bus: bus}
}

func (h harness) seedApplied(t *testing.T, itemID int64, price float64, at time.Time) {
	t.Helper()
	require.NoError(t, h.history.Append(context.Background(), &domain.PriceHistory{
		ItemID: itemID, Price: price, PriceType: domain.PriceApplied, Source: "manual", RecordedAt: at,
	}))
}

func items(ids ...int64) stubItems {
	out := make(stubItems, 0, len(ids))
	for _, id := range ids {
		out = append(out, testingpkg.NewItemFixture(id, 100, 7, 3))
	}
	return out
}

func outcomeFor(t *testing.T, report *BatchReport, itemID int64) ItemOutcome {
	t.Helper()
	for _, o := range report.Items {
		if o.ItemID == itemID {
			return o
		}
	}
	t.Fatalf("no outcome for item %d", itemID)
	return ItemOutcome{}
}

func TestBatchReprice_AppliesSkipsAndFails(t *testing.T) {
	engine := &stubRecommender{
		prices:  map[int64]float64{1: 150, 2: 120.5, 3: 0, 4: 99, 5: 140},
		errs:    map[int64]error{3: domain.NewValidationError("net_cost", "must be positive")},
		clamped: map[int64]bool{4: true},
	}
	h := newHarness(t, items(1, 2, 3, 4, 5), engine, 3)
	old := testingpkg.FixedNow.Add(-48 * time.Hour)
	h.seedApplied(t, 2, 120, old)
	h.seedApplied(t, 4, 99, old)
	h.listings.fail[5] = true

	report, err := h.svc.BatchReprice(context.Background(), Request{})
	require.NoError(t, err)
	require.NotEmpty(t, report.BatchID)
	assert.False(t, report.Cancelled)

	applied := outcomeFor(t, report, 1)
	assert.Equal(t, StateApplied, applied.State)
	assert.Equal(t, 150.0, applied.NewPrice)

	tolerance := outcomeFor(t, report, 2)
	assert.Equal(t, StateSkipped, tolerance.State)
	assert.Equal(t, ReasonWithinTolerance, tolerance.Reason)
	assert.Equal(t, 120.0, tolerance.OldPrice)

	assert.Equal(t, StateFailed, outcomeFor(t, report, 3).State)

	guardrail := outcomeFor(t, report, 4)
	assert.Equal(t, StateSkipped, guardrail.State)
	assert.Equal(t, ReasonGuardrail, guardrail.Reason)

	listingFailed := outcomeFor(t, report, 5)
	assert.Equal(t, StateFailed, listingFailed.State)
	assert.Contains(t, listingFailed.Error, "marketplace rejected update")

	assert.Equal(t, map[State]int{StatePending: 0, StatePriced: 0, StateApplied: 1, StateSkipped: 2, StateFailed: 2}, report.Counts)

	ctx := context.Background()
	last, err := h.history.Latest(ctx, 1, domain.PriceApplied)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 150.0, last.Price)
	assert.Equal(t, SourceSmartRepricing, last.Source)
	assert.Equal(t, report.BatchID, last.BatchID)
	assert.Equal(t, 0.7, last.Confidence)

	// The failed listing update rolled its append back.
	none, err := h.history.Latest(ctx, 5, domain.PriceApplied)
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.Equal(t, 150.0, h.listings.updated[1])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RepriceItems.WithLabelValues("applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.RepriceItems.WithLabelValues("failed")))
}

func TestBatchReprice_IsIdempotent(t *testing.T) {
	engine := &stubRecommender{prices: map[int64]float64{1: 150}}
	h := newHarness(t, items(1), engine, 1)

	first, err := h.svc.BatchReprice(context.Background(), Request{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Counts[StateApplied])

	second, err := h.svc.BatchReprice(context.Background(), Request{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Counts[StateSkipped])
	assert.Equal(t, ReasonWithinTolerance, second.Items[0].Reason)

	rows, err := h.history.ListByItem(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBatchReprice_DryRunRecordsSuggestion(t *testing.T) {
	engine := &stubRecommender{prices: map[int64]float64{1: 150}}
	h := newHarness(t, items(1), engine, 1)

	report, err := h.svc.BatchReprice(context.Background(), Request{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	require.Len(t, report.Items, 1)
	assert.Equal(t, StatePriced, report.Items[0].State)
	assert.Equal(t, ReasonDryRun, report.Items[0].Reason)

	ctx := context.Background()
	applied, err := h.history.Latest(ctx, 1, domain.PriceApplied)
	require.NoError(t, err)
	assert.Nil(t, applied)

	suggested, err := h.history.Latest(ctx, 1, domain.PriceSuggested)
	require.NoError(t, err)
	require.NotNil(t, suggested)
	assert.Equal(t, 150.0, suggested.Price)
	assert.Empty(t, h.listings.updated)
}

func TestBatchReprice_SkipsRecentlyAppliedUnlessForced(t *testing.T) {
	engine := &stubRecommender{prices: map[int64]float64{1: 150, 2: 160}}
	h := newHarness(t, items(1, 2), engine, 2)
	h.seedApplied(t, 1, 100, testingpkg.FixedNow.Add(-time.Hour))

	report, err := h.svc.BatchReprice(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, int64(2), report.Items[0].ItemID)

	forced, err := h.svc.BatchReprice(context.Background(), Request{Force: true})
	require.NoError(t, err)
	assert.Len(t, forced.Items, 2)

	explicit, err := h.svc.BatchReprice(context.Background(), Request{ItemIDs: []int64{1}})
	require.NoError(t, err)
	require.Len(t, explicit.Items, 1)
	assert.Equal(t, int64(1), explicit.Items[0].ItemID)
}

func TestBatchReprice_StaleFilterLeavesSourceIntact(t *testing.T) {
	source := items(1, 2, 3)
	engine := &stubRecommender{prices: map[int64]float64{1: 150, 2: 160, 3: 170}}
	h := newHarness(t, source, engine, 1)
	h.seedApplied(t, 1, 100, testingpkg.FixedNow.Add(-time.Hour))

	report, err := h.svc.BatchReprice(context.Background(), Request{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, report.Items, 2)

	ids := make([]int64, 0, len(source))
	for _, it := range source {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestBatchReprice_CancellationLeavesUnstartedPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &stubRecommender{
		prices: map[int64]float64{1: 150, 2: 150, 3: 150},
		onCall: func(itemID int64) { cancel() },
	}
	h := newHarness(t, items(1, 2, 3), engine, 1)

	report, err := h.svc.BatchReprice(ctx, Request{Force: true})
	require.NoError(t, err)
	assert.True(t, report.Cancelled)

	assert.Equal(t, StateApplied, outcomeFor(t, report, 1).State)
	assert.Equal(t, StatePending, outcomeFor(t, report, 2).State)
	assert.Equal(t, StatePending, outcomeFor(t, report, 3).State)
	assert.Len(t, engine.calls, 1)
}

func TestBatchReprice_PublishesEvents(t *testing.T) {
	engine := &stubRecommender{prices: map[int64]float64{1: 150, 2: 160}}
	h := newHarness(t, items(1, 2), engine, 2)
	sub := h.bus.Subscribe(10)
	defer sub.Close()

	_, err := h.svc.BatchReprice(context.Background(), Request{Force: true})
	require.NoError(t, err)

	var itemEvents, doneEvents int
	for len(sub.C) > 0 {
		e := <-sub.C
		switch e.Type {
		case events.RepriceItem:
			itemEvents++
		case events.RepriceDone:
			doneEvents++
		}
	}
	assert.Equal(t, 2, itemEvents)
	assert.Equal(t, 1, doneEvents)
}

func TestItemOutcome_Transitions(t *testing.T) {
	o := newOutcome(1)
	assert.Error(t, o.transition(StateApplied))
	require.NoError(t, o.transition(StatePriced))
	require.NoError(t, o.transition(StateSkipped))
	assert.True(t, o.State.Terminal())
	assert.Error(t, o.transition(StateFailed))

	o = newOutcome(2)
	o.fail(errors.New("boom"))
	assert.Equal(t, StateFailed, o.State)
	assert.Equal(t, "boom", o.Error)
}
