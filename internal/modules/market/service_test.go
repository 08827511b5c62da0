package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/clientdata"
	"github.com/aristath/reseller/internal/domain"
	testingpkg "github.com/aristath/reseller/internal/testing"
)

type fakeSource struct {
	name  string
	price float64
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, itemID int64, externalID string) (*domain.MarketPrice, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	obs := testingpkg.NewResaleObservation(itemID, f.name, f.price)
	obs.ExternalID = externalID
	return &obs, nil
}

type recordingHistory struct {
	mu   sync.Mutex
	rows []domain.PriceHistory
}

func (h *recordingHistory) Append(ctx context.Context, row *domain.PriceHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, *row)
	return nil
}

type staticItems []domain.Item

func (s staticItems) ListActive(ctx context.Context) ([]domain.Item, error) { return s, nil }

type fixture struct {
	repo    *PriceRepository
	cache   *clientdata.Repository
	history *recordingHistory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ledger, cleanupLedger := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanupLedger)
	cacheDB, cleanupCache := testingpkg.NewTestDB(t, "cache")
	t.Cleanup(cleanupCache)

	return fixture{
		repo:    NewPriceRepository(ledger.Conn(), zerolog.Nop()),
		cache:   clientdata.NewRepository(cacheDB.Conn()),
		history: &recordingHistory{},
	}
}

func (f fixture) service(sources ...Source) *Service {
	return NewService(sources, f.repo, f.cache, f.history, time.Hour, zerolog.Nop())
}

func TestService_ObservationsFetchesAndRecords(t *testing.T) {
	f := newFixture(t)
	stockx := &fakeSource{name: "stockx", price: 180}
	alias := &fakeSource{name: "alias", price: 175}
	svc := f.service(stockx, alias)
	item := testingpkg.NewItemFixture(1, 100, 7, 3)

	obs, stale, err := svc.Observations(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Len(t, obs, 2)

	stored, err := f.repo.LatestByItem(context.Background(), item.ID, domain.ObservationResale)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	require.Len(t, f.history.rows, 2)
	for _, row := range f.history.rows {
		assert.Equal(t, domain.PriceMarketObserved, row.PriceType)
	}
}

func TestService_ObservationsServesFreshCache(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{name: "stockx", price: 180}
	svc := f.service(src)
	item := testingpkg.NewItemFixture(1, 100, 7, 3)

	_, _, err := svc.Observations(context.Background(), item)
	require.NoError(t, err)
	obs, stale, err := svc.Observations(context.Background(), item)
	require.NoError(t, err)

	assert.False(t, stale)
	assert.Len(t, obs, 1)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestService_ObservationsFallsBackToStaleCache(t *testing.T) {
	f := newFixture(t)
	item := testingpkg.NewItemFixture(1, 100, 7, 3)
	cached := []domain.MarketPrice{testingpkg.NewResaleObservation(item.ID, "stockx", 170)}
	require.NoError(t, f.cache.Store(context.Background(), clientdata.ItemKey(item.ID), cached, -time.Minute))

	failing := &fakeSource{name: "stockx", err: &domain.ExternalSourceError{Source: "stockx", Attempts: 3, Err: errors.New("boom")}}
	svc := f.service(failing)

	obs, stale, err := svc.Observations(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, stale)
	require.Len(t, obs, 1)
	assert.True(t, obs[0].Stale)
	assert.Equal(t, 170.0, obs[0].Price)
}

func TestService_ObservationsReturnsErrorWithoutFallback(t *testing.T) {
	f := newFixture(t)
	failing := &fakeSource{name: "stockx", err: &domain.ExternalSourceError{Source: "stockx", Attempts: 3, Err: errors.New("boom")}}
	svc := f.service(failing)

	obs, stale, err := svc.Observations(context.Background(), testingpkg.NewItemFixture(1, 100, 7, 3))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalSource))
	assert.False(t, stale)
	assert.Empty(t, obs)
}

func TestService_ObservationsNotFoundIsNotAnError(t *testing.T) {
	f := newFixture(t)
	missing := &fakeSource{name: "goat", err: domain.NotFoundError{Entity: "listing", Key: "SKU-0001"}}
	svc := f.service(missing)

	obs, _, err := svc.Observations(context.Background(), testingpkg.NewItemFixture(1, 100, 7, 3))
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestService_FetchAllKeepsSourceOrderPastFailures(t *testing.T) {
	f := newFixture(t)
	slow := &fakeSource{name: "stockx", price: 180, delay: 20 * time.Millisecond}
	failing := &fakeSource{name: "alias", err: &domain.ExternalSourceError{Source: "alias", Attempts: 3, Err: errors.New("boom")}}
	missing := &fakeSource{name: "goat", err: domain.NotFoundError{Entity: "listing", Key: "SKU-0001"}}
	fast := &fakeSource{name: "klekt", price: 170}
	svc := f.service(slow, failing, missing, fast)

	fetched, err := svc.fetchAll(context.Background(), testingpkg.NewItemFixture(1, 100, 7, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalSource))
	assert.NotContains(t, err.Error(), "listing")

	require.Len(t, fetched, 2)
	assert.Equal(t, "stockx", fetched[0].Source)
	assert.Equal(t, "klekt", fetched[1].Source)
	for _, src := range []*fakeSource{slow, failing, missing, fast} {
		assert.Equal(t, int32(1), src.calls.Load(), src.name)
	}
}

func TestService_ObservationsWithoutSourcesReadsStore(t *testing.T) {
	f := newFixture(t)
	obs := testingpkg.NewResaleObservation(1, "feed", 150)
	_, err := f.repo.Record(context.Background(), &obs)
	require.NoError(t, err)

	svc := f.service()
	got, stale, err := svc.Observations(context.Background(), testingpkg.NewItemFixture(1, 100, 7, 3))
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, got, 1)
	assert.Equal(t, "feed", got[0].Source)
}

func TestService_ObservationsSharesConcurrentFetch(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{name: "stockx", price: 180, delay: 50 * time.Millisecond}
	svc := f.service(src)
	item := testingpkg.NewItemFixture(1, 100, 7, 3)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Observations(context.Background(), item)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, src.calls.Load(), int32(2))
}

func TestService_RefreshAll(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{name: "stockx", price: 180}
	svc := f.service(src)
	items := staticItems{
		testingpkg.NewItemFixture(1, 100, 7, 3),
		testingpkg.NewItemFixture(2, 120, 7, 3),
	}

	report, err := svc.RefreshAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Items)
	assert.Equal(t, 2, report.Observations)
	assert.Zero(t, report.Failed)

	// Refresh bypasses the fresh cache.
	_, err = svc.RefreshAll(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, int32(4), src.calls.Load())
}

func TestService_Import(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	obs := []domain.MarketPrice{
		testingpkg.NewRetailObservation(1, "zalando", 120, domain.Float64Ptr(19)),
		testingpkg.NewResaleObservation(1, "stockx", 190),
	}
	n, err := svc.Import(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.Import(context.Background(), obs)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.Import(context.Background(), []domain.MarketPrice{{ItemID: 1, Source: "x", PriceType: domain.ObservationResale}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
