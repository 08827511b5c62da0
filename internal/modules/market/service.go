// Package market gathers competitor and retail price observations for inventory items.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/reseller/internal/clientdata"
	"github.com/aristath/reseller/internal/domain"
)

// Source fetches one observation for an item from an external price source.
type Source interface {
	Name() string
	Fetch(ctx context.Context, itemID int64, externalID string) (*domain.MarketPrice, error)
}

// ObservationStore persists and reads observations.
type ObservationStore interface {
	Record(ctx context.Context, obs *domain.MarketPrice) (bool, error)
	LatestByItem(ctx context.Context, itemID int64, priceType domain.ObservationType) ([]domain.MarketPrice, error)
}

// HistoryAppender records market-observed prices in the price ledger.
type HistoryAppender interface {
	Append(ctx context.Context, row *domain.PriceHistory) error
}

// ItemLister lists the items whose prices should be refreshed.
type ItemLister interface {
	ListActive(ctx context.Context) ([]domain.Item, error)
}

// Service serves observations cache-first, fetching from every configured source
// on a miss and falling back to the last-known cache entry when all sources fail.
type Service struct {
	sources  []Source
	store    ObservationStore
	cache    *clientdata.Repository
	history  HistoryAppender
	cacheTTL time.Duration
	group    singleflight.Group
	log      zerolog.Logger
}

// NewService creates the market data service. cache and history are optional.
func NewService(sources []Source, store ObservationStore, cache *clientdata.Repository, history HistoryAppender, cacheTTL time.Duration, log zerolog.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = clientdata.TTLObservation
	}
	return &Service{
		sources:  sources,
		store:    store,
		cache:    cache,
		history:  history,
		cacheTTL: cacheTTL,
		log:      log.With().Str("service", "market").Logger(),
	}
}

type observationResult struct {
	observations []domain.MarketPrice
	stale        bool
}

// Observations returns the current observations for item. stale is true when they
// came from the fallback cache because every source failed.
// Concurrent calls for the same item share one fetch.
func (s *Service) Observations(ctx context.Context, item domain.Item) ([]domain.MarketPrice, bool, error) {
	key := clientdata.ItemKey(item.ID)

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		obs, stale, err := s.observations(ctx, item, key, false)
		return observationResult{observations: obs, stale: stale}, err
	})
	res, _ := v.(observationResult)
	return res.observations, res.stale, err
}

func (s *Service) observations(ctx context.Context, item domain.Item, key string, force bool) ([]domain.MarketPrice, bool, error) {
	if len(s.sources) == 0 {
		stored, err := s.store.LatestByItem(ctx, item.ID, "")
		return stored, false, err
	}

	if s.cache != nil && !force {
		cached, err := s.cache.GetIfFresh(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Int64("item_id", item.ID).Msg("Failed to read observation cache")
		} else if cached != nil {
			return cached, false, nil
		}
	}

	fetched, fetchErr := s.fetchAll(ctx, item)
	if len(fetched) > 0 {
		s.persist(ctx, item, key, fetched)
		return fetched, false, nil
	}

	if s.cache != nil {
		stale, err := s.cache.Get(ctx, key)
		if err == nil && len(stale) > 0 {
			for i := range stale {
				stale[i].Stale = true
			}
			s.log.Warn().
				Err(fetchErr).
				Int64("item_id", item.ID).
				Int("observations", len(stale)).
				Msg("All price sources failed, using stale cached observations")
			return stale, true, nil
		}
	}

	stored, err := s.store.LatestByItem(ctx, item.ID, "")
	if err == nil && len(stored) > 0 {
		for i := range stored {
			stored[i].Stale = true
		}
		return stored, true, nil
	}

	return nil, false, fetchErr
}

func (s *Service) fetchAll(ctx context.Context, item domain.Item) ([]domain.MarketPrice, error) {
	externalID := item.SKU
	if externalID == "" {
		externalID = fmt.Sprintf("%d", item.ProductID)
	}

	// Each source owns one slot; a failing source never cancels the others.
	results := make([]*domain.MarketPrice, len(s.sources))
	errs := make([]error, len(s.sources))

	g := new(errgroup.Group)
	for i, src := range s.sources {
		g.Go(func() error {
			obs, err := src.Fetch(ctx, item.ID, externalID)
			var notFound domain.NotFoundError
			switch {
			case errors.As(err, &notFound):
			case err != nil:
				errs[i] = err
			default:
				results[i] = obs
			}
			return nil
		})
	}
	_ = g.Wait()

	fetched := make([]domain.MarketPrice, 0, len(results))
	for _, obs := range results {
		if obs != nil {
			fetched = append(fetched, *obs)
		}
	}
	return fetched, errors.Join(errs...)
}

func (s *Service) persist(ctx context.Context, item domain.Item, key string, fetched []domain.MarketPrice) {
	for i := range fetched {
		inserted, err := s.store.Record(ctx, &fetched[i])
		if err != nil {
			s.log.Warn().Err(err).Int64("item_id", item.ID).Str("source", fetched[i].Source).Msg("Failed to record observation")
			continue
		}
		if inserted && s.history != nil && fetched[i].PriceType == domain.ObservationResale {
			row := &domain.PriceHistory{
				ItemID:     item.ID,
				Price:      fetched[i].Price,
				PriceType:  domain.PriceMarketObserved,
				Source:     fetched[i].Source,
				Confidence: 1,
				RecordedAt: fetched[i].ObservedAt,
			}
			if err := s.history.Append(ctx, row); err != nil {
				s.log.Warn().Err(err).Int64("item_id", item.ID).Msg("Failed to record market-observed price")
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.Store(ctx, key, fetched, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Int64("item_id", item.ID).Msg("Failed to cache observations")
		}
	}
}

// RefreshReport summarizes a RefreshAll pass.
type RefreshReport struct {
	Items        int `json:"items"`
	Observations int `json:"observations"`
	Stale        int `json:"stale"`
	Failed       int `json:"failed"`
}

// RefreshAll bypasses the freshness cache and fetches every listed item.
// A failing item is logged and counted; it never stops the pass.
func (s *Service) RefreshAll(ctx context.Context, items ItemLister) (*RefreshReport, error) {
	list, err := items.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list items for refresh: %w", err)
	}

	report := &RefreshReport{Items: len(list)}
	for _, item := range list {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		obs, stale, err := s.observations(ctx, item, clientdata.ItemKey(item.ID), true)
		switch {
		case err != nil:
			report.Failed++
			s.log.Warn().Err(err).Int64("item_id", item.ID).Msg("Market refresh failed")
		case stale:
			report.Stale++
		default:
			report.Observations += len(obs)
		}
	}

	s.log.Info().
		Int("items", report.Items).
		Int("observations", report.Observations).
		Int("stale", report.Stale).
		Int("failed", report.Failed).
		Msg("Market refresh completed")
	return report, nil
}

// Import records externally supplied observations, e.g. from a feed upload.
func (s *Service) Import(ctx context.Context, observations []domain.MarketPrice) (int, error) {
	inserted := 0
	for i := range observations {
		if observations[i].ObservedAt.IsZero() {
			observations[i].ObservedAt = time.Now().UTC().Truncate(time.Second)
		}
		ok, err := s.store.Record(ctx, &observations[i])
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}
