// Package pricesource fetches price observations from external marketplaces and shops.
// Every source speaks the same small JSON contract:
//
//	GET {base}/items/{external_id} -> {"price", "currency", "vat_rate", "in_stock", "type"}
package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/metrics"
)

// Client for one price source.
type Client struct {
	name        string
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewClient creates a client for the named source at baseURL.
func NewClient(name, baseURL string, cfg config.FetchConfig, log zerolog.Logger) *Client {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		name:        name,
		baseURL:     baseURL,
		client:      &http.Client{},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		timeout:     cfg.Timeout,
		maxAttempts: maxAttempts,
		backoff:     cfg.Backoff,
		log:         log.With().Str("client", "pricesource").Str("source", name).Logger(),
	}
}

// NewClients builds one client per configured source.
func NewClients(cfg config.FetchConfig, log zerolog.Logger) []*Client {
	clients := make([]*Client, 0, len(cfg.Sources))
	for name, baseURL := range cfg.Sources {
		clients = append(clients, NewClient(name, baseURL, cfg, log))
	}
	return clients
}

// WithMetrics counts fetch outcomes on m.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

func (c *Client) record(outcome string) {
	if c.metrics != nil {
		c.metrics.SourceFetches.WithLabelValues(c.name, outcome).Inc()
	}
}

// Name returns the source name recorded on observations.
func (c *Client) Name() string {
	return c.name
}

type itemResponse struct {
	Price    float64  `json:"price"`
	Currency string   `json:"currency"`
	VATRate  *float64 `json:"vat_rate"`
	InStock  *bool    `json:"in_stock"`
	Type     string   `json:"type"`
}

// Fetch returns the current observation for externalID.
// After the retry budget is spent it returns *domain.ExternalSourceError.
// An unknown item is a domain.NotFoundError and is not retried.
func (c *Client) Fetch(ctx context.Context, itemID int64, externalID string) (*domain.MarketPrice, error) {
	var lastErr error
	delay := c.backoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				c.record("error")
				return nil, &domain.ExternalSourceError{Source: c.name, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}

		obs, err := c.fetchOnce(ctx, itemID, externalID)
		if err == nil {
			c.record("ok")
			return obs, nil
		}

		var notFound domain.NotFoundError
		if errors.As(err, &notFound) {
			c.record("not_found")
			return nil, err
		}

		lastErr = err
		c.log.Debug().
			Err(err).
			Int("attempt", attempt).
			Str("external_id", externalID).
			Msg("Price source request failed")

		if ctx.Err() != nil {
			c.record("error")
			return nil, &domain.ExternalSourceError{Source: c.name, Attempts: attempt, Err: ctx.Err()}
		}
	}

	c.record("error")
	c.log.Warn().
		Err(lastErr).
		Str("external_id", externalID).
		Int("attempts", c.maxAttempts).
		Msg("Price source exhausted retries")
	return nil, &domain.ExternalSourceError{Source: c.name, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context, itemID int64, externalID string) (*domain.MarketPrice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, domain.NotFoundError{Entity: c.name + " item", Key: externalID}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var body itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if body.Price <= 0 {
		return nil, fmt.Errorf("invalid price %.2f in response", body.Price)
	}

	obs := &domain.MarketPrice{
		ItemID:     itemID,
		Source:     c.name,
		ExternalID: externalID,
		PriceType:  domain.ObservationResale,
		Price:      body.Price,
		Currency:   body.Currency,
		VATRate:    body.VATRate,
		InStock:    body.InStock == nil || *body.InStock,
		ObservedAt: time.Now().UTC().Truncate(time.Second),
	}
	if body.Type == string(domain.ObservationRetail) {
		obs.PriceType = domain.ObservationRetail
	}
	if obs.Currency == "" {
		obs.Currency = "EUR"
	}
	return obs, nil
}
