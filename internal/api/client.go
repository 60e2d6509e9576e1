// Package api is the pull side of the mirror: a batched request/response
// client for the public market aggregation service, used by backfill and
// by the world directory loader.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxItemsPerRequest is the upstream cap on one batched market-data
// request.
const MaxItemsPerRequest = 100

// Client is the surface the rest of the daemon depends on; tests
// substitute mocks.
type Client interface {
	MarketData(ctx context.Context, label string, itemIDs []int, listingLimit int) (*MarketResponse, error)
	DataCenters(ctx context.Context) ([]DataCenter, error)
	Worlds(ctx context.Context) ([]World, error)
}

// Listing is one sell order in a market-data response.
type Listing struct {
	PricePerUnit int    `json:"pricePerUnit"`
	Quantity     int    `json:"quantity"`
	HQ           bool   `json:"hq"`
	WorldID      int    `json:"worldID,omitempty"`
	RetainerName string `json:"retainerName,omitempty"`
}

// MarketItem is one item's slice of a market-data response. When the
// service has no listings to return it still carries the min-price
// fallback fields.
type MarketItem struct {
	ItemID     int       `json:"itemID"`
	MinPriceNQ int       `json:"minPriceNQ"`
	MinPriceHQ int       `json:"minPriceHQ"`
	Listings   []Listing `json:"listings"`
}

// MarketResponse is the batched market-data payload, keyed by item id.
type MarketResponse struct {
	Items           map[string]MarketItem `json:"items"`
	UnresolvedItems []int                 `json:"unresolvedItems"`
}

// DataCenter describes one data center and its member worlds.
type DataCenter struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	Worlds []int  `json:"worlds"`
}

// World maps a world id to its name.
type World struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewClient(baseURL string, ratePerSec int, timeout, retryDelay time.Duration, retryCount int, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retryCount: retryCount,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// MarketData fetches up to MaxItemsPerRequest items for one scope label
// (a world, data center, or region name). listingLimit bounds the
// per-item listings depth.
func (c *HTTPClient) MarketData(ctx context.Context, label string, itemIDs []int, listingLimit int) (*MarketResponse, error) {
	if len(itemIDs) == 0 {
		return &MarketResponse{Items: map[string]MarketItem{}}, nil
	}
	if len(itemIDs) > MaxItemsPerRequest {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchSize, len(itemIDs), MaxItemsPerRequest)
	}

	ids := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		ids[i] = strconv.Itoa(id)
	}

	reqURL := fmt.Sprintf("%s/api/v2/%s/%s?listings=%d&entries=0",
		c.baseURL, url.PathEscape(label), strings.Join(ids, ","), listingLimit)

	var resp MarketResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = map[string]MarketItem{}
	}
	return &resp, nil
}

// DataCenters fetches the data-center directory.
func (c *HTTPClient) DataCenters(ctx context.Context) ([]DataCenter, error) {
	var out []DataCenter
	if err := c.getJSON(ctx, c.baseURL+"/api/v2/data-centers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Worlds fetches the world name directory.
func (c *HTTPClient) Worlds(ctx context.Context) ([]World, error) {
	var out []World
	if err := c.getJSON(ctx, c.baseURL+"/api/v2/worlds", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// getJSON performs one rate-limited GET with retries, decoding the body
// into out.
func (c *HTTPClient) getJSON(ctx context.Context, reqURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	c.logger.Debug("requesting", zap.String("url", reqURL))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
