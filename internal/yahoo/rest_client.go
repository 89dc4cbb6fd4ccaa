package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stock-sim-go/internal/config"
	"stock-sim-go/internal/quote"
)

const (
	quotePath   = "/v7/finance/quote"
	pingSymbol  = "SPY"
	baseBackoff = time.Second
)

// fieldAliases maps Yahoo field names onto the canonical snapshot keys.
// Keys that already match (bid, ask, marketCap, longName, ...) pass through.
var fieldAliases = map[string]string{
	"regularMarketPrice":         quote.FieldCurrentPrice,
	"regularMarketPreviousClose": quote.FieldPreviousClose,
	"regularMarketOpen":          quote.FieldOpen,
	"regularMarketDayHigh":       quote.FieldDayHigh,
	"regularMarketDayLow":        quote.FieldDayLow,
	"regularMarketVolume":        quote.FieldVolume,
	"averageDailyVolume3Month":   quote.FieldAverageVolume,
}

// RestClient is a client for the Yahoo Finance quote API.
// It implements quote.Provider.
type RestClient struct {
	client     *resty.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// ensure RestClient implements the interface
var _ quote.Provider = (*RestClient)(nil)

// NewRestClient creates a new provider client.
func NewRestClient(cfg *config.Provider, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent).
		SetJSONUnmarshaler(decodeWithNumbers)

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &RestClient{
		client:     client,
		logger:     logger.Named("yahoo"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		maxRetries: maxRetries,
		backoff:    baseBackoff,
	}
}

// decodeWithNumbers keeps numeric fields as json.Number so prices are not
// rounded through float64.
func decodeWithNumbers(data []byte, v interface{}) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	return d.Decode(v)
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []map[string]any `json:"result"`
		Error  any              `json:"error"`
	} `json:"quoteResponse"`
}

// GetSnapshot fetches the raw quote record for symbol.
func (c *RestClient) GetSnapshot(ctx context.Context, symbol string) (quote.Snapshot, error) {
	req := c.client.R().
		SetQueryParam("symbols", symbol).
		SetResult(&quoteResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, quotePath, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	result := resp.Result().(*quoteResponse)
	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no result for %s: %w", symbol, quote.ErrNotFound)
	}

	raw := result.QuoteResponse.Result[0]
	snap := make(quote.Snapshot, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		if alias, ok := fieldAliases[k]; ok {
			k = alias
		}
		snap[k] = v
	}
	return snap, nil
}

// Ping checks connectivity by fetching a well-known symbol.
func (c *RestClient) Ping(ctx context.Context) error {
	_, err := c.GetSnapshot(ctx, pingSymbol)
	return err
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// Failures are classified as quote.ErrNotFound or quote.ErrProviderUnavailable.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	req.SetContext(ctx)

	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %v: %w", err, quote.ErrProviderUnavailable)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err != nil {
			// Transport failure; a cancelled or expired context is final.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request aborted: %v: %w", err, quote.ErrProviderUnavailable)
			}
			shouldRetry = true
		} else {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusNotFound:
				return nil, fmt.Errorf("provider returned %s: %w", resp.Status(), quote.ErrNotFound)
			case statusCode == http.StatusTooManyRequests || statusCode == 418:
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500:
				shouldRetry = true
			}
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s: %w", resp.Status(), resp.String(), quote.ErrProviderUnavailable)
		}
		if i == c.maxRetries-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x the base delay
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("request aborted: %v: %w", ctx.Err(), quote.ErrProviderUnavailable)
		}
	}

	if err == nil {
		err = errors.New(resp.Status())
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v: %w", c.maxRetries, err, quote.ErrProviderUnavailable)
}
