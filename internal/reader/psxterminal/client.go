// Package psxterminal talks to the PSX Terminal market-data service: a
// rate-limited REST pull API and a push stream over websocket.
package psxterminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"upwrdfin/internal/normalizer"
	"upwrdfin/logger"
	"upwrdfin/models"
)

const (
	DefaultBaseURL = "https://psxterminal.com/api"

	defaultPullTimeout  = 10 * time.Second
	defaultQuickTimeout = 8 * time.Second
	defaultPerMinute    = 100
	defaultBurst        = 10
	maxBodyBytes        = 8 << 20
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Endpoint   string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("psxterminal %s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// IsRetryable reports whether the failure is worth retrying on the next cycle.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client pulls market snapshots. It is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	log          *logger.Log
	pullTimeout  time.Duration
	quickTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{},
		log:          logger.GetLogger(),
		pullTimeout:  defaultPullTimeout,
		quickTimeout: defaultQuickTimeout,
	}
	WithRateLimit(defaultPerMinute)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeouts sets the timeouts for the heavy stats pulls and the quick lookups.
func WithTimeouts(pull, quick time.Duration) ClientOption {
	return func(c *Client) {
		if pull > 0 {
			c.pullTimeout = pull
		}
		if quick > 0 {
			c.quickTimeout = quick
		}
	}
}

// WithRateLimit caps outbound requests per minute.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			perMinute = defaultPerMinute
		}
		burst := defaultBurst
		if perMinute < burst {
			burst = perMinute
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Log) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// FetchTicks pulls the regular-market stats board.
func (c *Client) FetchTicks(ctx context.Context) ([]models.Tick, error) {
	var raw any
	if err := c.getJSON(ctx, "/stats/REG", c.pullTimeout, &raw); err != nil {
		return nil, err
	}
	items := listItems(raw)
	ticks := make([]models.Tick, 0, len(items))
	for _, item := range items {
		t := normalizer.Normalize(models.RawRecord{Source: models.SourceREST, Fields: item})
		if t.Symbol == "" {
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

// FetchTick pulls a single symbol.
func (c *Client) FetchTick(ctx context.Context, symbol string) (models.Tick, error) {
	var raw any
	if err := c.getJSON(ctx, "/ticks/REG/"+url.PathEscape(symbol), c.quickTimeout, &raw); err != nil {
		return models.Tick{}, err
	}
	t := normalizer.Normalize(models.RawRecord{Source: models.SourceREST, Fields: objectItem(raw)})
	if t.Symbol == "" {
		t.Symbol = symbol
	}
	return t, nil
}

// FetchIndices pulls the index board, keeping only KSE, KMI and all-share entries.
func (c *Client) FetchIndices(ctx context.Context) ([]models.IndexSnapshot, error) {
	var raw any
	if err := c.getJSON(ctx, "/stats/IDX", c.pullTimeout, &raw); err != nil {
		return nil, err
	}
	items := listItems(raw)
	out := make([]models.IndexSnapshot, 0, len(items))
	for _, item := range items {
		s := normalizer.IndexFromMap(item)
		if !isTrackedIndex(s.Symbol) && !isTrackedIndex(s.Name) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func isTrackedIndex(sym string) bool {
	sym = strings.ToUpper(sym)
	return strings.Contains(sym, "KSE") || strings.Contains(sym, "KMI") || strings.Contains(sym, "ALLSHR")
}

// FetchBreadth pulls advancers and decliners.
func (c *Client) FetchBreadth(ctx context.Context) (models.MarketBreadth, error) {
	var raw any
	if err := c.getJSON(ctx, "/stats/breadth", c.quickTimeout, &raw); err != nil {
		return models.MarketBreadth{}, err
	}
	return normalizer.BreadthFromMap(objectItem(raw)), nil
}

// FetchSymbols pulls the listed symbols.
func (c *Client) FetchSymbols(ctx context.Context) ([]string, error) {
	var raw any
	if err := c.getJSON(ctx, "/symbols", c.quickTimeout, &raw); err != nil {
		return nil, err
	}
	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		for _, key := range []string{"data", "symbols"} {
			if arr, ok := v[key].([]any); ok {
				list = arr
				break
			}
		}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch s := item.(type) {
		case string:
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if sym, ok := s["symbol"].(string); ok && sym != "" {
				out = append(out, sym)
			}
		}
	}
	return out, nil
}

// FetchKlines pulls candles for symbol. Candles may arrive as objects or as
// [time, open, high, low, close, volume] arrays.
func (c *Client) FetchKlines(ctx context.Context, symbol, timeframe string, limit int) ([]models.Kline, error) {
	path := fmt.Sprintf("/klines/%s/%s", url.PathEscape(symbol), url.PathEscape(timeframe))
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var raw any
	if err := c.getJSON(ctx, path, c.quickTimeout, &raw); err != nil {
		return nil, err
	}

	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		list, _ = v["data"].([]any)
	}

	out := make([]models.Kline, 0, len(list))
	for _, item := range list {
		var k models.Kline
		switch v := item.(type) {
		case []any:
			if len(v) < 5 {
				continue
			}
			k.Time = unixMillis(normalizer.ToNumber(v[0]))
			k.Open = normalizer.ToNumber(v[1])
			k.High = normalizer.ToNumber(v[2])
			k.Low = normalizer.ToNumber(v[3])
			k.Close = normalizer.ToNumber(v[4])
			if len(v) > 5 {
				k.Volume = normalizer.ToNumber(v[5])
			}
		case map[string]any:
			k.Time = unixMillis(firstNumber(v, "time", "t", "timestamp"))
			k.Open = firstNumber(v, "open", "o")
			k.High = firstNumber(v, "high", "h")
			k.Low = firstNumber(v, "low", "l")
			k.Close = firstNumber(v, "close", "c")
			k.Volume = firstNumber(v, "volume", "v")
		default:
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// Closes extracts the close prices.
func Closes(klines []models.Kline) []float64 {
	out := make([]float64, 0, len(klines))
	for _, k := range klines {
		out = append(out, k.Close)
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, path string, timeout time.Duration, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "upwrdfin/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	logger.LogPerformanceEntry(c.log.WithComponent("psxterminal"), "psxterminal", "GET "+path, time.Since(start), logger.Fields{"status": resp.StatusCode})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &APIError{Endpoint: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// listItems accepts a bare array or an object wrapping one under tickers or data.
func listItems(raw any) []map[string]any {
	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		if arr, ok := v["tickers"].([]any); ok {
			list = arr
		} else if arr, ok := v["data"].([]any); ok {
			list = arr
		}
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// objectItem unwraps {data: {...}} when present.
func objectItem(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := m["data"].(map[string]any); ok {
		return inner
	}
	return m
}

func firstNumber(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if f := normalizer.ToNumber(m[k]); f != 0 {
			return f
		}
	}
	return 0
}

func unixMillis(ms float64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}
