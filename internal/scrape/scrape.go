// Package scrape fetches PSX data-portal pages server-side and turns the
// market-watch table into rows the normalizer understands.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"upwrdfin/internal/cache"
	"upwrdfin/logger"
	"upwrdfin/models"
)

const (
	DefaultBaseURL    = "https://dps.psx.com.pk"
	MarketWatch       = "market-watch"
	defaultTimeout    = 10 * time.Second
	maxPageBytes      = 16 << 20
	cacheKeyPrefix    = "scrape:"
	browserUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	browserAccept     = "application/json, text/html, */*"
	browserAcceptLang = "en-US,en;q=0.5"
)

// DefaultAllowedPrefixes are the endpoint prefixes the proxy may reach.
var DefaultAllowedPrefixes = []string{"market-watch", "timeseries/int/", "timeseries/eod/"}

// ErrInvalidEndpoint rejects an endpoint outside the allow-list.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// UpstreamError carries a non-2xx status from the data portal.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("PSX returned %d", e.Status)
}

// Result is either the portal's own JSON or the rows extracted from HTML.
type Result struct {
	JSON json.RawMessage     `json:"json,omitempty"`
	Rows []models.ScrapedRow `json:"rows,omitempty"`
}

// Data is the payload handed to API consumers.
func (r Result) Data() any {
	if len(r.JSON) > 0 {
		return r.JSON
	}
	if r.Rows == nil {
		return []models.ScrapedRow{}
	}
	return r.Rows
}

// Adapter is safe for concurrent use.
type Adapter struct {
	baseURL  string
	prefixes []string
	client   *http.Client
	cache    cache.Cache
	cacheTTL time.Duration
	log      *logger.Entry
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

func WithAllowedPrefixes(prefixes []string) Option {
	return func(a *Adapter) {
		if len(prefixes) > 0 {
			a.prefixes = append([]string(nil), prefixes...)
		}
	}
}

// WithCache keeps successful results for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Adapter) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

func NewAdapter(baseURL string, timeout time.Duration, opts ...Option) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	a := &Adapter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		prefixes: DefaultAllowedPrefixes,
		client:   &http.Client{Timeout: timeout},
		log:      logger.GetLogger().WithComponent("scrape"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allowed reports whether endpoint may be fetched.
func (a *Adapter) Allowed(endpoint string) bool {
	return allowed(endpoint, a.prefixes)
}

func allowed(endpoint string, prefixes []string) bool {
	if endpoint == "" || strings.HasPrefix(endpoint, "/") {
		return false
	}
	if strings.Contains(endpoint, "..") || strings.Contains(endpoint, "://") || strings.Contains(endpoint, `\`) {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(endpoint, p) {
			return true
		}
	}
	return false
}

// Fetch retrieves endpoint. Disallowed endpoints fail with ErrInvalidEndpoint
// before any request is made.
func (a *Adapter) Fetch(ctx context.Context, endpoint string) (Result, error) {
	if !a.Allowed(endpoint) {
		return Result{}, ErrInvalidEndpoint
	}

	if res, ok := a.cached(ctx, endpoint); ok {
		return res, nil
	}

	url := a.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", browserAccept)
	req.Header.Set("Accept-Language", browserAcceptLang)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", DefaultBaseURL+"/")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	logger.LogPerformanceEntry(a.log, "scrape", "GET "+endpoint, time.Since(start), logger.Fields{"status": resp.StatusCode})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		a.log.WithFields(logger.Fields{"endpoint": endpoint, "status": resp.StatusCode}).Warn("data portal returned non-success status")
		return Result{}, &UpstreamError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", endpoint, err)
	}

	var res Result
	if json.Valid(body) {
		res.JSON = json.RawMessage(body)
	} else {
		res.Rows = ParseMarketWatch(string(body))
	}

	a.store(ctx, endpoint, res)
	return res, nil
}

// Rows fetches the market-watch board as scraped rows.
func (a *Adapter) Rows(ctx context.Context) ([]models.ScrapedRow, error) {
	res, err := a.Fetch(ctx, MarketWatch)
	if err != nil {
		return nil, err
	}
	if len(res.JSON) > 0 {
		var rows []models.ScrapedRow
		if err := json.Unmarshal(res.JSON, &rows); err != nil {
			a.log.WithError(err).Debug("market-watch JSON is not a row list")
			return nil, nil
		}
		return rows, nil
	}
	return res.Rows, nil
}

func (a *Adapter) cached(ctx context.Context, endpoint string) (Result, bool) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return Result{}, false
	}
	data, ok, err := a.cache.Get(ctx, cacheKeyPrefix+endpoint)
	if err != nil {
		a.log.WithError(err).WithField("endpoint", endpoint).Warn("scrape cache read failed")
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false
	}
	return res, true
}

func (a *Adapter) store(ctx context.Context, endpoint string, res Result) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, cacheKeyPrefix+endpoint, data, a.cacheTTL); err != nil {
		a.log.WithError(err).WithField("endpoint", endpoint).Warn("scrape cache write failed")
	}
}
