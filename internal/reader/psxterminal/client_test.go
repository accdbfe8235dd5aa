package psxterminal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTicksPayloadShapes(t *testing.T) {
	shapes := map[string]string{
		"array":   `[{"symbol":"OGDC","price":"228.5","change":"2","open":"226.5"},{"price":1}]`,
		"tickers": `{"tickers":[{"symbol":"OGDC","price":228.5}]}`,
		"data":    `{"data":[{"ticker":"OGDC","close":"228.5"}]}`,
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, map[string]string{"/stats/REG": body})
			ticks, err := NewClient(srv.URL).FetchTicks(context.Background())
			if err != nil {
				t.Fatalf("FetchTicks error: %v", err)
			}
			if len(ticks) != 1 || ticks[0].Symbol != "OGDC" || ticks[0].Price != 228.5 {
				t.Fatalf("unexpected ticks: %+v", ticks)
			}
		})
	}
}

func TestFetchTicksUnknownShape(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/stats/REG": `{"message":"ok"}`})
	ticks, err := NewClient(srv.URL).FetchTicks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ticks) != 0 {
		t.Fatalf("expected no ticks, got %+v", ticks)
	}
}

func TestFetchIndicesFilters(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/stats/IDX": `[{"symbol":"KSE100","current":"118,000.5","change":100},{"symbol":"BKTI","current":5},{"name":"ALLSHR","value":70000}]`,
	})
	idx, err := NewClient(srv.URL).FetchIndices(context.Background())
	if err != nil {
		t.Fatalf("FetchIndices error: %v", err)
	}
	if len(idx) != 2 {
		t.Fatalf("expected 2 tracked indices, got %+v", idx)
	}
	if idx[0].Current != 118000.5 || idx[1].Current != 70000 {
		t.Fatalf("unexpected values: %+v", idx)
	}
}

func TestFetchBreadthSymbolsAndTick(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/stats/breadth": `{"data":{"advancers":120,"decliners":200,"unchanged":30,"total":350}}`,
		"/symbols":       `{"data":["OGDC","HBL",""]}`,
		"/ticks/REG/HBL": `{"data":{"symbol":"HBL","price":"163.2"}}`,
	})
	c := NewClient(srv.URL)

	b, err := c.FetchBreadth(context.Background())
	if err != nil || b.Advancers != 120 || b.TotalSymbols != 350 {
		t.Fatalf("unexpected breadth %+v err=%v", b, err)
	}

	syms, err := c.FetchSymbols(context.Background())
	if err != nil || len(syms) != 2 || syms[1] != "HBL" {
		t.Fatalf("unexpected symbols %v err=%v", syms, err)
	}

	tick, err := c.FetchTick(context.Background(), "HBL")
	if err != nil || tick.Price != 163.2 {
		t.Fatalf("unexpected tick %+v err=%v", tick, err)
	}
}

func TestFetchKlines(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/klines/OGDC/1d": `[[1717400000000,1,2,0.5,1.5,100],{"t":1717486400000,"o":1.5,"h":2.5,"l":1,"c":2},[1,2]]`,
	})
	klines, err := NewClient(srv.URL).FetchKlines(context.Background(), "OGDC", "1d", 30)
	if err != nil {
		t.Fatalf("FetchKlines error: %v", err)
	}
	closes := Closes(klines)
	if len(closes) != 2 || closes[0] != 1.5 || closes[1] != 2 {
		t.Fatalf("unexpected closes: %v", closes)
	}
	if klines[0].Volume != 100 || klines[0].Time.IsZero() {
		t.Fatalf("array candle not decoded: %+v", klines[0])
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchTicks(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || !apiErr.IsRetryable() {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestPullTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
	start := time.Now()
	if _, err := c.FetchTicks(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(1))
	if _, err := c.FetchTicks(context.Background()); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.FetchTicks(ctx); err == nil {
		t.Fatalf("second call should be throttled")
	}
	if hits.Load() != 1 {
		t.Fatalf("throttled call reached the server")
	}
}
