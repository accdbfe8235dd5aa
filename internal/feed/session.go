// Package feed runs the live market-data session: an initial concurrent pull,
// a push stream with reconnects, and a periodic pull while the stream is down.
// All merges go through one lock; readers get deep copies.
package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"upwrdfin/internal/catalog"
	"upwrdfin/internal/metrics"
	"upwrdfin/internal/normalizer"
	"upwrdfin/internal/reader/psxterminal"
	"upwrdfin/internal/reconcile"
	"upwrdfin/logger"
	"upwrdfin/models"
)

var (
	ErrAlreadyRunning = errors.New("feed session already running")
	ErrStopped        = errors.New("feed session stopped")
	ErrUnknownSymbol  = errors.New("unknown symbol")
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultKlineTimeframe = "1d"
	defaultKlineLimit     = 30
)

// Puller is the REST side of the market-data service.
type Puller interface {
	FetchTicks(ctx context.Context) ([]models.Tick, error)
	FetchIndices(ctx context.Context) ([]models.IndexSnapshot, error)
	FetchBreadth(ctx context.Context) (models.MarketBreadth, error)
	FetchKlines(ctx context.Context, symbol, timeframe string, limit int) ([]models.Kline, error)
	FetchTick(ctx context.Context, symbol string) (models.Tick, error)
	FetchSymbols(ctx context.Context) ([]string, error)
}

// Streamer is the push side. Run blocks until ctx ends.
type Streamer interface {
	Run(ctx context.Context, events psxterminal.StreamEvents)
	IsOpen() bool
	Close()
}

// Scraper is the last live source before the catalog.
type Scraper interface {
	Rows(ctx context.Context) ([]models.ScrapedRow, error)
}

// Snapshot is an immutable copy of the session's view.
type Snapshot struct {
	Instruments []models.Instrument   `json:"instruments"`
	Indices     []models.Index        `json:"indices"`
	Breadth     *models.MarketBreadth `json:"breadth,omitempty"`
	models.Freshness
}

// Session owns the merged collection and every goroutine that mutates it.
type Session struct {
	catalog *catalog.Catalog
	engine  *reconcile.Engine
	puller  Puller
	stream  Streamer
	scraper Scraper

	pollInterval   time.Duration
	klineTimeframe string
	klineLimit     int
	now            func() time.Time
	baseLog        *logger.Log
	log            *logger.Entry

	mu          sync.RWMutex
	instruments []models.Instrument
	indices     []models.Index
	breadth     *models.MarketBreadth
	live        bool
	lastUpdated time.Time
	state       State
	running     bool
	stopped     bool
	cancel      context.CancelFunc

	framesApplied atomic.Int64
	framesIgnored atomic.Int64
	pullsDropped  atomic.Int64

	wg sync.WaitGroup
}

type Option func(*Session)

// WithStream enables the push stream.
func WithStream(s Streamer) Option {
	return func(sess *Session) { sess.stream = s }
}

// WithScraper enables the scrape fallback for tick pulls.
func WithScraper(s Scraper) Option {
	return func(sess *Session) { sess.scraper = s }
}

func WithPollInterval(d time.Duration) Option {
	return func(sess *Session) {
		if d > 0 {
			sess.pollInterval = d
		}
	}
}

// WithKlines sets the candle timeframe and count used by History.
func WithKlines(timeframe string, limit int) Option {
	return func(sess *Session) {
		if timeframe != "" {
			sess.klineTimeframe = timeframe
		}
		if limit > 0 {
			sess.klineLimit = limit
		}
	}
}

func WithLogger(log *logger.Log) Option {
	return func(sess *Session) {
		if log != nil {
			sess.baseLog = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(sess *Session) {
		if now != nil {
			sess.now = now
		}
	}
}

// NewSession starts from the catalog baseline. puller may be nil, in which
// case the session only ever shows catalog data plus stream updates.
func NewSession(cat *catalog.Catalog, engine *reconcile.Engine, puller Puller, opts ...Option) *Session {
	s := &Session{
		catalog:        cat,
		engine:         engine,
		puller:         puller,
		pollInterval:   defaultPollInterval,
		klineTimeframe: defaultKlineTimeframe,
		klineLimit:     defaultKlineLimit,
		now:            time.Now,
		baseLog:        logger.GetLogger(),
		instruments:    cat.Instruments(),
		indices:        cat.Indices(),
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.baseLog.WithComponent("feed")
	return s
}

// Start bootstraps in the background and returns immediately. Consumers see
// the catalog until the first pull lands.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.state = StateBootstrapping
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{
		"catalog_size":  s.catalog.Len(),
		"poll_interval": s.pollInterval.String(),
		"stream":        s.stream != nil,
		"scrape":        s.scraper != nil,
	}).Info("feed session starting")

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop cancels every goroutine and waits for them. Nothing is applied after
// Stop returns. It is safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.state = StateStopped
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.stream != nil {
		s.stream.Close()
	}
	s.wg.Wait()
	metrics.SetLive(false)
	s.log.Info("feed session stopped")
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	s.pullAndApply(ctx, true)

	s.mu.Lock()
	if !s.stopped {
		if s.stream != nil {
			s.state = StateReconnecting
		} else {
			s.state = StatePolling
		}
	}
	s.mu.Unlock()

	if s.stream != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.stream.Run(ctx, psxterminal.StreamEvents{
				OnOpen:   s.onStreamOpen,
				OnClose:  s.onStreamClose,
				OnBatch:  s.applyBatch,
				OnIgnore: s.onIgnoredFrame,
			})
		}()
	}

	s.pollLoop(ctx)
}

func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.streamOpen() {
				continue
			}
			s.pullAndApply(ctx, false)
		}
	}
}

func (s *Session) streamOpen() bool {
	return s.stream != nil && s.stream.IsOpen()
}

type pullResult struct {
	ticks   []models.Tick
	indices []models.IndexSnapshot
	breadth *models.MarketBreadth
	source  string
}

// pullAndApply fetches ticks, indices and breadth concurrently and merges
// whatever arrived. A failed pull only loses its own part.
func (s *Session) pullAndApply(ctx context.Context, bootstrap bool) {
	if s.puller == nil && s.scraper == nil {
		return
	}

	var res pullResult
	var g errgroup.Group
	g.Go(func() error {
		res.ticks, res.source = s.pullTicks(ctx)
		return nil
	})
	if s.puller != nil {
		g.Go(func() error {
			snaps, err := s.puller.FetchIndices(ctx)
			metrics.RecordPull(s.baseLog, "indices", len(snaps), err)
			if err != nil {
				s.log.WithError(err).Warn("index pull failed")
				return nil
			}
			res.indices = snaps
			return nil
		})
		g.Go(func() error {
			b, err := s.puller.FetchBreadth(ctx)
			metrics.RecordPull(s.baseLog, "breadth", 1, err)
			if err != nil {
				s.log.WithError(err).Debug("breadth pull failed")
				return nil
			}
			res.breadth = &b
			return nil
		})
	}
	_ = g.Wait()

	s.applyPull(res, bootstrap)
}

// pullTicks tries the REST board first and falls back to the scraped market
// watch when REST fails or returns nothing.
func (s *Session) pullTicks(ctx context.Context) ([]models.Tick, string) {
	if s.puller != nil {
		ticks, err := s.puller.FetchTicks(ctx)
		metrics.RecordPull(s.baseLog, "ticks", len(ticks), err)
		if err != nil {
			s.log.WithError(err).Warn("tick pull failed")
		} else if len(ticks) > 0 {
			return ticks, models.SourceREST.String()
		}
	}
	if s.scraper == nil || ctx.Err() != nil {
		return nil, ""
	}

	rows, err := s.scraper.Rows(ctx)
	metrics.RecordPull(s.baseLog, "scrape", len(rows), err)
	if err != nil {
		s.log.WithError(err).Warn("scrape fallback failed")
		return nil, ""
	}
	return normalizer.FromScrapedRows(rows), models.SourceScrape.String()
}

func (s *Session) applyPull(res pullResult, bootstrap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	// The stream carries fresher data than a pull that started before it opened.
	if !bootstrap && s.streamOpen() {
		s.pullsDropped.Add(1)
		s.log.Debug("discarding pull result; stream is open")
		return
	}

	applied := 0
	for _, t := range res.ticks {
		if t.Price > 0 {
			applied++
		}
	}
	if applied > 0 {
		s.instruments = s.engine.Merge(s.catalog.Instruments(), res.ticks)
		s.markLive()
		metrics.RecordTicksApplied(s.baseLog, res.source, applied)
	}
	if len(res.indices) > 0 {
		s.indices = reconcile.MergeIndices(s.indices, res.indices)
	}
	if res.breadth != nil {
		b := *res.breadth
		s.breadth = &b
	}

	logger.LogDataFlowEntry(s.log, res.source, "feed", applied, "ticks")
}

// markLive must be called with mu held.
func (s *Session) markLive() {
	s.live = true
	s.lastUpdated = s.now()
	metrics.SetLive(true)
}

func (s *Session) onStreamOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.state = StateStreaming
	metrics.RecordStreamOpen(s.baseLog)
	s.log.Info("push stream subscribed")
}

func (s *Session) onStreamClose(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.state = StateReconnecting
	metrics.RecordStreamClosed(s.baseLog)
}

func (s *Session) onIgnoredFrame() {
	s.framesIgnored.Add(1)
	metrics.RecordFrame("ignored")
}

func (s *Session) applyBatch(b psxterminal.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	instruments, n := s.engine.ApplyStream(s.instruments, b.Ticks)
	indices, m := reconcile.ApplyIndexStream(s.indices, b.Indices)
	if n+m == 0 {
		s.framesIgnored.Add(1)
		metrics.RecordFrame("unmatched")
		return
	}

	s.instruments = instruments
	s.indices = indices
	s.markLive()
	s.framesApplied.Add(1)
	metrics.RecordFrame("applied")
	metrics.RecordTicksApplied(s.baseLog, models.SourceStream.String(), n)
}

// Snapshot returns a deep copy of the current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Instruments: models.CloneInstruments(s.instruments),
		Indices:     append([]models.Index(nil), s.indices...),
		Freshness: models.Freshness{
			Live:        s.live,
			LastUpdated: s.lastUpdated,
			State:       s.state.String(),
		},
	}
	if s.breadth != nil {
		b := *s.breadth
		snap.Breadth = &b
	}
	return snap
}

// Instrument looks up one held instrument by symbol.
func (s *Session) Instrument(symbol string) (models.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instruments {
		if inst.Symbol == symbol {
			return inst.Clone(), true
		}
	}
	return models.Instrument{}, false
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats is sampled by the metrics reporter.
func (s *Session) Stats() metrics.FeedStats {
	s.mu.RLock()
	stats := metrics.FeedStats{
		State:       s.state.String(),
		Live:        s.live,
		Instruments: len(s.instruments),
		Indices:     len(s.indices),
	}
	if !s.lastUpdated.IsZero() {
		stats.SinceUpdate = s.now().Sub(s.lastUpdated)
	}
	s.mu.RUnlock()

	stats.StreamOpen = s.streamOpen()
	stats.FramesApplied = s.framesApplied.Load()
	stats.FramesIgnored = s.framesIgnored.Load()
	stats.PullsDropped = s.pullsDropped.Load()
	return stats
}
