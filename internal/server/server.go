package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"upwrdfin/config"
	"upwrdfin/internal/feed"
	"upwrdfin/internal/metrics"
	"upwrdfin/internal/scrape"
	"upwrdfin/internal/signup"
	"upwrdfin/logger"
	"upwrdfin/models"
)

// MarketSource is the read side of the live feed session.
type MarketSource interface {
	Snapshot() feed.Snapshot
	Instrument(symbol string) (models.Instrument, bool)
	Quote(ctx context.Context, symbol string) (models.Instrument, error)
	Symbols(ctx context.Context) []string
	History(ctx context.Context, symbol string) (feed.History, error)
}

// ScrapeProxy fetches allow-listed data-portal endpoints.
type ScrapeProxy interface {
	Fetch(ctx context.Context, endpoint string) (scrape.Result, error)
}

// SignupRelay accepts waitlist submissions.
type SignupRelay interface {
	Submit(ctx context.Context, p signup.Payload) (signup.Submission, error)
}

// Deps are the components the routes read from. Any may be nil, in which
// case the matching routes answer 503.
type Deps struct {
	Market MarketSource
	Scrape ScrapeProxy
	Signup SignupRelay
}

// Server hosts the market-data API.
type Server struct {
	cfg           config.ServerConfig
	prometheus    bool
	deps          Deps
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	sampler       *hostSampler
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
	now           func() time.Time
}

// NewServer wires the API. Call Run to serve.
func NewServer(cfg config.ServerConfig, prometheus bool, deps Deps, log *logger.Log) (*Server, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}

	metricStore := newMetricStore(cfg.MetricsHistory)
	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:           cfg,
		prometheus:    prometheus,
		deps:          deps,
		log:           log,
		metricStore:   metricStore,
		logStore:      logStore,
		sampler:       newHostSampler(defaultSampleHistory, defaultSampleInterval, "/", log),
		metricHandler: metrics.RegisterMetricHandler(metricStore.handle),
		now:           time.Now,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down within the configured grace.
func (s *Server) Run(ctx context.Context) error {
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	if !s.cfg.DisableDebug {
		s.sampler.start(ctx)
		defer s.sampler.stop()
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithComponent("server").WithField("address", s.cfg.Address).Info("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
}

// Address reports the normalized listen address.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))
	router.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))
	// Trust no proxy headers; the client IP is only used for logging.
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", s.handleHealth)
	if s.prometheus {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	router.POST("/psx-data", s.handleScrape)

	api := router.Group("/api")
	{
		api.GET("/market", s.handleMarket)
		api.GET("/stocks", s.handleStocks)
		api.GET("/symbols", s.handleSymbols)
		api.GET("/stocks/:symbol", s.handleStock)
		api.GET("/stocks/:symbol/history", s.handleHistory)
		api.GET("/stocks/:symbol/chart.svg", s.handleChart)
		api.GET("/indices", s.handleIndices)
		api.GET("/status", s.handleStatus)
		api.POST("/signup", s.handleSignup)
	}

	if !s.cfg.DisableDebug {
		debug := router.Group("/debug")
		{
			debug.GET("/metrics", s.handleDebugMetrics)
			debug.GET("/logs", s.handleDebugLogs)
			debug.GET("/resources", s.handleDebugResources)
		}
	}

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Client-Info", "Apikey"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
