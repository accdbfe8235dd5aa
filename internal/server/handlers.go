package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"upwrdfin/internal/catalog"
	"upwrdfin/internal/feed"
	"upwrdfin/internal/metrics"
	"upwrdfin/internal/scrape"
	"upwrdfin/internal/series"
	"upwrdfin/internal/signup"
	"upwrdfin/logger"
	"upwrdfin/models"
)

const (
	defaultChartWidth  = 120
	defaultChartHeight = 40
	maxChartDimension  = 2000
)

func unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "service unavailable"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleMarket(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	snap := s.deps.Market.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"instruments":  snap.Instruments,
		"indices":      snap.Indices,
		"breadth":      snap.Breadth,
		"live":         snap.Live,
		"lastUpdated":  formatTime(snap.LastUpdated),
		"state":        snap.State,
		"marketStatus": catalog.MarketStatus(s.now()),
	})
}

// handleStocks lists instruments, optionally filtered by ?sector= or a
// case-insensitive ?q= match on symbol or name.
func (s *Server) handleStocks(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	snap := s.deps.Market.Snapshot()

	sectorFilter := strings.TrimSpace(c.Query("sector"))
	query := strings.ToUpper(strings.TrimSpace(c.Query("q")))

	stocks := make([]models.Instrument, 0, len(snap.Instruments))
	for _, inst := range snap.Instruments {
		if sectorFilter != "" && !strings.EqualFold(inst.Sector, sectorFilter) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToUpper(inst.Symbol), query) && !strings.Contains(strings.ToUpper(inst.Name), query) {
			continue
		}
		stocks = append(stocks, inst)
	}

	c.JSON(http.StatusOK, gin.H{
		"stocks":      stocks,
		"live":        snap.Live,
		"lastUpdated": formatTime(snap.LastUpdated),
	})
}

// symbolParam returns the path symbol as written; symbols are case-sensitive.
func symbolParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("symbol"))
}

func (s *Server) handleSymbols(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": s.deps.Market.Symbols(c.Request.Context())})
}

func (s *Server) handleStock(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	inst, err := s.deps.Market.Quote(c.Request.Context(), symbolParam(c))
	if err != nil {
		if errors.Is(err, feed.ErrUnknownSymbol) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown symbol"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	h, err := s.deps.Market.History(c.Request.Context(), symbolParam(c))
	if err != nil {
		if errors.Is(err, feed.ErrUnknownSymbol) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown symbol"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) handleChart(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	inst, ok := s.deps.Market.Instrument(symbolParam(c))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	w := dimension(c.Query("width"), defaultChartWidth)
	h := dimension(c.Query("height"), defaultChartHeight)
	svg := series.SVG(inst.Series, w, h, inst.Change >= 0)

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/svg+xml", []byte(svg))
}

func dimension(raw string, fallback float64) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > maxChartDimension {
		return fallback
	}
	return v
}

func (s *Server) handleIndices(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	snap := s.deps.Market.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"indices": snap.Indices,
		"breadth": snap.Breadth,
		"live":    snap.Live,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.deps.Market == nil {
		unavailable(c)
		return
	}
	snap := s.deps.Market.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"live":         snap.Live,
		"lastUpdated":  formatTime(snap.LastUpdated),
		"state":        snap.State,
		"marketStatus": catalog.MarketStatus(s.now()),
	})
}

type scrapeRequest struct {
	Endpoint string `json:"endpoint"`
}

// handleScrape is the data-portal proxy: {endpoint} in, {success, data} out.
func (s *Server) handleScrape(c *gin.Context) {
	if s.deps.Scrape == nil {
		unavailable(c)
		return
	}

	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid endpoint"})
		return
	}

	res, err := s.deps.Scrape.Fetch(c.Request.Context(), req.Endpoint)
	if errors.Is(err, scrape.ErrInvalidEndpoint) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid endpoint"})
		return
	}
	metrics.RecordScrape(s.log, err)

	var upstream *scrape.UpstreamError
	switch {
	case errors.As(err, &upstream):
		c.JSON(upstream.Status, gin.H{"success": false, "error": upstream.Error()})
	case err != nil:
		s.log.WithComponent("server").WithError(err).WithField("endpoint", req.Endpoint).Error("scrape proxy failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "data": res.Data()})
	}
}

func (s *Server) handleSignup(c *gin.Context) {
	if s.deps.Signup == nil {
		unavailable(c)
		return
	}

	var p signup.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	sub, err := s.deps.Signup.Submit(c.Request.Context(), p)
	var verr *signup.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": verr.Error(), "fields": verr.Fields})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "id": sub.ID})
	}
}

func (s *Server) handleDebugMetrics(c *gin.Context) {
	snapshot := s.metricStore.snapshot()
	payload := make([]gin.H, 0, len(snapshot))
	for _, m := range snapshot {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"type":      m.Type,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func (s *Server) handleDebugLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot(), "counts": logger.Counts()})
}

func (s *Server) handleDebugResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.sampler.snapshot()})
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
