// Package reconcile merges the baseline catalog with live ticks and index
// snapshots. Every function here is pure: inputs are never mutated and the
// returned slices share no memory with them.
package reconcile

import (
	"upwrdfin/internal/normalizer"
	"upwrdfin/internal/sector"
	"upwrdfin/internal/series"
	"upwrdfin/models"
)

const (
	// MarketCapUnknown is shown for listings the catalog does not know.
	MarketCapUnknown = "-"

	high52wFactor = 1.15
	low52wFactor  = 0.85
)

// SeriesSource produces a synthetic series for an instrument without history.
type SeriesSource interface {
	Generate(price, change float64, n int) []float64
}

// Engine carries the settings shared by every merge.
type Engine struct {
	gen    SeriesSource
	points int
}

// NewEngine returns an engine producing series of the given length.
func NewEngine(gen SeriesSource, points int) *Engine {
	if points < 2 {
		points = models.DefaultSeriesPoints
	}
	return &Engine{gen: gen, points: points}
}

// Merge overlays ticks onto catalog. Catalog order is kept and every catalog
// symbol appears exactly once; a catalog entry is replaced only by a tick with
// a strictly positive price. Ticks for unknown symbols are appended in order of
// first appearance when their price is positive and the symbol is short enough.
// When a symbol repeats within ticks the last tick wins.
func (e *Engine) Merge(catalog []models.Instrument, ticks []models.Tick) []models.Instrument {
	latest := make(map[string]models.Tick, len(ticks))
	order := make([]string, 0, len(ticks))
	for _, t := range ticks {
		if _, seen := latest[t.Symbol]; !seen {
			order = append(order, t.Symbol)
		}
		latest[t.Symbol] = t
	}

	known := make(map[string]struct{}, len(catalog))
	merged := make([]models.Instrument, 0, len(catalog)+len(order))
	for _, c := range catalog {
		known[c.Symbol] = struct{}{}
		if live, ok := latest[c.Symbol]; ok && live.Price > 0 {
			existing := c
			merged = append(merged, e.ToInstrument(live, &existing))
			continue
		}
		merged = append(merged, c.Clone())
	}

	for _, sym := range order {
		if _, ok := known[sym]; ok {
			continue
		}
		live := latest[sym]
		if !Admissible(live) {
			continue
		}
		merged = append(merged, e.ToInstrument(live, nil))
	}
	return merged
}

// Admissible reports whether a tick for an unknown symbol may become a new listing.
func Admissible(t models.Tick) bool {
	return t.Price > 0 && t.Symbol != "" && len(t.Symbol) <= models.MaxSymbolLength
}

// ToInstrument builds the display row for a live tick. existing, when not nil,
// supplies the fields live data lacks: display name, market cap, 52-week
// bounds, the sector fallback and the series window.
func (e *Engine) ToInstrument(t models.Tick, existing *models.Instrument) models.Instrument {
	changePercent := t.ChangePercent
	if changePercent == 0 {
		changePercent = normalizer.PercentOf(t.Change, t.Open)
	}

	inst := models.Instrument{
		Symbol:        t.Symbol,
		Price:         t.Price,
		Change:        normalizer.Round2(t.Change),
		ChangePercent: normalizer.Round2(changePercent),
		Volume:        normalizer.FormatVolume(t.Volume),
		MarketCap:     MarketCapUnknown,
	}

	fallbackSector := ""
	switch {
	case existing != nil && existing.Name != "":
		inst.Name = existing.Name
	case t.Name != "":
		inst.Name = t.Name
	default:
		inst.Name = t.Symbol
	}

	if existing != nil {
		if existing.MarketCap != "" {
			inst.MarketCap = existing.MarketCap
		}
		fallbackSector = existing.Sector
	}
	inst.Sector = sector.Resolve(t.Sector, fallbackSector)

	inst.High52w = bound(t.High, existing, func(i *models.Instrument) float64 { return i.High52w }, t.Price*high52wFactor)
	inst.Low52w = bound(t.Low, existing, func(i *models.Instrument) float64 { return i.Low52w }, t.Price*low52wFactor)

	if existing != nil && len(existing.Series) > 0 {
		inst.Series = series.Slide(existing.Series, t.Price, e.points)
	} else {
		inst.Series = e.gen.Generate(t.Price, t.Change, e.points)
	}
	return inst
}

func bound(live float64, existing *models.Instrument, held func(*models.Instrument) float64, synthetic float64) float64 {
	if live > 0 {
		return live
	}
	if existing != nil {
		if v := held(existing); v > 0 {
			return v
		}
	}
	return synthetic
}
