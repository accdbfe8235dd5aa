// Package catalog holds the baseline instruments and indices that are always
// shown, live data or not.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"upwrdfin/internal/normalizer"
	"upwrdfin/internal/sector"
	"upwrdfin/models"
)

//go:embed instruments.yaml
var defaultCatalog []byte

// SeriesSource fills in missing baseline series.
type SeriesSource interface {
	Generate(price, change float64, n int) []float64
}

type entry struct {
	Symbol    string    `yaml:"symbol"`
	Name      string    `yaml:"name"`
	Sector    string    `yaml:"sector"`
	MarketCap string    `yaml:"market_cap"`
	Price     float64   `yaml:"price"`
	Change    float64   `yaml:"change"`
	Volume    string    `yaml:"volume"`
	High52w   float64   `yaml:"high_52w"`
	Low52w    float64   `yaml:"low_52w"`
	Series    []float64 `yaml:"series"`
}

type file struct {
	Instruments []entry        `yaml:"instruments"`
	Indices     []models.Index `yaml:"indices"`
}

// Catalog is immutable after construction; accessors hand out copies.
type Catalog struct {
	instruments []models.Instrument
	indices     []models.Index
	bySymbol    map[string]int
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string, gen SeriesSource, points int) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = raw
	}
	return Parse(data, gen, points)
}

// Default returns the embedded catalog. It panics only if the embedded file is broken.
func Default(gen SeriesSource, points int) *Catalog {
	c, err := Parse(defaultCatalog, gen, points)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog invalid: %v", err))
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte, gen SeriesSource, points int) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if points < 2 {
		points = models.DefaultSeriesPoints
	}

	c := &Catalog{
		instruments: make([]models.Instrument, 0, len(f.Instruments)),
		indices:     append([]models.Index(nil), f.Indices...),
		bySymbol:    make(map[string]int, len(f.Instruments)),
	}

	for i, e := range f.Instruments {
		sym := strings.TrimSpace(e.Symbol)
		switch {
		case sym == "":
			return nil, fmt.Errorf("instrument %d: symbol is required", i)
		case len(sym) > models.MaxSymbolLength:
			return nil, fmt.Errorf("instrument %s: symbol longer than %d characters", sym, models.MaxSymbolLength)
		case e.Price < 0:
			return nil, fmt.Errorf("instrument %s: price must not be negative", sym)
		}
		if _, dup := c.bySymbol[sym]; dup {
			return nil, fmt.Errorf("instrument %s: duplicate symbol", sym)
		}

		inst := models.Instrument{
			Symbol:        sym,
			Name:          e.Name,
			Price:         e.Price,
			Change:        normalizer.Round2(e.Change),
			ChangePercent: normalizer.Round2(normalizer.PercentOf(e.Change, e.Price-e.Change)),
			Volume:        e.Volume,
			MarketCap:     e.MarketCap,
			High52w:       e.High52w,
			Low52w:        e.Low52w,
			Sector:        e.Sector,
			Series:        e.Series,
		}
		if inst.Name == "" {
			inst.Name = sym
		}
		// Upstream sector names and codes are folded into the taxonomy;
		// anything else is kept as written.
		if sector.Known(inst.Sector) {
			inst.Sector = sector.Resolve(inst.Sector, "")
		}
		if inst.MarketCap == "" {
			inst.MarketCap = "-"
		}
		if inst.Volume == "" {
			inst.Volume = "0"
		}
		if len(inst.Series) == 0 && gen != nil && inst.Price > 0 {
			inst.Series = gen.Generate(inst.Price, inst.Change, points)
		}

		c.bySymbol[sym] = len(c.instruments)
		c.instruments = append(c.instruments, inst)
	}

	seen := make(map[string]struct{}, len(c.indices))
	for _, idx := range c.indices {
		if idx.Name == "" {
			return nil, fmt.Errorf("index name is required")
		}
		if _, dup := seen[idx.Name]; dup {
			return nil, fmt.Errorf("index %s: duplicate name", idx.Name)
		}
		seen[idx.Name] = struct{}{}
	}
	return c, nil
}

// Instruments returns a copy of the baseline instruments in catalog order.
func (c *Catalog) Instruments() []models.Instrument {
	return models.CloneInstruments(c.instruments)
}

// Indices returns a copy of the baseline indices.
func (c *Catalog) Indices() []models.Index {
	return append([]models.Index(nil), c.indices...)
}

// Len is the number of baseline instruments.
func (c *Catalog) Len() int {
	return len(c.instruments)
}
