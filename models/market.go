package models

import (
	"time"
)

const (
	// MaxSymbolLength bounds symbols admitted from live feeds that are not in the catalog.
	MaxSymbolLength = 8
	// DefaultSeriesPoints is the length of the sparkline window.
	DefaultSeriesPoints = 11

	MarketRegular = "REG"
	MarketIndex   = "IDX"
)

// Source tags the upstream shape a raw record came from.
type Source int

const (
	SourceREST Source = iota
	SourceStream
	SourceScrape
)

func (s Source) String() string {
	switch s {
	case SourceREST:
		return "rest"
	case SourceStream:
		return "stream"
	case SourceScrape:
		return "scrape"
	default:
		return "unknown"
	}
}

// RawRecord is one loosely-shaped upstream record. Fields holds decoded JSON
// for the REST and stream variants; Row holds the extracted cells for scrapes.
type RawRecord struct {
	Source Source
	Fields map[string]any
	Row    ScrapedRow
}

// Tick is the normalized form of a single upstream record.
type Tick struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	Price         float64 `json:"price"`
	Open          float64 `json:"open,omitempty"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	Close         float64 `json:"close,omitempty"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        float64 `json:"volume"`
	Trades        float64 `json:"trades,omitempty"`
	Value         float64 `json:"value,omitempty"`
	Bid           float64 `json:"bid,omitempty"`
	Ask           float64 `json:"ask,omitempty"`
	LDCP          float64 `json:"ldcp,omitempty"`
	Sector        string  `json:"sector,omitempty"`
	MarketType    string  `json:"marketType"`
	State         string  `json:"state,omitempty"`
}

// Instrument is what consumers render: one row per symbol.
type Instrument struct {
	Symbol        string    `json:"symbol" yaml:"symbol"`
	Name          string    `json:"name" yaml:"name"`
	Price         float64   `json:"price" yaml:"price"`
	Change        float64   `json:"change" yaml:"change"`
	ChangePercent float64   `json:"changePercent" yaml:"change_percent"`
	Volume        string    `json:"volume" yaml:"volume"`
	MarketCap     string    `json:"marketCap" yaml:"market_cap"`
	High52w       float64   `json:"high52w" yaml:"high_52w"`
	Low52w        float64   `json:"low52w" yaml:"low_52w"`
	Sector        string    `json:"sector" yaml:"sector"`
	Series        []float64 `json:"series" yaml:"series"`
}

// Clone returns a copy that shares no memory with the receiver.
func (i Instrument) Clone() Instrument {
	if i.Series != nil {
		i.Series = append([]float64(nil), i.Series...)
	}
	return i
}

// CloneInstruments deep-copies a slice of instruments.
func CloneInstruments(in []Instrument) []Instrument {
	if in == nil {
		return nil
	}
	out := make([]Instrument, len(in))
	for idx := range in {
		out[idx] = in[idx].Clone()
	}
	return out
}

// IndexSnapshot is a normalized upstream index record.
type IndexSnapshot struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	Current       float64 `json:"current"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          float64 `json:"high,omitempty"`
	Low           float64 `json:"low,omitempty"`
	Open          float64 `json:"open,omitempty"`
	Volume        float64 `json:"volume,omitempty"`
}

// Index is a display index keyed by its canonical name.
type Index struct {
	Name          string  `json:"name" yaml:"name"`
	Value         float64 `json:"value" yaml:"value"`
	Change        float64 `json:"change" yaml:"change"`
	ChangePercent float64 `json:"changePercent" yaml:"change_percent"`
}

// MarketBreadth summarises advancers and decliners for the session.
type MarketBreadth struct {
	TotalSymbols int     `json:"totalSymbols"`
	Advancers    int     `json:"advancers"`
	Decliners    int     `json:"decliners"`
	Unchanged    int     `json:"unchanged"`
	TotalVolume  float64 `json:"totalVolume"`
	TotalValue   float64 `json:"totalValue"`
}

// ScrapedRow is one market-watch table row extracted from HTML.
type ScrapedRow struct {
	Symbol        string  `json:"symbol"`
	Sector        string  `json:"sector"`
	LDCP          float64 `json:"ldcp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Current       float64 `json:"current"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        float64 `json:"volume"`
}

// Kline is one candle from the history endpoint.
type Kline struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Freshness reports whether data is upstream-confirmed.
type Freshness struct {
	Live        bool      `json:"live"`
	LastUpdated time.Time `json:"lastUpdated"`
	State       string    `json:"state"`
}
