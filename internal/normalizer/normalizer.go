// Package normalizer converts the loosely-shaped upstream market records into
// the canonical models.Tick. Conversion never fails: missing or malformed
// numbers become 0 and missing strings become "".
package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"upwrdfin/models"
)

var (
	priceKeys         = []string{"current", "price", "close", "last"}
	changeKeys        = []string{"change", "netChange"}
	changePercentKeys = []string{"changePercent", "percentChange", "changePer"}
	volumeKeys        = []string{"volume", "vol"}
	tradesKeys        = []string{"trades", "numberOfTrades"}
	valueKeys         = []string{"value", "turnover"}
	bidKeys           = []string{"bid", "bestBid"}
	askKeys           = []string{"ask", "bestAsk"}
	ldcpKeys          = []string{"ldcp", "previousClose"}
	symbolKeys        = []string{"symbol", "ticker"}
	nameKeys          = []string{"name", "companyName", "symbol"}
	sectorKeys        = []string{"sector", "sectorName"}

	indexValueKeys = []string{"current", "price", "close", "value"}
)

// Normalize dispatches on the record's source tag.
func Normalize(rec models.RawRecord) models.Tick {
	switch rec.Source {
	case models.SourceStream:
		return FromStream(rec.Fields)
	case models.SourceScrape:
		return FromScraped(rec.Row)
	default:
		return FromREST(rec.Fields)
	}
}

// FromREST converts one element of the stats pull endpoint.
func FromREST(m map[string]any) models.Tick {
	return fromFields(m)
}

// FromStream converts one item of a push-stream batch. Stream items use the
// same aliases as the pull endpoint but may omit the market type.
func FromStream(m map[string]any) models.Tick {
	return fromFields(m)
}

func fromFields(m map[string]any) models.Tick {
	t := models.Tick{
		Symbol:     strings.TrimSpace(pickString(m, symbolKeys...)),
		Name:       strings.TrimSpace(pickString(m, nameKeys...)),
		Price:      pickNumber(m, priceKeys...),
		Open:       ToNumber(m["open"]),
		High:       ToNumber(m["high"]),
		Low:        ToNumber(m["low"]),
		Close:      ToNumber(m["close"]),
		Change:     pickNumber(m, changeKeys...),
		Volume:     pickNumber(m, volumeKeys...),
		Trades:     pickNumber(m, tradesKeys...),
		Value:      pickNumber(m, valueKeys...),
		Bid:        pickNumber(m, bidKeys...),
		Ask:        pickNumber(m, askKeys...),
		LDCP:       pickNumber(m, ldcpKeys...),
		Sector:     strings.TrimSpace(pickString(m, sectorKeys...)),
		MarketType: pickString(m, "marketType"),
		State:      pickString(m, "state", "st"),
	}
	if t.MarketType == "" {
		t.MarketType = models.MarketRegular
	}
	t.ChangePercent = pickNumber(m, changePercentKeys...)
	if t.ChangePercent == 0 {
		t.ChangePercent = PercentOf(t.Change, t.Open)
	}
	return t
}

// FromScraped converts a market-watch table row. The table's change column is
// unreliable, so it is recomputed from open when it came through empty.
func FromScraped(row models.ScrapedRow) models.Tick {
	t := models.Tick{
		Symbol:        strings.TrimSpace(row.Symbol),
		Name:          strings.TrimSpace(row.Symbol),
		Price:         row.Current,
		Open:          row.Open,
		High:          row.High,
		Low:           row.Low,
		Change:        row.Change,
		ChangePercent: row.ChangePercent,
		Volume:        row.Volume,
		LDCP:          row.LDCP,
		Sector:        strings.TrimSpace(row.Sector),
		MarketType:    models.MarketRegular,
	}
	if t.Change == 0 && t.Open > 0 && t.Price > 0 {
		t.Change = t.Price - t.Open
	}
	if t.ChangePercent == 0 {
		t.ChangePercent = PercentOf(t.Change, t.Open)
	}
	return t
}

// FromScrapedRows converts every row.
func FromScrapedRows(rows []models.ScrapedRow) []models.Tick {
	out := make([]models.Tick, 0, len(rows))
	for _, r := range rows {
		out = append(out, Normalize(models.RawRecord{Source: models.SourceScrape, Row: r}))
	}
	return out
}

// IndexFromMap converts one element of the index pull endpoint or an index
// item from the push stream.
func IndexFromMap(m map[string]any) models.IndexSnapshot {
	s := models.IndexSnapshot{
		Symbol:        strings.TrimSpace(pickString(m, symbolKeys...)),
		Name:          strings.TrimSpace(pickString(m, "name", "symbol")),
		Current:       pickNumber(m, indexValueKeys...),
		Change:        pickNumber(m, changeKeys...),
		ChangePercent: pickNumber(m, changePercentKeys...),
		High:          ToNumber(m["high"]),
		Low:           ToNumber(m["low"]),
		Open:          ToNumber(m["open"]),
		Volume:        ToNumber(m["volume"]),
	}
	if s.ChangePercent == 0 {
		s.ChangePercent = PercentOf(s.Change, s.Open)
	}
	return s
}

// BreadthFromMap converts the breadth pull endpoint payload.
func BreadthFromMap(m map[string]any) models.MarketBreadth {
	return models.MarketBreadth{
		TotalSymbols: int(pickNumber(m, "total", "totalSymbols")),
		Advancers:    int(pickNumber(m, "advancers", "advancing")),
		Decliners:    int(pickNumber(m, "decliners", "declining")),
		Unchanged:    int(pickNumber(m, "unchanged", "neutral")),
		TotalVolume:  pickNumber(m, "totalVolume", "volume"),
		TotalValue:   pickNumber(m, "totalValue", "value"),
	}
}

// ToNumber coerces v to a float. Strings may carry thousands separators or a
// trailing percent sign; anything unparseable yields 0.
func ToNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		s = strings.TrimSuffix(s, "%")
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// PercentOf returns change as a percentage of base, or 0 when base is not positive.
func PercentOf(change, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return change / base * 100
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// pickNumber returns the first alias that coerces to a non-zero number.
func pickNumber(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if f := ToNumber(m[k]); f != 0 {
			return f
		}
	}
	return 0
}

// pickString returns the first alias holding a non-empty string. Numeric
// values are formatted so symbols like 100 survive a numeric encoding.
func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			if v != 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
