package scrape

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"upwrdfin/internal/normalizer"
	"upwrdfin/models"
)

const (
	fullRowCells    = 10
	minimalRowCells = 6
	maxScrapedSym   = 10
)

var (
	rowPattern    = regexp.MustCompile(`(?is)<tr(\s[^>]*)?>(.*?)</tr>`)
	cellPattern   = regexp.MustCompile(`(?is)<td(?:\s[^>]*)?>(.*?)</td>`)
	symbolAttr    = regexp.MustCompile(`(?i)data-symbol\s*=\s*"([^"]*)"`)
	headerPattern = regexp.MustCompile(`(?i)^(SYMBOL|SECTOR|S#)`)

	stripPolicy = bluemonday.StrictPolicy()
)

// ParseMarketWatch extracts rows from the market-watch HTML table. Rows with
// ten or more cells are read positionally as symbol, sector, ldcp, open, high,
// low, current, change, change%, volume. Rows with six to nine cells yield a
// partial record read from the trailing cells. Header rows and anything
// without a plausible symbol are skipped.
func ParseMarketWatch(page string) []models.ScrapedRow {
	rows := make([]models.ScrapedRow, 0)
	for _, m := range rowPattern.FindAllStringSubmatch(page, -1) {
		attrs, body := m[1], m[2]

		cellMatches := cellPattern.FindAllStringSubmatch(body, -1)
		if len(cellMatches) < minimalRowCells {
			continue
		}
		cells := make([]string, len(cellMatches))
		for i, cm := range cellMatches {
			cells[i] = cleanCell(cm[1])
		}

		symbol := cells[0]
		if am := symbolAttr.FindStringSubmatch(attrs); am != nil {
			if s := strings.TrimSpace(am[1]); s != "" {
				symbol = s
			}
		}
		if symbol == "" || len(symbol) > maxScrapedSym || headerPattern.MatchString(symbol) {
			continue
		}

		n := len(cells)
		if n >= fullRowCells {
			rows = append(rows, models.ScrapedRow{
				Symbol:        symbol,
				Sector:        cells[1],
				LDCP:          normalizer.ToNumber(cells[2]),
				Open:          normalizer.ToNumber(cells[3]),
				High:          normalizer.ToNumber(cells[4]),
				Low:           normalizer.ToNumber(cells[5]),
				Current:       normalizer.ToNumber(cells[6]),
				Change:        normalizer.ToNumber(cells[7]),
				ChangePercent: normalizer.ToNumber(cells[8]),
				Volume:        normalizer.ToNumber(cells[9]),
			})
			continue
		}

		row := models.ScrapedRow{
			Symbol:  symbol,
			LDCP:    normalizer.ToNumber(cells[n-5]),
			Open:    normalizer.ToNumber(cells[n-5]),
			High:    normalizer.ToNumber(cells[n-4]),
			Low:     normalizer.ToNumber(cells[n-3]),
			Current: normalizer.ToNumber(cells[n-2]),
			Change:  normalizer.ToNumber(cells[n-1]),
		}
		if n > 7 {
			row.Sector = cells[1]
		}
		rows = append(rows, row)
	}
	return rows
}

func cleanCell(raw string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}
