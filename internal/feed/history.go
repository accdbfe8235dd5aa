package feed

import (
	"context"

	"upwrdfin/internal/reader/psxterminal"
)

// History sources.
const (
	HistoryKlines = "klines"
	HistorySeries = "series"
)

// History is a close-price series for one symbol.
type History struct {
	Symbol string    `json:"symbol"`
	Source string    `json:"source"`
	Points []float64 `json:"points"`
}

// History returns kline closes when the candle endpoint answers with at least
// two candles, otherwise the instrument's held series.
func (s *Session) History(ctx context.Context, symbol string) (History, error) {
	inst, ok := s.Instrument(symbol)
	if !ok {
		return History{}, ErrUnknownSymbol
	}

	if s.puller != nil {
		klines, err := s.puller.FetchKlines(ctx, symbol, s.klineTimeframe, s.klineLimit)
		if err != nil {
			s.log.WithError(err).WithField("symbol", symbol).Debug("kline pull failed; using series")
		} else if closes := psxterminal.Closes(klines); len(closes) >= 2 {
			return History{Symbol: symbol, Source: HistoryKlines, Points: closes}, nil
		}
	}

	return History{Symbol: symbol, Source: HistorySeries, Points: inst.Series}, nil
}
