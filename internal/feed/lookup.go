package feed

import (
	"context"
	"sort"

	"upwrdfin/internal/reconcile"
	"upwrdfin/models"
)

// Quote returns the held instrument for symbol. Symbols outside the held
// collection are looked up on the tick endpoint and converted on the fly;
// the result is not merged into the session.
func (s *Session) Quote(ctx context.Context, symbol string) (models.Instrument, error) {
	if inst, ok := s.Instrument(symbol); ok {
		return inst, nil
	}
	if s.puller == nil {
		return models.Instrument{}, ErrUnknownSymbol
	}

	t, err := s.puller.FetchTick(ctx, symbol)
	if err != nil {
		s.log.WithError(err).WithField("symbol", symbol).Debug("single tick pull failed")
		return models.Instrument{}, ErrUnknownSymbol
	}
	// The endpoint may echo a different casing or an empty symbol.
	if t.Symbol != symbol || !reconcile.Admissible(t) {
		return models.Instrument{}, ErrUnknownSymbol
	}
	return s.engine.ToInstrument(t, nil), nil
}

// Symbols lists the upstream symbol universe, falling back to the held
// symbols when the listing is unavailable.
func (s *Session) Symbols(ctx context.Context) []string {
	if s.puller != nil {
		syms, err := s.puller.FetchSymbols(ctx)
		if err == nil && len(syms) > 0 {
			return syms
		}
		if err != nil {
			s.log.WithError(err).Debug("symbol list pull failed; using held symbols")
		}
	}

	s.mu.RLock()
	out := make([]string, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, inst.Symbol)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
