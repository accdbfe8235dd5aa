package reconcile

import "upwrdfin/models"

// ApplyStream updates only the instruments addressed by ticks, in arrival
// order. Ticks without a positive price or for symbols not already held are
// skipped. It returns the updated copy and how many ticks were applied.
func (e *Engine) ApplyStream(held []models.Instrument, ticks []models.Tick) ([]models.Instrument, int) {
	out := models.CloneInstruments(held)
	if len(ticks) == 0 {
		return out, 0
	}

	pos := make(map[string]int, len(out))
	for i, inst := range out {
		pos[inst.Symbol] = i
	}

	applied := 0
	for _, t := range ticks {
		if t.Price <= 0 {
			continue
		}
		i, ok := pos[t.Symbol]
		if !ok {
			continue
		}
		existing := out[i]
		out[i] = e.ToInstrument(t, &existing)
		applied++
	}
	return out, applied
}
