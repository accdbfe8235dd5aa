package psxterminal

import (
	"encoding/json"

	"upwrdfin/internal/normalizer"
	"upwrdfin/models"
)

// Batch is the content of one push-stream frame split by market.
type Batch struct {
	Ticks   []models.Tick
	Indices []models.IndexSnapshot
}

// Empty reports whether the frame carried nothing usable.
func (b Batch) Empty() bool {
	return len(b.Ticks) == 0 && len(b.Indices) == 0
}

// ParseStreamMessage decodes a frame. Heartbeats, welcome messages and
// anything malformed return ok == false.
func ParseStreamMessage(data []byte) (Batch, bool) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return Batch{}, false
	}

	msgType, _ := msg["type"].(string)
	switch msgType {
	case "welcome", "pong", "ping", "heartbeat", "subscribed", "error":
		return Batch{}, false
	}
	payload, hasData := msg["data"]
	if msgType != "market-data" && (!hasData || payload == nil) {
		return Batch{}, false
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		items = []any{msg}
	}
	parentMarket, _ := msg["marketType"].(string)

	var batch Batch
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		market, _ := item["marketType"].(string)
		if market == "" {
			market = parentMarket
		}
		if market == models.MarketIndex {
			batch.Indices = append(batch.Indices, normalizer.IndexFromMap(item))
			continue
		}
		tick := normalizer.Normalize(models.RawRecord{Source: models.SourceStream, Fields: item})
		if tick.Symbol == "" {
			continue
		}
		batch.Ticks = append(batch.Ticks, tick)
	}

	if batch.Empty() {
		return Batch{}, false
	}
	return batch, true
}
