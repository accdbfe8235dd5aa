package reconcile

import (
	"strings"

	"upwrdfin/models"
)

// Canonical index names.
const (
	KSE100   = "KSE-100"
	KSE30    = "KSE-30"
	KMI30    = "KMI-30"
	AllShare = "KSE All Share"
)

// IndexName maps an upstream index symbol onto a canonical name. Rules are
// tried in order and the first match wins.
func IndexName(symbol string) (string, bool) {
	sym := strings.ToUpper(symbol)
	switch {
	case strings.Contains(sym, "100"):
		return KSE100, true
	case strings.Contains(sym, "KSE") && strings.Contains(sym, "30"):
		return KSE30, true
	case strings.Contains(sym, "KMI"):
		return KMI30, true
	case strings.Contains(sym, "ALLSHR"):
		return AllShare, true
	default:
		return "", false
	}
}

// MergeIndices upserts snapshots into held by canonical name. Held order is
// kept, names seen for the first time are appended, unmatched snapshots are
// dropped.
func MergeIndices(held []models.Index, snaps []models.IndexSnapshot) []models.Index {
	out, _ := applyIndices(held, snaps, true)
	return out
}

// ApplyIndexStream updates only indices already held.
func ApplyIndexStream(held []models.Index, snaps []models.IndexSnapshot) ([]models.Index, int) {
	return applyIndices(held, snaps, false)
}

func applyIndices(held []models.Index, snaps []models.IndexSnapshot, insert bool) ([]models.Index, int) {
	out := make([]models.Index, len(held), len(held)+len(snaps))
	copy(out, held)

	pos := make(map[string]int, len(out))
	for i, idx := range out {
		pos[idx.Name] = i
	}

	applied := 0
	for _, s := range snaps {
		key := s.Symbol
		if key == "" {
			key = s.Name
		}
		name, ok := IndexName(key)
		if !ok {
			continue
		}
		idx := models.Index{
			Name:          name,
			Value:         s.Current,
			Change:        s.Change,
			ChangePercent: s.ChangePercent,
		}
		if i, exists := pos[name]; exists {
			out[i] = idx
			applied++
			continue
		}
		if insert {
			pos[name] = len(out)
			out = append(out, idx)
			applied++
		}
	}
	return out, applied
}
