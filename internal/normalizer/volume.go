package normalizer

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// FormatVolume compacts a traded quantity: 1.2M, 3.4K, or the plain integer.
func FormatVolume(v float64) string {
	switch {
	case v >= 1e6:
		return decimal.NewFromFloat(v/1e6).StringFixed(1) + "M"
	case v >= 1e3:
		return decimal.NewFromFloat(v/1e3).StringFixed(1) + "K"
	case v <= 0:
		return "0"
	default:
		return strconv.FormatFloat(float64(int64(v)), 'f', -1, 64)
	}
}
