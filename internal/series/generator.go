// Package series produces the short decorative price histories rendered as
// sparklines. They are not market history.
package series

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// stepScale and stepDamping bound each walk step to at most 0.15% of price.
const (
	stepScale   = 0.01
	stepDamping = 0.3
)

// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator seeds from the clock.
func NewGenerator() *Generator {
	seed := uint64(time.Now().UnixNano())
	return NewSeededGenerator(seed, seed>>1|1)
}

// NewSeededGenerator returns a generator with a deterministic sequence.
func NewSeededGenerator(seed1, seed2 uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (g *Generator) float() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

// Generate returns n points ending exactly at price. The walk starts from the
// implied open (price - change) and every step moves in the direction of
// change by a random fraction of price.
func (g *Generator) Generate(price, change float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, 0, n)
	up := change >= 0
	p := price - change
	for i := 0; i < n-1; i++ {
		delta := math.Abs((g.float()-0.5)*price*stepScale) * stepDamping
		if up {
			p += delta
		} else {
			p -= delta
		}
		out = append(out, p)
	}
	return append(out, price)
}

// Slide shifts the window by one and appends price, keeping at most n points.
// A window shorter than n grows instead of shifting.
func Slide(window []float64, price float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, 0, n)
	start := 0
	if len(window) >= n {
		start = len(window) - n + 1
	}
	out = append(out, window[start:]...)
	return append(out, price)
}
