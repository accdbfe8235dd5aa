package series

import (
	"testing"
)

func TestGenerateEndsAtPrice(t *testing.T) {
	g := NewSeededGenerator(1, 2)
	got := g.Generate(100, 5, 11)
	if len(got) != 11 {
		t.Fatalf("expected 11 points, got %d", len(got))
	}
	if got[len(got)-1] != 100 {
		t.Fatalf("last point = %v, want 100", got[len(got)-1])
	}
}

func TestGenerateDirectionFollowsChange(t *testing.T) {
	g := NewSeededGenerator(7, 9)

	up := g.Generate(100, 5, 11)
	for i := 1; i < len(up)-1; i++ {
		if up[i] < up[i-1] {
			t.Fatalf("up series decreased at %d: %v", i, up)
		}
	}
	if up[0] < 95 {
		t.Fatalf("up series should start at or above the implied open: %v", up[0])
	}

	down := g.Generate(100, -5, 11)
	for i := 1; i < len(down)-1; i++ {
		if down[i] > down[i-1] {
			t.Fatalf("down series increased at %d: %v", i, down)
		}
	}
}

func TestGenerateSmallCounts(t *testing.T) {
	g := NewSeededGenerator(1, 1)
	if got := g.Generate(10, 1, 0); len(got) != 0 {
		t.Fatalf("n=0 should be empty, got %v", got)
	}
	if got := g.Generate(10, 1, 1); len(got) != 1 || got[0] != 10 {
		t.Fatalf("n=1 should be [price], got %v", got)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	a := NewSeededGenerator(3, 4).Generate(50, 1, 11)
	b := NewSeededGenerator(3, 4).Generate(50, 1, 11)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seeded generators diverged at %d", i)
		}
	}
}

func TestSlide(t *testing.T) {
	tests := []struct {
		name   string
		window []float64
		price  float64
		n      int
		want   []float64
	}{
		{"full window shifts", []float64{1, 2, 3}, 4, 3, []float64{2, 3, 4}},
		{"short window grows", []float64{1}, 2, 3, []float64{1, 2}},
		{"empty window", nil, 5, 3, []float64{5}},
		{"oversized window trims", []float64{1, 2, 3, 4, 5}, 6, 3, []float64{4, 5, 6}},
		{"zero length", []float64{1, 2}, 3, 0, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slide(tt.window, tt.price, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("Slide = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Slide = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSlideDoesNotAliasInput(t *testing.T) {
	in := []float64{1, 2, 3}
	out := Slide(in, 4, 3)
	out[0] = 99
	if in[1] != 2 {
		t.Fatalf("Slide mutated its input: %v", in)
	}
}
