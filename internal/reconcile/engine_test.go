package reconcile

import (
	"math"
	"testing"

	"upwrdfin/models"
)

type flatSeries struct{}

func (flatSeries) Generate(price, change float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price - change
	}
	if n > 0 {
		out[n-1] = price
	}
	return out
}

func newTestEngine() *Engine {
	return NewEngine(flatSeries{}, 5)
}

func catalogFixture() []models.Instrument {
	return []models.Instrument{
		{Symbol: "OGDC", Name: "Oil & Gas Dev", Price: 100, MarketCap: "Large", Sector: "Energy", High52w: 130, Low52w: 80, Series: []float64{96, 97, 98, 99, 100}},
		{Symbol: "HBL", Name: "Habib Bank", Price: 150, MarketCap: "Large", Sector: "Banking", Series: []float64{150, 150}},
		{Symbol: "LUCK", Name: "Lucky Cement", Price: 700, MarketCap: "Large", Sector: "Cement"},
	}
}

func symbols(in []models.Instrument) []string {
	out := make([]string, len(in))
	for i, inst := range in {
		out[i] = inst.Symbol
	}
	return out
}

func TestMergeCompleteness(t *testing.T) {
	cat := catalogFixture()
	tickSets := [][]models.Tick{
		nil,
		{{Symbol: "OGDC", Price: 101}},
		{{Symbol: "ZZZ", Price: 0}, {Symbol: "HBL", Price: -1}},
		{{Symbol: "LUCK", Price: 1}, {Symbol: "LUCK", Price: 2}, {Symbol: "NEW", Price: 3}},
	}
	for _, ticks := range tickSets {
		merged := newTestEngine().Merge(cat, ticks)
		counts := map[string]int{}
		for _, inst := range merged {
			counts[inst.Symbol]++
		}
		for _, c := range cat {
			if counts[c.Symbol] != 1 {
				t.Fatalf("symbol %s appears %d times in %v", c.Symbol, counts[c.Symbol], symbols(merged))
			}
		}
		for i, c := range cat {
			if merged[i].Symbol != c.Symbol {
				t.Fatalf("catalog order not preserved: %v", symbols(merged))
			}
		}
	}
}

func TestMergeNonClobber(t *testing.T) {
	cat := catalogFixture()
	merged := newTestEngine().Merge(cat, []models.Tick{
		{Symbol: "OGDC", Price: 0, Change: 5},
		{Symbol: "HBL", Price: -3},
	})

	for i := 0; i < 2; i++ {
		got, want := merged[i], cat[i]
		if got.Symbol != want.Symbol || got.Price != want.Price || got.Name != want.Name || got.Sector != want.Sector || len(got.Series) != len(want.Series) {
			t.Fatalf("catalog entry changed: got %+v want %+v", got, want)
		}
	}
}

func TestMergeDoesNotShareCatalogMemory(t *testing.T) {
	cat := catalogFixture()
	merged := newTestEngine().Merge(cat, nil)
	merged[0].Series[0] = -1
	if cat[0].Series[0] != 96 {
		t.Fatalf("merge output aliases catalog series")
	}
}

func TestMergeNewInstrumentAdmission(t *testing.T) {
	merged := newTestEngine().Merge(catalogFixture(), []models.Tick{
		{Symbol: "XYZA", Price: 10.5},
		{Symbol: "TOOLONGSYMBOL123", Price: 99},
		{Symbol: "FREE", Price: 0},
		{Symbol: "", Price: 4},
	})
	if len(merged) != 4 {
		t.Fatalf("expected one appended listing, got %v", symbols(merged))
	}
	added := merged[3]
	if added.Symbol != "XYZA" || added.Price != 10.5 {
		t.Fatalf("unexpected appended listing: %+v", added)
	}
	if added.MarketCap != MarketCapUnknown || added.Name != "XYZA" || added.Sector != "Other" {
		t.Fatalf("unexpected defaults for new listing: %+v", added)
	}
	if len(added.Series) != 5 || added.Series[4] != 10.5 {
		t.Fatalf("new listing series = %v", added.Series)
	}
}

func TestMergeAppendsInArrivalOrderAndLastTickWins(t *testing.T) {
	merged := newTestEngine().Merge(nil, []models.Tick{
		{Symbol: "BBB", Price: 1},
		{Symbol: "AAA", Price: 2},
		{Symbol: "BBB", Price: 3},
	})
	if got := symbols(merged); len(got) != 2 || got[0] != "BBB" || got[1] != "AAA" {
		t.Fatalf("unexpected order: %v", got)
	}
	if merged[0].Price != 3 {
		t.Fatalf("last tick should win, got %v", merged[0].Price)
	}
}

func TestMergeEndToEnd(t *testing.T) {
	cat := []models.Instrument{{Symbol: "ABC", Name: "Alpha Co", Sector: "Tech"}}
	merged := newTestEngine().Merge(cat, []models.Tick{{Symbol: "ABC", Price: 55.2, Change: 1.2, Open: 54.0}})

	got := merged[0]
	if got.Price != 55.2 {
		t.Fatalf("price = %v", got.Price)
	}
	if math.Abs(got.ChangePercent-2.22) > 1e-9 {
		t.Fatalf("changePercent = %v", got.ChangePercent)
	}
	if got.Name != "Alpha Co" {
		t.Fatalf("display name not preserved: %q", got.Name)
	}
	if got.Sector != "Tech" {
		t.Fatalf("sector fallback = %q", got.Sector)
	}
}

func TestToInstrumentFieldSources(t *testing.T) {
	e := newTestEngine()
	existing := catalogFixture()[0]

	inst := e.ToInstrument(models.Tick{
		Symbol: "OGDC", Name: "Upstream Name", Price: 105, Change: 5.004, ChangePercent: 5.0049,
		Volume: 2500000, Sector: "0823", High: 140,
	}, &existing)

	if inst.Name != "Oil & Gas Dev" || inst.MarketCap != "Large" {
		t.Fatalf("catalog fields not kept: %+v", inst)
	}
	if inst.Change != 5 || inst.ChangePercent != 5 {
		t.Fatalf("rounding failed: %v %v", inst.Change, inst.ChangePercent)
	}
	if inst.Volume != "2.5M" {
		t.Fatalf("volume = %q", inst.Volume)
	}
	if inst.Sector != "Power" {
		t.Fatalf("sector = %q", inst.Sector)
	}
	if inst.High52w != 140 || inst.Low52w != 80 {
		t.Fatalf("52w bounds = %v/%v", inst.High52w, inst.Low52w)
	}
	want := []float64{97, 98, 99, 100, 105}
	for i := range want {
		if inst.Series[i] != want[i] {
			t.Fatalf("series = %v, want %v", inst.Series, want)
		}
	}
	if existing.Series[0] != 96 {
		t.Fatalf("existing series mutated")
	}
}

func TestToInstrumentSynthesizesBounds(t *testing.T) {
	inst := newTestEngine().ToInstrument(models.Tick{Symbol: "NEW", Name: "New Co", Price: 100}, nil)
	if math.Abs(inst.High52w-115) > 1e-9 || math.Abs(inst.Low52w-85) > 1e-9 {
		t.Fatalf("synthetic bounds = %v/%v", inst.High52w, inst.Low52w)
	}
	if inst.Name != "New Co" {
		t.Fatalf("name = %q", inst.Name)
	}
}
