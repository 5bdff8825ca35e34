package embedding

import (
	"math"
	"testing"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/raster"
)

func TestBandNames(t *testing.T) {
	names := BandNames("A")
	if len(names) != Dimensions {
		t.Fatalf("Expected %d names, got %d", Dimensions, len(names))
	}
	if names[0] != "A00" {
		t.Errorf("Expected first band A00, got %s", names[0])
	}
	if names[63] != "A63" {
		t.Errorf("Expected last band A63, got %s", names[63])
	}
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float64{1, 0, 0, 0}
	b := []float64{0, 1, 0, 0}

	if got := Cosine(a, b); got != 0 {
		t.Errorf("Expected similarity 0 for orthogonal vectors, got %g", got)
	}
}

func TestCosineIdentical(t *testing.T) {
	a := []float64{0.3, -1.2, 4.5, 0.03}

	got := Cosine(a, a)
	if math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected similarity 1 for identical vectors, got %g", got)
	}
	if got > 1 {
		t.Errorf("Similarity exceeded 1: %g", got)
	}
}

func TestCosineOpposite(t *testing.T) {
	a := []float64{2, -3, 0.5}
	b := []float64{-2, 3, -0.5}

	got := Cosine(a, b)
	if math.Abs(got+1) > 1e-12 {
		t.Errorf("Expected similarity -1 for opposite vectors, got %g", got)
	}
	if got < -1 {
		t.Errorf("Similarity fell below -1: %g", got)
	}
}

func TestCosineClamped(t *testing.T) {
	// Run enough parallel and anti-parallel vectors that any rounding
	// excursion past +/-1 would show up.
	seed := uint64(1)
	next := func() float64 {
		seed = seed*6364136223846793005 + 1442695040888963407
		return float64(seed>>11) / float64(1<<53)
	}

	for i := 0; i < 500; i++ {
		a := make([]float64, Dimensions)
		b := make([]float64, Dimensions)
		scale := next()*10 + 0.001
		for j := range a {
			a[j] = next() - 0.5
			b[j] = a[j] * scale
		}
		if i%2 == 1 {
			for j := range b {
				b[j] = -b[j]
			}
		}

		got := Cosine(a, b)
		if got > 1 || got < -1 {
			t.Fatalf("Similarity out of range at iteration %d: %g", i, got)
		}
	}
}

func TestCosineZeroVector(t *testing.T) {
	zero := make([]float64, 4)
	a := []float64{1, 2, 3, 4}

	if got := Cosine(zero, a); !math.IsNaN(got) {
		t.Errorf("Expected NaN for zero first vector, got %g", got)
	}
	if got := Cosine(a, zero); !math.IsNaN(got) {
		t.Errorf("Expected NaN for zero second vector, got %g", got)
	}
	if got := Cosine(zero, zero); !math.IsNaN(got) {
		t.Errorf("Expected NaN for two zero vectors, got %g", got)
	}
}

func TestCosineDegenerateInput(t *testing.T) {
	if got := Cosine([]float64{1, 2}, []float64{1, 2, 3}); !math.IsNaN(got) {
		t.Errorf("Expected NaN for mismatched lengths, got %g", got)
	}
	if got := Cosine(nil, nil); !math.IsNaN(got) {
		t.Errorf("Expected NaN for empty vectors, got %g", got)
	}
	if got := Cosine([]float64{math.NaN(), 1}, []float64{1, 1}); !math.IsNaN(got) {
		t.Errorf("Expected NaN to propagate from input channels, got %g", got)
	}
}

func TestDotAndMagnitude(t *testing.T) {
	a := []float64{3, 4}
	if got := Magnitude(a); got != 5 {
		t.Errorf("Expected magnitude 5, got %g", got)
	}
	if got := Dot(a, []float64{1, 2}); got != 11 {
		t.Errorf("Expected dot 11, got %g", got)
	}
}

// buildEpochGrids returns two 2x2 single-pair grids with known vectors.
func buildEpochGrids() (*raster.Grid, *raster.Grid) {
	before := raster.NewGrid(2, 2, 2)
	after := raster.NewGrid(2, 2, 2)

	set := func(g *raster.Grid, col, row int, v0, v1 float64) {
		g.Set(0, col, row, v0)
		g.Set(1, col, row, v1)
	}

	// (0,0): identical, (1,0): opposite, (0,1): orthogonal, (1,1): masked.
	set(before, 0, 0, 1, 2)
	set(after, 0, 0, 1, 2)
	set(before, 1, 0, 1, 0)
	set(after, 1, 0, -1, 0)
	set(before, 0, 1, 1, 0)
	set(after, 0, 1, 0, 1)
	set(before, 1, 1, 0, 0)
	set(after, 1, 1, 3, 4)

	return before, after
}

func TestChangeMap(t *testing.T) {
	before, after := buildEpochGrids()
	before.Transform = raster.Transform{OriginX: 20, OriginY: 45, PixelWidth: 0.1, PixelHeight: -0.1}

	sim, err := ChangeMap(before, after)
	if err != nil {
		t.Fatalf("ChangeMap failed: %v", err)
	}

	if sim.Bands != 1 {
		t.Fatalf("Expected single-band output, got %d bands", sim.Bands)
	}
	if sim.BandNames[0] != SimilarityBand {
		t.Errorf("Expected band name %q, got %q", SimilarityBand, sim.BandNames[0])
	}
	if sim.Transform.OriginX != 20 {
		t.Error("Output should carry the input geographic transform")
	}

	if got := sim.At(0, 0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("Identical pixel: expected 1, got %g", got)
	}
	if got := sim.At(0, 1, 0); math.Abs(got+1) > 1e-12 {
		t.Errorf("Opposite pixel: expected -1, got %g", got)
	}
	if got := sim.At(0, 0, 1); got != 0 {
		t.Errorf("Orthogonal pixel: expected 0, got %g", got)
	}
	if got := sim.At(0, 1, 1); !math.IsNaN(got) {
		t.Errorf("Masked pixel: expected NaN, got %g", got)
	}
}

func TestChangeMapShapeMismatch(t *testing.T) {
	a := raster.NewGrid(2, 2, 2)
	b := raster.NewGrid(3, 2, 2)
	if _, err := ChangeMap(a, b); err == nil {
		t.Error("Expected error for differing sizes")
	}

	c := raster.NewGrid(2, 2, 3)
	if _, err := ChangeMap(a, c); err == nil {
		t.Error("Expected error for differing band counts")
	}
}

func TestChangeMapConcatenated(t *testing.T) {
	g := raster.NewGrid(1, 1, 4)
	// First epoch (1, 0), second epoch (0, 1): orthogonal.
	g.Set(0, 0, 0, 1)
	g.Set(1, 0, 0, 0)
	g.Set(2, 0, 0, 0)
	g.Set(3, 0, 0, 1)

	sim, err := ChangeMapConcatenated(g)
	if err != nil {
		t.Fatalf("ChangeMapConcatenated failed: %v", err)
	}
	if got := sim.At(0, 0, 0); got != 0 {
		t.Errorf("Expected similarity 0, got %g", got)
	}

	odd := raster.NewGrid(1, 1, 3)
	if _, err := ChangeMapConcatenated(odd); err == nil {
		t.Error("Expected error for odd band count")
	}
}

func BenchmarkCosine(b *testing.B) {
	va := make([]float64, Dimensions)
	vb := make([]float64, Dimensions)
	for i := range va {
		va[i] = float64(i) * 0.017
		vb[i] = float64(Dimensions-i) * 0.013
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Cosine(va, vb)
	}
}

func BenchmarkChangeMap(b *testing.B) {
	before := raster.NewGrid(64, 64, Dimensions)
	after := raster.NewGrid(64, 64, Dimensions)
	for i := range before.Samples {
		before.Samples[i] = float64(i%97) * 0.01
		after.Samples[i] = float64(i%89) * 0.011
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ChangeMap(before, after); err != nil {
			b.Fatal(err)
		}
	}
}
