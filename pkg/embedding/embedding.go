// Package embedding implements the vector math applied to satellite
// embedding pixels.
//
// Each pixel of the annual embedding dataset carries a 64-channel
// feature vector produced by the upstream model. The only computation
// this repository performs on those vectors itself is cosine
// similarity between two epochs of the same pixel; everything else
// (sampling, clustering) runs on the remote service.
package embedding

import (
	"fmt"
	"math"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/raster"
)

// Dimensions is the channel count of one embedding vector.
const Dimensions = 64

// SimilarityBand names the single band of a change-map grid.
const SimilarityBand = "similarity"

// BandNames returns the dataset's band naming for one epoch, e.g.
// "A00".."A63".
func BandNames(prefix string) []string {
	names := make([]string, Dimensions)
	for i := range names {
		names[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return names
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Magnitude returns the Euclidean norm of a vector.
func Magnitude(a []float64) float64 {
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of two vectors, clamped to
// [-1, 1] so that floating-point rounding cannot push the result
// outside the mathematical range.
//
// Degenerate inputs return NaN, the missing-value marker used by the
// rest of the pipeline: a zero-magnitude vector (a fully masked pixel
// comes through the export as all zeros), mismatched lengths, or a NaN
// channel. Renderers draw NaN pixels as transparent.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return math.NaN()
	}

	return clamp(dot/(math.Sqrt(magA)*math.Sqrt(magB)), -1, 1)
}

// ChangeMap computes per-pixel cosine similarity between two grids of
// the same shape, typically the embedding mosaics of two years. The
// result is a single-band grid on the first input's geographic
// transform; pixels missing in either epoch come out as NaN.
func ChangeMap(before, after *raster.Grid) (*raster.Grid, error) {
	if before.Width != after.Width || before.Height != after.Height {
		return nil, fmt.Errorf("grid sizes differ: %dx%d vs %dx%d",
			before.Width, before.Height, after.Width, after.Height)
	}
	if before.Bands != after.Bands {
		return nil, fmt.Errorf("band counts differ: %d vs %d", before.Bands, after.Bands)
	}

	out := raster.NewGrid(before.Width, before.Height, 1)
	out.Transform = before.Transform
	out.BandNames = []string{SimilarityBand}

	va := make([]float64, before.Bands)
	vb := make([]float64, before.Bands)
	for row := 0; row < before.Height; row++ {
		for col := 0; col < before.Width; col++ {
			before.PixelInto(va, col, row)
			after.PixelInto(vb, col, row)
			out.Set(0, col, row, Cosine(va, vb))
		}
	}
	return out, nil
}

// ChangeMapConcatenated computes the change map from a single grid
// holding both epochs back to back, the layout of the two-year
// embedding export (128 bands: the first 64 are the baseline year).
func ChangeMapConcatenated(g *raster.Grid) (*raster.Grid, error) {
	before, after, err := g.SplitConcatenated()
	if err != nil {
		return nil, err
	}
	return ChangeMap(before, after)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
