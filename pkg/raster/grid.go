// Package raster holds the in-memory model for downloaded raster data.
//
// Grids are produced by the GeoTIFF reader and consumed by the
// similarity and rendering stages. Samples are stored band-major so
// that single-band operations (rendering one band, slicing an
// embedding channel) touch contiguous memory. Missing pixels are
// represented as NaN throughout.
package raster

import (
	"fmt"
	"math"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/region"
)

// Transform maps pixel coordinates to geographic coordinates. It is
// the affine transform of a north-up raster: no rotation terms, and
// PixelHeight is negative because rows grow southward.
type Transform struct {
	OriginX     float64 // geographic X of the outer corner of pixel (0,0)
	OriginY     float64 // geographic Y of the outer corner of pixel (0,0)
	PixelWidth  float64
	PixelHeight float64
}

// PixelCenter returns the geographic coordinates of the center of the
// pixel at (col, row).
func (t Transform) PixelCenter(col, row int) (float64, float64) {
	x := t.OriginX + (float64(col)+0.5)*t.PixelWidth
	y := t.OriginY + (float64(row)+0.5)*t.PixelHeight
	return x, y
}

// Grid is a multi-band raster with float64 samples in band-major
// order: Samples[band*Width*Height + row*Width + col].
type Grid struct {
	Width     int
	Height    int
	Bands     int
	Samples   []float64
	BandNames []string
	Transform Transform
	// NoData records the value the source file declared as missing.
	// Samples equal to it are converted to NaN on load; the field is
	// kept for reporting only.
	NoData *float64
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height, bands int) *Grid {
	return &Grid{
		Width:   width,
		Height:  height,
		Bands:   bands,
		Samples: make([]float64, width*height*bands),
	}
}

// At returns the sample for band at (col, row).
func (g *Grid) At(band, col, row int) float64 {
	return g.Samples[band*g.Width*g.Height+row*g.Width+col]
}

// Set stores the sample for band at (col, row).
func (g *Grid) Set(band, col, row int, v float64) {
	g.Samples[band*g.Width*g.Height+row*g.Width+col] = v
}

// Band returns the samples of one band as a shared slice.
func (g *Grid) Band(band int) []float64 {
	n := g.Width * g.Height
	return g.Samples[band*n : (band+1)*n]
}

// Pixel returns the cross-band vector at (col, row) in a fresh slice.
func (g *Grid) Pixel(col, row int) []float64 {
	return g.PixelInto(make([]float64, g.Bands), col, row)
}

// PixelInto fills dst with the cross-band vector at (col, row). dst
// must have length Bands. Returns dst for chaining in per-pixel loops
// that want to avoid an allocation per pixel.
func (g *Grid) PixelInto(dst []float64, col, row int) []float64 {
	n := g.Width * g.Height
	base := row*g.Width + col
	for b := 0; b < g.Bands; b++ {
		dst[b] = g.Samples[b*n+base]
	}
	return dst
}

// MinMax returns the smallest and largest finite sample in a band.
// If every sample is missing both results are NaN.
func (g *Grid) MinMax(band int) (float64, float64) {
	lo, hi := math.NaN(), math.NaN()
	for _, v := range g.Band(band) {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Extent returns the geographic bounding box covered by the grid.
func (g *Grid) Extent() region.Region {
	x0 := g.Transform.OriginX
	y0 := g.Transform.OriginY
	x1 := x0 + float64(g.Width)*g.Transform.PixelWidth
	y1 := y0 + float64(g.Height)*g.Transform.PixelHeight
	r := region.Region{West: x0, South: y1, East: x1, North: y0}
	if y1 > y0 {
		r.South, r.North = y0, y1
	}
	if x1 < x0 {
		r.West, r.East = x1, x0
	}
	return r
}

// SplitConcatenated splits a grid whose bands are two equal-length
// vectors stacked back to back (the layout of a two-epoch embedding
// export) into the two underlying grids. Both halves share the
// geographic transform of the source.
func (g *Grid) SplitConcatenated() (*Grid, *Grid, error) {
	if g.Bands%2 != 0 {
		return nil, nil, fmt.Errorf("cannot split %d bands into two equal halves", g.Bands)
	}
	half := g.Bands / 2
	n := g.Width * g.Height

	first := &Grid{
		Width:     g.Width,
		Height:    g.Height,
		Bands:     half,
		Samples:   g.Samples[:half*n],
		Transform: g.Transform,
		NoData:    g.NoData,
	}
	second := &Grid{
		Width:     g.Width,
		Height:    g.Height,
		Bands:     half,
		Samples:   g.Samples[half*n:],
		Transform: g.Transform,
		NoData:    g.NoData,
	}
	if len(g.BandNames) == g.Bands {
		first.BandNames = g.BandNames[:half]
		second.BandNames = g.BandNames[half:]
	}
	return first, second, nil
}
