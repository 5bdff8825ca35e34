// Package render turns decoded rasters into styled plot images with a
// title strip and a legend, and writes them in png, jpg or webp form.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/raster"
)

const (
	titleHeight = 28
	margin      = 8
	barHeight   = 12
	swatchSize  = 12
	legendRowH  = 20
)

var (
	titleColor  = color.NRGBA{33, 33, 33, 255}
	labelColor  = color.NRGBA{68, 68, 68, 255}
	borderColor = color.NRGBA{160, 160, 160, 255}
	background  = color.NRGBA{255, 255, 255, 255}
)

// Renderer turns grids into finished plots using a shared output
// format, quality and target width.
type Renderer struct {
	Format  string // png, jpg or webp
	Quality int
	Width   int // output width in pixels; 0 keeps the raster width
}

// NewRenderer creates a renderer for the given output settings.
func NewRenderer(format string, quality, width int) *Renderer {
	return &Renderer{Format: format, Quality: quality, Width: width}
}

// RenderBand maps one band onto a ramp, scaling [lo, hi] to [0, 1].
// NaN samples come out fully transparent.
func RenderBand(g *raster.Grid, band int, ramp Ramp, lo, hi float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	span := hi - lo
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(band, x, y)
			if math.IsNaN(v) {
				continue
			}
			t := 0.5
			if span > 0 {
				t = (v - lo) / span
			}
			setPixel(img, x, y, ramp.At(t))
		}
	}
	return img
}

// RenderClusters colors a labeled raster with a qualitative palette.
// NaN samples come out fully transparent.
func RenderClusters(g *raster.Grid, band int, palette []color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if c, ok := ClusterColor(palette, g.At(band, x, y)); ok {
				setPixel(img, x, y, c)
			}
		}
	}
	return img
}

// ContinuousPlot renders one band as a complete plot: ramp-colored map,
// optional title strip and a gradient legend labeled lo and hi. Pass
// NaN for lo or hi to stretch to the band's own range.
func (r *Renderer) ContinuousPlot(g *raster.Grid, band int, ramp Ramp, title string, lo, hi float64) *image.NRGBA {
	dataLo, dataHi := g.MinMax(band)
	if math.IsNaN(lo) {
		lo = dataLo
	}
	if math.IsNaN(hi) {
		hi = dataHi
	}

	mapImg := r.fit(RenderBand(g, band, ramp, lo, hi), imaging.Lanczos)
	w := mapImg.Bounds().Dx()
	top := titleStrip(title)
	legendH := barHeight + 26

	canvas := imaging.New(w, top+mapImg.Bounds().Dy()+legendH, background)
	canvas = imaging.Overlay(canvas, mapImg, image.Pt(0, top), 1.0)
	if title != "" {
		drawLabel(canvas, margin, 18, title, titleColor)
	}

	barY := top + mapImg.Bounds().Dy() + 6
	x0, x1 := margin, w-margin
	for x := x0; x < x1; x++ {
		t := float64(x-x0) / float64(x1-x0-1)
		drawVLine(canvas, x, barY, barY+barHeight, ramp.At(t))
	}
	drawHLine(canvas, barY, x0, x1, borderColor)
	drawHLine(canvas, barY+barHeight-1, x0, x1, borderColor)
	drawVLine(canvas, x0, barY, barY+barHeight, borderColor)
	drawVLine(canvas, x1-1, barY, barY+barHeight, borderColor)

	loLabel := fmt.Sprintf("%.2f", lo)
	hiLabel := fmt.Sprintf("%.2f", hi)
	labelY := barY + barHeight + 14
	drawLabel(canvas, x0, labelY, loLabel, labelColor)
	drawLabel(canvas, x1-labelWidth(hiLabel), labelY, hiLabel, labelColor)
	return canvas
}

// ClusterPlot renders a labeled raster as a complete plot with one
// legend swatch per cluster id.
func (r *Renderer) ClusterPlot(g *raster.Grid, k int, title string) *image.NRGBA {
	mapImg := r.fit(RenderClusters(g, 0, ClusterPalette), imaging.NearestNeighbor)
	w := mapImg.Bounds().Dx()
	top := titleStrip(title)

	// Lay out swatch entries first so the canvas height is known.
	type item struct {
		label string
		x, y  int
	}
	items := make([]item, 0, k)
	x, row := margin, 0
	for i := 0; i < k; i++ {
		label := fmt.Sprintf("Cluster %d", i+1)
		span := swatchSize + 4 + labelWidth(label) + 14
		if x+span > w-margin && x > margin {
			x, row = margin, row+1
		}
		items = append(items, item{label: label, x: x, y: row})
		x += span
	}
	legendH := (row+1)*legendRowH + 10

	canvas := imaging.New(w, top+mapImg.Bounds().Dy()+legendH, background)
	canvas = imaging.Overlay(canvas, mapImg, image.Pt(0, top), 1.0)
	if title != "" {
		drawLabel(canvas, margin, 18, title, titleColor)
	}

	baseY := top + mapImg.Bounds().Dy() + 6
	for i, it := range items {
		y := baseY + it.y*legendRowH
		fillRect(canvas, it.x, y, it.x+swatchSize, y+swatchSize, ClusterPalette[i%len(ClusterPalette)])
		drawLabel(canvas, it.x+swatchSize+4, y+swatchSize-2, it.label, labelColor)
	}
	return canvas
}

// Save writes an image in the renderer's format. The path extension
// should match the format.
func (r *Renderer) Save(img image.Image, path string) error {
	switch strings.ToLower(r.Format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(r.Quality)})
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(r.Quality))
	default: // png
		return imaging.Save(img, path)
	}
}

// Ext returns the file extension for the renderer's format.
func (r *Renderer) Ext() string {
	switch strings.ToLower(r.Format) {
	case "webp":
		return ".webp"
	case "jpg", "jpeg":
		return ".jpg"
	default:
		return ".png"
	}
}

func (r *Renderer) fit(img *image.NRGBA, filter imaging.ResampleFilter) *image.NRGBA {
	if r.Width <= 0 || r.Width == img.Bounds().Dx() {
		return img
	}
	return imaging.Resize(img, r.Width, 0, filter)
}

func titleStrip(title string) int {
	if title == "" {
		return 0
	}
	return titleHeight
}

// Helper functions

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		drawHLine(img, y, x0, x1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

func drawLabel(dst *image.NRGBA, x, y int, s string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func labelWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Round()
}
