package render

import (
	"fmt"
	"image/color"
	"math"
)

// Ramp interpolates linearly between a sequence of anchor colors
// spread evenly over [0, 1].
type Ramp struct {
	anchors []color.NRGBA
}

// NewRamp builds a ramp from at least one anchor color.
func NewRamp(anchors ...color.NRGBA) Ramp {
	return Ramp{anchors: anchors}
}

// At returns the ramp color for t, clamping t to [0, 1].
func (r Ramp) At(t float64) color.NRGBA {
	if len(r.anchors) == 0 {
		return color.NRGBA{}
	}
	if len(r.anchors) == 1 || math.IsNaN(t) {
		return r.anchors[0]
	}
	t = clamp(t, 0, 1)

	pos := t * float64(len(r.anchors)-1)
	i := int(pos)
	if i >= len(r.anchors)-1 {
		return r.anchors[len(r.anchors)-1]
	}
	f := pos - float64(i)
	a, b := r.anchors[i], r.anchors[i+1]
	return color.NRGBA{
		R: lerpByte(a.R, b.R, f),
		G: lerpByte(a.G, b.G, f),
		B: lerpByte(a.B, b.B, f),
		A: 255,
	}
}

func lerpByte(a, b uint8, f float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*f + 0.5)
}

// ParseHex parses a "#RRGGBB" color.
func ParseHex(s string) (color.NRGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(s[1+i*2])
		lo, ok2 := hexNibble(s[2+i*2])
		if !ok1 || !ok2 {
			return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
		rgb[i] = hi<<4 | lo
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func mustHex(s string) color.NRGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func hexRamp(hexes ...string) Ramp {
	anchors := make([]color.NRGBA, len(hexes))
	for i, h := range hexes {
		anchors[i] = mustHex(h)
	}
	return NewRamp(anchors...)
}

// Viridis is the perceptually uniform sequential ramp used for
// continuous band values.
var Viridis = hexRamp(
	"#440154", "#482878", "#3E4A89", "#31688E", "#26828E",
	"#1F9E89", "#35B779", "#6DCD59", "#B4DE2C", "#FDE725",
)

// RdBu is a diverging ramp running red through white to blue, used for
// similarity maps where low values mark change.
var RdBu = hexRamp(
	"#B2182B", "#EF8A62", "#FDDBC7", "#F7F7F7",
	"#D1E5F0", "#67A9CF", "#2166AC",
)

// ClusterPalette holds qualitative colors for labeled cluster rasters.
// Cluster ids beyond its length wrap around.
var ClusterPalette = []color.NRGBA{
	mustHex("#1F77B4"), mustHex("#FF7F0E"), mustHex("#2CA02C"), mustHex("#D62728"),
	mustHex("#9467BD"), mustHex("#8C564B"), mustHex("#E377C2"), mustHex("#7F7F7F"),
	mustHex("#BCBD22"), mustHex("#17BECF"), mustHex("#AEC7E8"), mustHex("#FFBB78"),
	mustHex("#98DF8A"), mustHex("#FF9896"), mustHex("#C5B0D5"), mustHex("#C49C94"),
	mustHex("#F7B6D2"), mustHex("#C7C7C7"), mustHex("#DBDB8D"), mustHex("#9EDAE5"),
}

// HexPalette renders colors as bare RRGGBB strings, the form the Earth
// Engine visualization parameters expect.
func HexPalette(colors []color.NRGBA) []string {
	hexes := make([]string, len(colors))
	for i, c := range colors {
		hexes[i] = fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
	}
	return hexes
}

// ClusterColor maps a cluster id sample to its palette color. NaN
// samples report ok=false and should be drawn transparent.
func ClusterColor(palette []color.NRGBA, v float64) (color.NRGBA, bool) {
	if math.IsNaN(v) || len(palette) == 0 {
		return color.NRGBA{}, false
	}
	id := int(math.Round(v))
	if id < 0 {
		return color.NRGBA{}, false
	}
	return palette[id%len(palette)], true
}
