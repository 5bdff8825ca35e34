// Package region defines the rectangular geographic area of interest
// that every pipeline stage operates on.
package region

import (
	"fmt"
	"strconv"
	"strings"
)

// Region is a geographic bounding box in WGS84 degrees.
type Region struct {
	West  float64 `json:"west" yaml:"west"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	North float64 `json:"north" yaml:"north"`
}

// New creates a region from its four bounds and validates it.
func New(west, south, east, north float64) (Region, error) {
	r := Region{West: west, South: south, East: east, North: north}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// Validate checks coordinate ordering and world-range limits.
// Regions crossing the antimeridian are rejected; split them into two
// requests instead.
func (r Region) Validate() error {
	if r.West < -180 || r.East > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]: west=%g east=%g", r.West, r.East)
	}
	if r.South < -90 || r.North > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]: south=%g north=%g", r.South, r.North)
	}
	if r.West >= r.East {
		return fmt.Errorf("west bound %g must be less than east bound %g", r.West, r.East)
	}
	if r.South >= r.North {
		return fmt.Errorf("south bound %g must be less than north bound %g", r.South, r.North)
	}
	return nil
}

// Center returns the midpoint of the region as (lon, lat).
func (r Region) Center() (float64, float64) {
	return (r.West + r.East) / 2, (r.South + r.North) / 2
}

// Width returns the longitudinal extent in degrees.
func (r Region) Width() float64 {
	return r.East - r.West
}

// Height returns the latitudinal extent in degrees.
func (r Region) Height() float64 {
	return r.North - r.South
}

// AspectRatio returns width/height in degrees. Useful for sizing
// rendered output so the plot keeps the region's proportions.
func (r Region) AspectRatio() float64 {
	h := r.Height()
	if h == 0 {
		return 0
	}
	return r.Width() / h
}

// Contains reports whether the point (lon, lat) lies inside the region.
func (r Region) Contains(lon, lat float64) bool {
	return lon >= r.West && lon <= r.East && lat >= r.South && lat <= r.North
}

// GeoJSON returns the region as a GeoJSON Polygon with a single closed
// ring in (lon, lat) order, the geometry format Earth Engine requests
// expect.
func (r Region) GeoJSON() map[string]any {
	ring := [][]float64{
		{r.West, r.South},
		{r.East, r.South},
		{r.East, r.North},
		{r.West, r.North},
		{r.West, r.South},
	}
	return map[string]any{
		"type":        "Polygon",
		"coordinates": [][][]float64{ring},
	}
}

// String renders the region as "west,south,east,north".
func (r Region) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.West, r.South, r.East, r.North)
}

// Parse reads a region from the "west,south,east,north" form produced
// by String.
func Parse(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region must have 4 comma-separated bounds, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Region{}, fmt.Errorf("invalid region bound %q: %w", p, err)
		}
		vals[i] = v
	}
	return New(vals[0], vals[1], vals[2], vals[3])
}
