package region

import (
	"math"
	"testing"
)

func TestNew(t *testing.T) {
	r, err := New(20.35, 44.72, 20.57, 44.87)
	if err != nil {
		t.Fatalf("New() returned error for valid bounds: %v", err)
	}

	if r.West != 20.35 || r.South != 44.72 || r.East != 20.57 || r.North != 44.87 {
		t.Errorf("Bounds not stored correctly: %+v", r)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		r       Region
		wantErr bool
	}{
		{"valid", Region{West: -10, South: -10, East: 10, North: 10}, false},
		{"west after east", Region{West: 10, South: 0, East: -10, North: 10}, true},
		{"south after north", Region{West: 0, South: 10, East: 10, North: -10}, true},
		{"zero area", Region{West: 5, South: 5, East: 5, North: 10}, true},
		{"longitude out of range", Region{West: -200, South: 0, East: 10, North: 10}, true},
		{"latitude out of range", Region{West: 0, South: 0, East: 10, North: 95}, true},
	}

	for _, tc := range cases {
		err := tc.r.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected validation error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected validation error: %v", tc.name, err)
		}
	}
}

func TestCenter(t *testing.T) {
	r := Region{West: 20.0, South: 44.0, East: 21.0, North: 45.0}
	lon, lat := r.Center()

	if lon != 20.5 {
		t.Errorf("Expected center lon 20.5, got %g", lon)
	}
	if lat != 44.5 {
		t.Errorf("Expected center lat 44.5, got %g", lat)
	}
}

func TestAspectRatio(t *testing.T) {
	r := Region{West: 0, South: 0, East: 4, North: 2}
	if got := r.AspectRatio(); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("Expected aspect ratio 2.0, got %g", got)
	}
}

func TestContains(t *testing.T) {
	r := Region{West: 20, South: 44, East: 21, North: 45}

	if !r.Contains(20.5, 44.5) {
		t.Error("Interior point should be contained")
	}
	if !r.Contains(20, 44) {
		t.Error("Corner point should be contained")
	}
	if r.Contains(19.9, 44.5) {
		t.Error("Point west of region should not be contained")
	}
	if r.Contains(20.5, 45.1) {
		t.Error("Point north of region should not be contained")
	}
}

func TestGeoJSON(t *testing.T) {
	r := Region{West: 20, South: 44, East: 21, North: 45}
	g := r.GeoJSON()

	if g["type"] != "Polygon" {
		t.Errorf("Expected Polygon geometry, got %v", g["type"])
	}

	coords, ok := g["coordinates"].([][][]float64)
	if !ok {
		t.Fatalf("coordinates have unexpected type %T", g["coordinates"])
	}
	if len(coords) != 1 {
		t.Fatalf("Expected 1 ring, got %d", len(coords))
	}

	ring := coords[0]
	if len(ring) != 5 {
		t.Fatalf("Expected closed ring of 5 points, got %d", len(ring))
	}
	if ring[0][0] != ring[4][0] || ring[0][1] != ring[4][1] {
		t.Error("Ring is not closed")
	}
	// Lon before lat, first corner is (west, south).
	if ring[0][0] != 20 || ring[0][1] != 44 {
		t.Errorf("Expected first corner (20, 44), got (%g, %g)", ring[0][0], ring[0][1])
	}
}

func TestParse(t *testing.T) {
	r, err := Parse("20.35, 44.72, 20.57, 44.87")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r.West != 20.35 || r.North != 44.87 {
		t.Errorf("Parsed bounds incorrect: %+v", r)
	}

	if _, err := Parse("1,2,3"); err == nil {
		t.Error("Expected error for 3 bounds")
	}
	if _, err := Parse("a,b,c,d"); err == nil {
		t.Error("Expected error for non-numeric bounds")
	}
	if _, err := Parse("10,0,-10,10"); err == nil {
		t.Error("Expected validation error for inverted bounds")
	}
}

func TestStringRoundTrip(t *testing.T) {
	r := Region{West: 20.35, South: 44.72, East: 20.57, North: 44.87}
	parsed, err := Parse(r.String())
	if err != nil {
		t.Fatalf("Parse(String()) failed: %v", err)
	}
	if parsed != r {
		t.Errorf("Round trip changed region: %+v != %+v", parsed, r)
	}
}
