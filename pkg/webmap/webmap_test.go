package webmap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/region"
)

var testRegion = region.Region{West: 20.35, South: 44.72, East: 20.57, North: 44.87}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Page{
		Title:  "Belgrade embeddings",
		Region: testRegion,
		Layers: []Layer{
			{Name: "Embeddings 2024", TileURL: "https://earthengine.example/v1/projects/p/maps/m1/tiles/{z}/{x}/{y}"},
			{Name: "Clusters k=6", TileURL: "https://earthengine.example/v1/projects/p/maps/m2/tiles/{z}/{x}/{y}", Opacity: 0.8},
		},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	html := buf.String()
	if !strings.Contains(html, "<title>Belgrade embeddings</title>") {
		t.Error("Expected the title in the page")
	}
	if !strings.Contains(html, `"bounds":[[44.72,20.35],[44.87,20.57]]`) {
		t.Error("Expected the region bounds in the config block")
	}
	// Leaflet's tile placeholders must survive templating.
	if !strings.Contains(html, "/tiles/{z}/{x}/{y}") {
		t.Error("Expected tile placeholders to stay intact")
	}
	if !strings.Contains(html, "Embeddings 2024") || !strings.Contains(html, "Clusters k=6") {
		t.Error("Expected both overlay names in the page")
	}
	if !strings.Contains(html, `"opacity":0.8`) {
		t.Error("Expected the configured opacity")
	}
	if !strings.Contains(html, `"opacity":1`) {
		t.Error("Expected the default opacity for the first layer")
	}
	if !strings.Contains(html, "L.control.layers") {
		t.Error("Expected a layers control")
	}
}

func TestWriteEscapesTitle(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Page{
		Title:  "<script>alert(1)</script>",
		Region: testRegion,
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.Contains(buf.String(), "<script>alert") {
		t.Error("Expected the title to be escaped")
	}
}

func TestWriteEscapesLayerName(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Page{
		Region: testRegion,
		Layers: []Layer{{Name: "</script><b>", TileURL: "https://t.example/{z}/{x}/{y}"}},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if strings.Contains(buf.String(), "</script><b>") {
		t.Error("Expected the layer name to be escaped in the config block")
	}
}

func TestWriteDefaultTitle(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Page{Region: testRegion}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), "<title>Satellite Embeddings</title>") {
		t.Error("Expected the default title")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.html")
	err := WriteFile(path, Page{
		Title:  "Test map",
		Region: testRegion,
		Layers: []Layer{{Name: "L", TileURL: "https://tiles.example/{z}/{x}/{y}"}},
	})
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if !strings.Contains(string(data), "Test map") {
		t.Error("Expected the page content on disk")
	}
}
