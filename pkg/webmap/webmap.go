// Package webmap writes a self-contained Leaflet page for browsing
// Earth Engine tile layers over an OpenStreetMap basemap.
package webmap

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/region"
)

// Layer is one tile overlay. TileURL keeps the {z}/{x}/{y}
// placeholders Leaflet expands per tile.
type Layer struct {
	Name    string
	TileURL string
	Opacity float64 // defaults to 1 when unset
}

// Page describes the map document: a title, the region the viewport
// opens on and the overlays to offer.
type Page struct {
	Title  string
	Region region.Region
	Layers []Layer
}

var pageTemplate = template.Must(template.New("webmap").Parse(pageHTML))

type pageData struct {
	Title  string
	Config template.JS
}

// Write renders the page as HTML. The layer list and viewport travel
// as a JSON block the page script reads, which keeps tile URL
// placeholders intact.
func Write(w io.Writer, p Page) error {
	if p.Title == "" {
		p.Title = "Satellite Embeddings"
	}

	type layerJSON struct {
		Name    string  `json:"name"`
		URL     string  `json:"url"`
		Opacity float64 `json:"opacity"`
	}
	cfg := struct {
		Bounds [2][2]float64 `json:"bounds"`
		Layers []layerJSON   `json:"layers"`
	}{
		Bounds: [2][2]float64{
			{p.Region.South, p.Region.West},
			{p.Region.North, p.Region.East},
		},
		Layers: make([]layerJSON, 0, len(p.Layers)),
	}
	for _, l := range p.Layers {
		opacity := l.Opacity
		if opacity <= 0 || opacity > 1 {
			opacity = 1
		}
		cfg.Layers = append(cfg.Layers, layerJSON{Name: l.Name, URL: l.TileURL, Opacity: opacity})
	}

	// json.Marshal escapes <, > and & so the block is safe inside the
	// script element.
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode map config: %v", err)
	}

	if err := pageTemplate.Execute(w, pageData{Title: p.Title, Config: template.JS(raw)}); err != nil {
		return fmt.Errorf("failed to render map page: %v", err)
	}
	return nil
}

// WriteFile renders the page into a file.
func WriteFile(path string, p Page) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	if err := Write(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const pageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"/>
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
html, body, #map { height: 100%; margin: 0; }
</style>
</head>
<body>
<div id="map"></div>
<script>
var cfg = {{.Config}};
var map = L.map('map');
map.fitBounds(cfg.bounds);

var base = L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
	maxZoom: 19,
	attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);

var overlays = {};
cfg.layers.forEach(function (layer) {
	var tiles = L.tileLayer(layer.url, {opacity: layer.opacity, maxZoom: 18});
	tiles.addTo(map);
	overlays[layer.name] = tiles;
});
L.control.layers({'OpenStreetMap': base}, overlays).addTo(map);
</script>
</body>
</html>
`
