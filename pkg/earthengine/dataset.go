package earthengine

import (
	"fmt"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/embedding"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/region"
)

// EmbeddingCollection is the annual satellite embedding dataset: one
// 64-band unit-length embedding per pixel per calendar year.
const EmbeddingCollection = "GOOGLE/SATELLITE_EMBEDDING/V1/ANNUAL"

// VisParams style a single-image visualization.
type VisParams struct {
	Bands   []string
	Min     float64
	Max     float64
	Palette []string // hex colors, used for single-band images
}

// DefaultVisParams shows three axes of the embedding space as RGB with
// the contrast stretch the dataset documentation recommends.
func DefaultVisParams() VisParams {
	return VisParams{
		Bands: []string{"A01", "A16", "A09"},
		Min:   -0.3,
		Max:   0.3,
	}
}

// mosaicRef assembles the embedding mosaic for one calendar year
// clipped to a region.
func mosaicRef(b *Builder, collection string, year int, r region.Region) Ref {
	coll := b.Invoke("ImageCollection.load", map[string]Ref{
		"id": b.Constant(collection),
	})
	filtered := b.Invoke("ImageCollection.filterDate", map[string]Ref{
		"collection": coll,
		"start":      b.Constant(fmt.Sprintf("%d-01-01", year)),
		"end":        b.Constant(fmt.Sprintf("%d-01-01", year+1)),
	})
	mosaic := b.Invoke("ImageCollection.mosaic", map[string]Ref{
		"collection": filtered,
	})
	return b.Invoke("Image.clip", map[string]Ref{
		"input":    mosaic,
		"geometry": bboxRef(b, r),
	})
}

func bboxRef(b *Builder, r region.Region) Ref {
	return b.Invoke("GeometryConstructors.BBox", map[string]Ref{
		"west":  b.Constant(r.West),
		"south": b.Constant(r.South),
		"east":  b.Constant(r.East),
		"north": b.Constant(r.North),
	})
}

func visualizeRef(b *Builder, image Ref, p VisParams) Ref {
	args := map[string]Ref{
		"image": image,
		"min":   b.Constant([]float64{p.Min}),
		"max":   b.Constant([]float64{p.Max}),
	}
	if len(p.Bands) > 0 {
		args["bands"] = b.Constant(p.Bands)
	}
	if len(p.Palette) > 0 {
		args["palette"] = b.Constant(p.Palette)
	}
	return b.Invoke("Image.visualize", args)
}

func sampleRef(b *Builder, image Ref, r region.Region, scale float64, numPixels, seed int64) Ref {
	return b.Invoke("Image.sample", map[string]Ref{
		"image":      image,
		"region":     bboxRef(b, r),
		"scale":      b.Constant(scale),
		"numPixels":  b.Constant(numPixels),
		"seed":       b.Constant(seed),
		"geometries": b.Constant(false),
	})
}

// clusteredRef trains a weka k-means clusterer on sampled pixels and
// assigns every pixel of the image to a cluster.
func clusteredRef(b *Builder, image Ref, samples Ref, clusters int) Ref {
	clusterer := b.Invoke("Clusterer.wekaKMeans", map[string]Ref{
		"nClusters": b.Constant(clusters),
	})
	trained := b.Invoke("Clusterer.train", map[string]Ref{
		"clusterer": clusterer,
		"features":  samples,
	})
	return b.Invoke("Image.cluster", map[string]Ref{
		"image":     image,
		"clusterer": trained,
	})
}

// MosaicExpression is the annual embedding mosaic for a region.
func MosaicExpression(collection string, year int, r region.Region) (*Expression, error) {
	b := NewBuilder()
	return b.Build(mosaicRef(b, collection, year, r))
}

// CollectionSizeExpression counts the embedding tiles intersecting the
// region's year, a cheap probe that the dataset covers the area.
func CollectionSizeExpression(collection string, year int, r region.Region) (*Expression, error) {
	b := NewBuilder()
	coll := b.Invoke("ImageCollection.load", map[string]Ref{
		"id": b.Constant(collection),
	})
	filtered := b.Invoke("ImageCollection.filterDate", map[string]Ref{
		"collection": coll,
		"start":      b.Constant(fmt.Sprintf("%d-01-01", year)),
		"end":        b.Constant(fmt.Sprintf("%d-01-01", year+1)),
	})
	bounded := b.Invoke("Collection.filter", map[string]Ref{
		"collection": filtered,
		"filter": b.Invoke("Filter.intersects", map[string]Ref{
			"leftField":  b.Constant(".all"),
			"rightValue": bboxRef(b, r),
		}),
	})
	return b.Build(b.Invoke("Collection.size", map[string]Ref{
		"collection": bounded,
	}))
}

// SampleExpression draws a uniform random sample of embedding pixels
// as a feature collection, one property per band.
func SampleExpression(collection string, year int, r region.Region, scale float64, numPixels, seed int64) (*Expression, error) {
	b := NewBuilder()
	image := mosaicRef(b, collection, year, r)
	return b.Build(sampleRef(b, image, r, scale, numPixels, seed))
}

// ClusterExpression samples the mosaic, trains a weka k-means
// clusterer on the sample and labels every pixel with its cluster id.
func ClusterExpression(collection string, year int, r region.Region, scale float64, numPixels, seed int64, clusters int) (*Expression, error) {
	b := NewBuilder()
	image := mosaicRef(b, collection, year, r)
	samples := sampleRef(b, image, r, scale, numPixels, seed)
	return b.Build(clusteredRef(b, image, samples, clusters))
}

// ClusterVisExpression is ClusterExpression styled with a qualitative
// palette, ready for map tiles.
func ClusterVisExpression(collection string, year int, r region.Region, scale float64, numPixels, seed int64, clusters int, palette []string) (*Expression, error) {
	b := NewBuilder()
	image := mosaicRef(b, collection, year, r)
	samples := sampleRef(b, image, r, scale, numPixels, seed)
	clustered := clusteredRef(b, image, samples, clusters)
	return b.Build(visualizeRef(b, clustered, VisParams{
		Min:     0,
		Max:     float64(clusters - 1),
		Palette: palette,
	}))
}

// PreviewExpression styles the embedding mosaic with vis and clamps it
// to width pixels for a thumbnail.
func PreviewExpression(collection string, year int, r region.Region, vis VisParams, width int) (*Expression, error) {
	b := NewBuilder()
	image := mosaicRef(b, collection, year, r)
	styled := visualizeRef(b, image, vis)
	return b.Build(b.Invoke("Image.clipToBoundsAndScale", map[string]Ref{
		"input":    styled,
		"geometry": bboxRef(b, r),
		"width":    b.Constant(width),
	}))
}

// VisExpression styles the embedding mosaic for map tiles.
func VisExpression(collection string, year int, r region.Region, vis VisParams) (*Expression, error) {
	b := NewBuilder()
	image := mosaicRef(b, collection, year, r)
	return b.Build(visualizeRef(b, image, vis))
}

// ConcatenatedEpochsExpression stacks the embedding mosaics of two
// years into one 128-band image. The first year keeps the dataset's
// A-prefixed band names; the second is renamed under prefix B so both
// epochs survive a single export.
func ConcatenatedEpochsExpression(collection string, yearA, yearB int, r region.Region) (*Expression, error) {
	b := NewBuilder()
	first := mosaicRef(b, collection, yearA, r)
	second := mosaicRef(b, collection, yearB, r)
	renamed := b.Invoke("Image.rename", map[string]Ref{
		"input": second,
		"names": b.Constant(embedding.BandNames("B")),
	})
	return b.Build(b.Invoke("Image.addBands", map[string]Ref{
		"dstImg": first,
		"srcImg": renamed,
	}))
}
