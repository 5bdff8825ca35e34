// Package satviz turns Google's annual satellite embedding dataset into
// cluster maps and change plots for a region of interest.
//
// The heavy lifting never happens locally. Mosaicking, sampling,
// k-means training and raster export all run inside Earth Engine; the
// pipeline builds expression graphs, starts server-side exports into a
// Cloud Storage bucket, downloads finished GeoTIFFs and renders static
// plots and interactive tile maps from them.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/rs/zerolog"
//
//		satviz "github.com/milos-agathon/visualize-google-satellite-embeddings"
//		"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/earthengine"
//		"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/gcs"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		// Authenticate against Earth Engine and Cloud Storage
//		client, err := earthengine.NewClient(ctx, "my-project", "key.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//		store, err := gcs.New(ctx, "my-bucket", "key.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		params := satviz.DefaultParams()
//		params.Bucket = "my-bucket"
//
//		pipeline, err := satviz.New(params, client, store, zerolog.Nop())
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// Sample, train and start the cluster raster export
//		result, err := pipeline.Cluster(ctx)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("export %s started, tiles at %s\n", result.Operation, result.TileURL)
//
//		// Later, once the export finished server-side:
//		raster, err := pipeline.FetchClusters(ctx)
//		if err != nil {
//			log.Fatal(err)
//		}
//		plot, err := pipeline.RenderClusters(raster)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("cluster plot saved to %s\n", plot)
//	}
//
// The package consists of these main components:
//
// 1. Earth Engine client (pkg/earthengine): expression graphs, maps, thumbnails, exports
// 2. Storage fetcher (pkg/gcs): locating and downloading exported rasters
// 3. Raster model (pkg/raster, internal/geotiff): grids decoded from GeoTIFF
// 4. Embeddings (pkg/embedding): cosine similarity and change maps
// 5. Rendering (pkg/render, pkg/webmap): static plots and Leaflet tile maps
//
// Exports are fire-and-report: starting one returns its operation name
// and the pipeline never polls. Check progress with Status or Tasks and
// fetch the raster when the operation is done.
package satviz

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/internal/geotiff"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/internal/utils"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/earthengine"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/embedding"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/gcs"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/raster"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/region"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/render"
	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/webmap"
)

// Version of the satviz library
const Version = "1.0.0"

// maxExportPixels bounds server-side exports. Regional exports at 10 m
// stay far below it; it exists so a typo in the region does not queue a
// continent-sized raster.
const maxExportPixels = 1e10

// Params carries the pipeline settings shared by every stage.
type Params struct {
	Collection   string        // embedding image collection id
	Region       region.Region // area of interest
	Year         int           // target epoch
	BaselineYear int           // earlier epoch for the change map
	Scale        float64       // meters per pixel
	SamplePixels int64         // training sample size
	Seed         int64         // sampling seed
	Clusters     int           // wekaKMeans cluster count
	Bucket       string        // Cloud Storage bucket exports land in
	Prefix       string        // object name prefix inside the bucket
	DataDir      string        // local directory for downloaded rasters
	OutputDir    string        // directory for plots and maps
	Format       string        // png, jpg or webp
	Quality      int           // jpg/webp quality
	Width        int           // output image width in pixels
}

// DefaultParams returns the Belgrade demonstration setup: the 2024
// mosaic clustered into six classes, compared against 2018.
func DefaultParams() Params {
	return Params{
		Collection:   earthengine.EmbeddingCollection,
		Region:       region.Region{West: 20.35, South: 44.72, East: 20.57, North: 44.87},
		Year:         2024,
		BaselineYear: 2018,
		Scale:        10,
		SamplePixels: 1000,
		Seed:         100,
		Clusters:     6,
		Prefix:       "satviz",
		DataDir:      "./data",
		OutputDir:    "./output",
		Format:       "png",
		Quality:      90,
		Width:        1600,
	}
}

// Pipeline drives the embedding visualization stages. Construct it with
// New; stages that need a service the pipeline was built without fail
// with an explanatory error.
type Pipeline struct {
	params   Params
	ee       *earthengine.Client
	fetcher  *gcs.Fetcher
	renderer *render.Renderer
	log      zerolog.Logger
	runID    string
}

// New creates a pipeline. Either client may be nil: without an Earth
// Engine client only the local stages work, without a store the fetch
// stages are unavailable.
func New(params Params, client *earthengine.Client, store gcs.ObjectStore, logger zerolog.Logger) (*Pipeline, error) {
	if err := params.Region.Validate(); err != nil {
		return nil, fmt.Errorf("invalid region: %w", err)
	}
	if params.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if params.Year == 0 {
		return nil, fmt.Errorf("year is required")
	}
	if params.Scale <= 0 {
		return nil, fmt.Errorf("scale must be positive")
	}
	if params.Clusters < 2 {
		return nil, fmt.Errorf("cluster count must be at least 2")
	}

	runID := uuid.NewString()
	p := &Pipeline{
		params:   params,
		ee:       client,
		renderer: render.NewRenderer(params.Format, params.Quality, params.Width),
		log:      logger.With().Str("run_id", runID).Logger(),
		runID:    runID,
	}
	if store != nil {
		p.fetcher = gcs.NewFetcher(store, params.DataDir)
	}
	return p, nil
}

// RunID returns the correlation id carried through this pipeline's logs.
func (p *Pipeline) RunID() string {
	return p.runID
}

// ClusterResult reports what the clustering stage produced.
type ClusterResult struct {
	Samples   int    // training pixels the sampler returned
	TileURL   string // tile URL template for the clustered image
	Operation string // name of the started export operation
	Object    string // object name prefix the raster will land under
}

// ExportResult reports a started raster export.
type ExportResult struct {
	Operation string
	Object    string
}

// Preview renders a small styled view of the embedding mosaic and
// writes it into the output directory.
func (p *Pipeline) Preview(ctx context.Context) (string, error) {
	if err := p.requireEarthEngine(); err != nil {
		return "", err
	}

	count, err := p.collectionSize(ctx)
	if err != nil {
		return "", err
	}
	p.log.Debug().Int("images", count).Int("year", p.params.Year).Msg("embedding coverage")

	expr, err := earthengine.PreviewExpression(p.params.Collection, p.params.Year,
		p.params.Region, earthengine.DefaultVisParams(), p.params.Width)
	if err != nil {
		return "", err
	}

	p.log.Info().Int("year", p.params.Year).Str("region", p.params.Region.String()).Msg("rendering mosaic preview")
	data, err := p.ee.Thumbnail(ctx, expr)
	if err != nil {
		return "", fmt.Errorf("failed to render preview: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode preview image: %v", err)
	}
	return p.savePlot(img, fmt.Sprintf("embeddings_%d_preview", p.params.Year))
}

// WriteMap registers tile maps for the embedding visualization (and the
// clustered image when withClusters is set) and writes a self-contained
// Leaflet page referencing them.
func (p *Pipeline) WriteMap(ctx context.Context, withClusters bool) (string, error) {
	if err := p.requireEarthEngine(); err != nil {
		return "", err
	}

	visExpr, err := earthengine.VisExpression(p.params.Collection, p.params.Year,
		p.params.Region, earthengine.DefaultVisParams())
	if err != nil {
		return "", err
	}
	visMap, err := p.ee.CreateMap(ctx, visExpr)
	if err != nil {
		return "", fmt.Errorf("failed to create embedding map: %w", err)
	}

	layers := []webmap.Layer{
		{Name: fmt.Sprintf("Embeddings %d", p.params.Year), TileURL: visMap.TileTemplate, Opacity: 1},
	}

	if withClusters {
		clusterExpr, err := p.clusterVisExpression()
		if err != nil {
			return "", err
		}
		clusterMap, err := p.ee.CreateMap(ctx, clusterExpr)
		if err != nil {
			return "", fmt.Errorf("failed to create cluster map: %w", err)
		}
		layers = append(layers, webmap.Layer{
			Name:    fmt.Sprintf("Clusters k=%d", p.params.Clusters),
			TileURL: clusterMap.TileTemplate,
			Opacity: 0.8,
		})
	}

	if err := utils.EnsureDir(p.params.OutputDir); err != nil {
		return "", err
	}
	out := filepath.Join(p.params.OutputDir,
		utils.SanitizeFilename(fmt.Sprintf("embeddings_%d_map", p.params.Year))+".html")
	page := webmap.Page{
		Title:  fmt.Sprintf("Satellite embeddings %d", p.params.Year),
		Region: p.params.Region,
		Layers: layers,
	}
	if err := webmap.WriteFile(out, page); err != nil {
		return "", err
	}
	p.logSaved(out)
	return out, nil
}

// Cluster samples embedding pixels, trains a wekaKMeans clusterer on
// the server, registers a tile map of the clustered image and starts
// its raster export. The export keeps running after this returns; check
// it with Status and download the raster with FetchClusters.
func (p *Pipeline) Cluster(ctx context.Context) (*ClusterResult, error) {
	if err := p.requireEarthEngine(); err != nil {
		return nil, err
	}
	if err := p.requireBucket(); err != nil {
		return nil, err
	}

	sampleExpr, err := earthengine.SampleExpression(p.params.Collection, p.params.Year,
		p.params.Region, p.params.Scale, p.params.SamplePixels, p.params.Seed)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Int64("pixels", p.params.SamplePixels).
		Float64("scale", p.params.Scale).
		Msg("sampling embeddings")
	samples, err := p.ee.SampleEmbeddings(ctx, sampleExpr)
	if err != nil {
		return nil, fmt.Errorf("failed to sample embeddings: %w", err)
	}
	if len(samples.Features) == 0 {
		return nil, fmt.Errorf("sampling returned no pixels for %s in %d", p.params.Region.String(), p.params.Year)
	}
	p.log.Info().Int("samples", len(samples.Features)).Msg("sampled training pixels")

	visExpr, err := p.clusterVisExpression()
	if err != nil {
		return nil, err
	}
	tileMap, err := p.ee.CreateMap(ctx, visExpr)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster map: %w", err)
	}

	exportExpr, err := earthengine.ClusterExpression(p.params.Collection, p.params.Year,
		p.params.Region, p.params.Scale, p.params.SamplePixels, p.params.Seed, p.params.Clusters)
	if err != nil {
		return nil, err
	}

	object := fmt.Sprintf("%s_k%d", p.clusterBase(), p.params.Clusters)
	op, err := p.ee.ExportImage(ctx, earthengine.ExportRequest{
		Expression:  exportExpr,
		Description: fmt.Sprintf("embedding clusters k=%d for %d", p.params.Clusters, p.params.Year),
		Bucket:      p.params.Bucket,
		Prefix:      object,
		MaxPixels:   maxExportPixels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start cluster export: %w", err)
	}
	p.log.Info().Str("operation", op.ID()).Str("object", object).Msg("cluster export started")

	return &ClusterResult{
		Samples:   len(samples.Features),
		TileURL:   tileMap.TileTemplate,
		Operation: op.Name,
		Object:    object,
	}, nil
}

// ExportEmbeddings starts the export of a two-epoch raster: the
// baseline and target year mosaics concatenated into one 128-band
// GeoTIFF, which Change later splits and compares.
func (p *Pipeline) ExportEmbeddings(ctx context.Context) (*ExportResult, error) {
	if err := p.requireEarthEngine(); err != nil {
		return nil, err
	}
	if err := p.requireBucket(); err != nil {
		return nil, err
	}
	if p.params.BaselineYear == 0 {
		return nil, fmt.Errorf("baseline year is required for the change export")
	}

	expr, err := earthengine.ConcatenatedEpochsExpression(p.params.Collection,
		p.params.BaselineYear, p.params.Year, p.params.Region)
	if err != nil {
		return nil, err
	}

	object := p.embeddingsBase()
	op, err := p.ee.ExportImage(ctx, earthengine.ExportRequest{
		Expression:  expr,
		Description: fmt.Sprintf("embeddings %d and %d", p.params.BaselineYear, p.params.Year),
		Bucket:      p.params.Bucket,
		Prefix:      object,
		MaxPixels:   maxExportPixels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start embedding export: %w", err)
	}
	p.log.Info().Str("operation", op.ID()).Str("object", object).Msg("embedding export started")

	return &ExportResult{Operation: op.Name, Object: object}, nil
}

// Status reads the current state of one export operation. It accepts a
// full resource name or a bare id.
func (p *Pipeline) Status(ctx context.Context, name string) (*earthengine.Operation, error) {
	if err := p.requireEarthEngine(); err != nil {
		return nil, err
	}
	return p.ee.GetOperation(ctx, name)
}

// Tasks lists the project's export operations.
func (p *Pipeline) Tasks(ctx context.Context) ([]earthengine.Operation, error) {
	if err := p.requireEarthEngine(); err != nil {
		return nil, err
	}
	return p.ee.ListOperations(ctx)
}

// FetchClusters downloads the exported cluster raster for the
// configured cluster count and returns its local path.
func (p *Pipeline) FetchClusters(ctx context.Context) (string, error) {
	if err := p.requireStore(); err != nil {
		return "", err
	}
	local, err := p.fetcher.FetchClusterRaster(ctx, p.clusterBase(), p.params.Clusters)
	if err != nil {
		return "", err
	}
	p.logSaved(local)
	return local, nil
}

// FetchEmbeddings downloads the exported two-epoch embedding raster and
// returns its local path.
func (p *Pipeline) FetchEmbeddings(ctx context.Context) (string, error) {
	if err := p.requireStore(); err != nil {
		return "", err
	}
	local, err := p.fetcher.FetchEmbeddings(ctx, p.embeddingsBase())
	if err != nil {
		return "", err
	}
	p.logSaved(local)
	return local, nil
}

// RenderClusters decodes a downloaded cluster raster and writes the
// categorical plot. With an empty path it picks the newest raster in
// the data directory.
func (p *Pipeline) RenderClusters(rasterPath string) (string, error) {
	grid, err := p.loadGrid(rasterPath)
	if err != nil {
		return "", err
	}
	return p.renderClusterGrid(grid)
}

// Change decodes a downloaded two-epoch embedding raster, computes the
// per-pixel cosine similarity between the epochs and writes the
// diverging plot. With an empty path it picks the newest raster in the
// data directory.
func (p *Pipeline) Change(rasterPath string) (string, error) {
	grid, err := p.loadGrid(rasterPath)
	if err != nil {
		return "", err
	}
	return p.renderChangeGrid(grid)
}

func (p *Pipeline) renderClusterGrid(grid *raster.Grid) (string, error) {
	title := fmt.Sprintf("Embedding clusters k=%d, %d", p.params.Clusters, p.params.Year)
	img := p.renderer.ClusterPlot(grid, p.params.Clusters, title)
	return p.savePlot(img, fmt.Sprintf("clusters_k%d_%d", p.params.Clusters, p.params.Year))
}

func (p *Pipeline) renderChangeGrid(grid *raster.Grid) (string, error) {
	sim, err := embedding.ChangeMapConcatenated(grid)
	if err != nil {
		return "", err
	}
	lo, hi := sim.MinMax(0)
	p.log.Info().Float64("min", lo).Float64("max", hi).Msg("similarity range")

	title := fmt.Sprintf("Embedding similarity %d vs %d", p.params.BaselineYear, p.params.Year)
	img := p.renderer.ContinuousPlot(sim, 0, render.RdBu, title, -1, 1)
	return p.savePlot(img, fmt.Sprintf("similarity_%d_%d", p.params.BaselineYear, p.params.Year))
}

func (p *Pipeline) loadGrid(rasterPath string) (*raster.Grid, error) {
	if rasterPath == "" {
		newest, err := utils.NewestRaster(p.params.DataDir)
		if err != nil {
			return nil, fmt.Errorf("no raster path given and none found in %s: %w", p.params.DataDir, err)
		}
		rasterPath = newest
	}
	p.log.Debug().Str("raster", rasterPath).Msg("decoding raster")
	return geotiff.DecodeFile(rasterPath)
}

func (p *Pipeline) collectionSize(ctx context.Context) (int, error) {
	expr, err := earthengine.CollectionSizeExpression(p.params.Collection, p.params.Year, p.params.Region)
	if err != nil {
		return 0, err
	}
	count, err := p.ee.CollectionSize(ctx, expr)
	if err != nil {
		return 0, fmt.Errorf("failed to check embedding coverage: %w", err)
	}
	if count == 0 {
		return 0, fmt.Errorf("no embedding images for %d in %s", p.params.Year, p.params.Region.String())
	}
	return count, nil
}

func (p *Pipeline) clusterVisExpression() (*earthengine.Expression, error) {
	n := p.params.Clusters
	if n > len(render.ClusterPalette) {
		n = len(render.ClusterPalette)
	}
	palette := render.HexPalette(render.ClusterPalette[:n])
	return earthengine.ClusterVisExpression(p.params.Collection, p.params.Year,
		p.params.Region, p.params.Scale, p.params.SamplePixels, p.params.Seed,
		p.params.Clusters, palette)
}

// clusterBase is the bucket object prefix cluster exports share; the
// fetcher appends the cluster count the same way the export does.
func (p *Pipeline) clusterBase() string {
	return path.Join(p.params.Prefix, fmt.Sprintf("clusters_%d", p.params.Year))
}

func (p *Pipeline) embeddingsBase() string {
	return path.Join(p.params.Prefix, fmt.Sprintf("embeddings_%d_%d", p.params.BaselineYear, p.params.Year))
}

func (p *Pipeline) savePlot(img image.Image, name string) (string, error) {
	if err := utils.EnsureDir(p.params.OutputDir); err != nil {
		return "", err
	}
	out := p.outputPath(name)
	if err := p.renderer.Save(img, out); err != nil {
		return "", err
	}
	p.logSaved(out)
	return out, nil
}

func (p *Pipeline) outputPath(name string) string {
	return filepath.Join(p.params.OutputDir, utils.SanitizeFilename(name)+"."+p.renderer.Ext())
}

func (p *Pipeline) logSaved(path string) {
	event := p.log.Info().Str("path", path)
	if info, err := os.Stat(path); err == nil {
		event = event.Str("size", utils.FormatFileSize(info.Size()))
	}
	event.Msg("saved")
}

func (p *Pipeline) requireEarthEngine() error {
	if p.ee == nil {
		return fmt.Errorf("no earth engine client: configure a Google Cloud project first")
	}
	return nil
}

func (p *Pipeline) requireStore() error {
	if p.fetcher == nil {
		return fmt.Errorf("no storage client: configure an export bucket first")
	}
	return nil
}

func (p *Pipeline) requireBucket() error {
	if p.params.Bucket == "" {
		return fmt.Errorf("no export bucket: set the bucket parameter first")
	}
	return nil
}
