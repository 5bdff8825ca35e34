package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/internal/utils"
)

// Fetcher downloads exported GeoTIFFs into a local directory.
type Fetcher struct {
	store ObjectStore
	dir   string
}

// NewFetcher creates a fetcher writing into dir.
func NewFetcher(store ObjectStore, dir string) *Fetcher {
	return &Fetcher{store: store, dir: dir}
}

// FetchClusterRaster finds the export of a k-cluster run and downloads
// it. The object prefix encodes k, so a missing object usually means
// that export was never started.
func (f *Fetcher) FetchClusterRaster(ctx context.Context, prefix string, k int) (string, error) {
	full := fmt.Sprintf("%s_k%d", prefix, k)
	objects, err := f.store.List(ctx, full)
	if err != nil {
		return "", fmt.Errorf("failed to list exports: %v", err)
	}

	key := newestTiff(objects)
	if key == "" {
		return "", fmt.Errorf("no exported raster for k=%d clusters (prefix %q): start the export and wait for it to finish", k, full)
	}
	return f.download(ctx, key)
}

// FetchEmbeddings downloads the newest exported embedding raster under
// the prefix.
func (f *Fetcher) FetchEmbeddings(ctx context.Context, prefix string) (string, error) {
	objects, err := f.store.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to list exports: %v", err)
	}

	key := newestTiff(objects)
	if key == "" {
		return "", fmt.Errorf("no exported embedding raster under %q: start the export and wait for it to finish", prefix)
	}
	return f.download(ctx, key)
}

// newestTiff picks the most recently written GeoTIFF, so retried
// exports resolve to their latest run.
func newestTiff(objects []ObjectInfo) string {
	var key string
	var best ObjectInfo
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".tif") {
			continue
		}
		if key == "" || obj.Updated.After(best.Updated) {
			key, best = obj.Key, obj
		}
	}
	return key
}

func (f *Fetcher) download(ctx context.Context, key string) (string, error) {
	r, err := f.store.Read(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %v", key, err)
	}
	defer r.Close()

	if err := utils.EnsureDir(f.dir); err != nil {
		return "", fmt.Errorf("failed to create %s: %v", f.dir, err)
	}

	path := filepath.Join(f.dir, filepath.Base(key))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %v", path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to download %s: %v", key, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}
