package gcs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// memStore is an in-memory ObjectStore for tests.
type memStore struct {
	objects map[string][]byte
	updated map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

func (s *memStore) put(key string, data []byte, updated time.Time) {
	s.objects[key] = data
	s.updated[key] = updated
}

func (s *memStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for key, data := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, ObjectInfo{
			Key:     key,
			Size:    int64(len(data)),
			Updated: s.updated[key],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestFetchClusterRaster(t *testing.T) {
	store := newMemStore()
	store.put("viz/belgrade/clusters_k6.tif", []byte("tiff-bytes"), time.Now())
	store.put("viz/belgrade/clusters_k6.json", []byte("{}"), time.Now())

	dir := t.TempDir()
	fetcher := NewFetcher(store, dir)

	path, err := fetcher.FetchClusterRaster(context.Background(), "viz/belgrade/clusters", 6)
	if err != nil {
		t.Fatalf("FetchClusterRaster failed: %v", err)
	}
	if path != filepath.Join(dir, "clusters_k6.tif") {
		t.Errorf("Unexpected local path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read download: %v", err)
	}
	if string(data) != "tiff-bytes" {
		t.Errorf("Expected object bytes to round-trip, got %q", data)
	}
}

func TestFetchClusterRasterMissing(t *testing.T) {
	store := newMemStore()
	store.put("viz/belgrade/clusters_k6.tif", []byte("x"), time.Now())

	fetcher := NewFetcher(store, t.TempDir())

	_, err := fetcher.FetchClusterRaster(context.Background(), "viz/belgrade/clusters", 9)
	if err == nil {
		t.Fatal("Expected error for missing export, got nil")
	}
	if !strings.Contains(err.Error(), "k=9") {
		t.Errorf("Expected the cluster count in the error, got %v", err)
	}
}

func TestFetchClusterRasterPrefersNewest(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	store.put("viz/clusters_k6.tif", []byte("stale"), now.Add(-time.Hour))
	store.put("viz/clusters_k6_retry.tif", []byte("fresh"), now)

	fetcher := NewFetcher(store, t.TempDir())

	path, err := fetcher.FetchClusterRaster(context.Background(), "viz/clusters", 6)
	if err != nil {
		t.Fatalf("FetchClusterRaster failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "fresh" {
		t.Errorf("Expected the newest export, got %q", data)
	}
}

func TestFetchEmbeddings(t *testing.T) {
	store := newMemStore()
	store.put("embeddings/belgrade_2018_2024.tif", []byte("stack"), time.Now())

	dir := filepath.Join(t.TempDir(), "nested", "data")
	fetcher := NewFetcher(store, dir)

	path, err := fetcher.FetchEmbeddings(context.Background(), "embeddings/belgrade")
	if err != nil {
		t.Fatalf("FetchEmbeddings failed: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("Expected download under %s, got %s", dir, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected the download directory to be created: %v", err)
	}
}

func TestFetchEmbeddingsMissing(t *testing.T) {
	fetcher := NewFetcher(newMemStore(), t.TempDir())

	_, err := fetcher.FetchEmbeddings(context.Background(), "embeddings/belgrade")
	if err == nil {
		t.Fatal("Expected error for empty prefix, got nil")
	}
	if !strings.Contains(err.Error(), "embeddings/belgrade") {
		t.Errorf("Expected the prefix in the error, got %v", err)
	}
}
