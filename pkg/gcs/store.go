// Package gcs locates and downloads exported rasters in Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrNotFound marks a read of a missing object.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	Updated time.Time
}

// ObjectStore lists and reads objects in a bucket. The Cloud Storage
// provider implements it; tests swap in an in-memory one.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Read(ctx context.Context, key string) (io.ReadCloser, error)
}

// Provider implements ObjectStore on a Cloud Storage bucket.
type Provider struct {
	client *storage.Client
	bucket string
}

// New connects to Cloud Storage. With a key file it authenticates as
// that service account; with an empty path it uses application default
// credentials.
func New(ctx context.Context, bucket, keyFile string) (*Provider, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	var opts []option.ClientOption
	if keyFile != "" {
		opts = append(opts, option.WithCredentialsFile(keyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}
	return &Provider{client: client, bucket: bucket}, nil
}

// NewWithClient wraps an existing storage client.
func NewWithClient(client *storage.Client, bucket string) *Provider {
	return &Provider{client: client, bucket: bucket}
}

// Bucket returns the bucket name the provider reads from.
func (p *Provider) Bucket() string {
	return p.bucket
}

// List returns info for every object under the prefix.
func (p *Provider) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var results []ObjectInfo

	it := p.client.Bucket(p.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		results = append(results, ObjectInfo{
			Key:     attrs.Name,
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}
	return results, nil
}

// Read opens an object for reading. The caller closes the reader.
func (p *Provider) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := p.client.Bucket(p.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}
