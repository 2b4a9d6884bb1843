package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS implements Store on a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// Verify interface compliance.
var _ Store = (*GCS)(nil)

// NewGCS opens a client for the given bucket. Credentials come from the
// environment (application default credentials on Cloud Run).
func NewGCS(ctx context.Context, bucketName string, opts ...option.ClientOption) (*GCS, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{
		client: client,
		bucket: client.Bucket(bucketName),
		name:   bucketName,
	}, nil
}

// Bucket returns the bucket name the store writes to.
func (g *GCS) Bucket() string { return g.name }

// Close releases the underlying client.
func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := g.bucket.Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (g *GCS) Put(ctx context.Context, path string, data []byte) error {
	w := g.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentTypeFor(path)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (g *GCS) PutIfAbsent(ctx context.Context, path string, data []byte) error {
	obj := g.bucket.Object(path).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentTypeFor(path)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, path)
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var paths []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		paths = append(paths, attrs.Name)
	}
	return paths, nil
}

func (g *GCS) Delete(ctx context.Context, path string) error {
	if err := g.bucket.Object(path).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// contentTypeFor keeps the persisted layout byte-compatible with prior
// deployments, which tagged documents and logs explicitly.
func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".jsonl"):
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
