// Package blobstore moves database images between the local filesystem
// and object storage.
//
// A build step memory-maps its input image from a local file; when the
// image lives on MinIO or S3 it is staged to a scratch file first and
// published back after the save. The DynamoDB task ledger lets sharded
// runs record which task slices completed.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when an artifact does not exist.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("artifact not found")

// Store is an abstraction for immutable database artifacts.
type Store interface {
	// Fetch opens an artifact for reading.
	Fetch(ctx context.Context, name string) (io.ReadCloser, error)

	// Put writes an artifact atomically.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Exists reports whether an artifact is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes an artifact. Deleting an absent artifact is not an
	// error.
	Delete(ctx context.Context, name string) error

	// List returns artifact names under a prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Stage downloads an artifact to dir and returns the local path, ready
// for memory mapping. Plain local stores hand back their backing path
// without copying.
func Stage(ctx context.Context, store Store, name, dir string) (string, error) {
	if l, ok := store.(*Local); ok {
		return l.path(name), nil
	}

	r, err := store.Fetch(ctx, name)
	if err != nil {
		return "", err
	}
	defer r.Close()

	f, err := os.CreateTemp(dir, "ternbase-stage-*")
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("blobstore: stage %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Publish uploads a local file as an artifact.
func Publish(ctx context.Context, store Store, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return store.Put(ctx, name, f, info.Size())
}

// Location is a parsed artifact URL.
type Location struct {
	// Scheme is "", "minio" or "s3". Empty means a plain local path.
	Scheme string
	// Endpoint is the server address (minio only).
	Endpoint string
	// Bucket is the bucket name.
	Bucket string
	// Key is the object key or local path.
	Key string
}

// ParseURL splits a database reference: a plain path,
// "minio://endpoint/bucket/key" or "s3://bucket/key".
func ParseURL(raw string) (Location, error) {
	switch {
	case strings.HasPrefix(raw, "minio://"):
		rest := strings.TrimPrefix(raw, "minio://")
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return Location{}, fmt.Errorf("blobstore: malformed minio url %q", raw)
		}
		return Location{Scheme: "minio", Endpoint: parts[0], Bucket: parts[1], Key: parts[2]}, nil

	case strings.HasPrefix(raw, "s3://"):
		rest := strings.TrimPrefix(raw, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Location{}, fmt.Errorf("blobstore: malformed s3 url %q", raw)
		}
		return Location{Scheme: "s3", Bucket: parts[0], Key: parts[1]}, nil

	default:
		return Location{Key: raw}, nil
	}
}

// Dir returns the directory component of a location's key, for staging
// siblings next to it.
func (l Location) Dir() string {
	if l.Scheme == "" {
		return filepath.Dir(l.Key)
	}
	return ""
}
