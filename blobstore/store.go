// Package blobstore defines the storage contract every backend
// satisfies (fsstore for local files, s3store for S3-compatible
// object stores) and the backends themselves.
//
// Grounded on backend/depot/file/file.go's file-backed-storage idiom
// for fsstore, and on other_examples/manifests/restic-restic/go.mod
// for the minio-go dependency s3store wraps.
package blobstore

import (
	"context"
)

// MaxBatchDelete is the largest number of keys DeleteMany sends to a
// backend in one request.
const MaxBatchDelete = 1000

// Store is the object-store contract every backend implements. Keys
// are opaque UTF-8 strings; the engine uses exactly five shapes
// (blocks/<hex>, archives/<hex>, metadata/blocks, metadata/archives,
// metadata/latest).
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns ErrItemNotFound if key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// TryGet reports absence via the bool return instead of an error.
	TryGet(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// DeleteMany may be called with more than MaxBatchDelete keys;
	// implementations are responsible for their own chunking.
	DeleteMany(ctx context.Context, keys []string) error
	// Keys lists every key with the given prefix, lexicographically.
	Keys(ctx context.Context, prefix string) (KeyIterator, error)
}

// KeyIterator is a pull iterator over a (potentially paged) key
// listing.
type KeyIterator interface {
	// Next advances to the next key, returning false at the end of the
	// sequence (not an error) or on any real error, which Err reports.
	Next(ctx context.Context) bool
	Key() string
	Err() error
}
