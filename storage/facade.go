// Package storage wraps a blobstore.Store with the repository's key
// namespacing, call statistics, and short-hash prefix resolution, so
// every other package addresses content by hash or well-known metadata
// name rather than raw store keys.
//
// Grounded on backend/depot/depot.go's thin wrapper-over-backend idiom
// and common/ldb.go's wrap-every-call-with-bookkeeping style,
// generalized from page/value stats to byte/call stats per namespace.
package storage

import (
	"context"
	"fmt"

	"github.com/cairnbackup/cairn/blobstore"
	"github.com/cairnbackup/cairn/hash"
)

const (
	blockPrefix    = "blocks/"
	archivePrefix  = "archives/"
	metaBlocksKey  = "metadata/blocks"
	metaArchiveKey = "metadata/archives"
	metaLatestKey  = "metadata/latest"
)

func blockKey(h hash.Hash) string   { return blockPrefix + h.String() }
func archiveKey(h hash.Hash) string { return archivePrefix + h.String() }

// Facade is the namespaced, stats-tracked view of a blobstore.Store
// that the rest of the engine talks to.
type Facade struct {
	store blobstore.Store
	Stats *Stats
}

// NewFacade wraps store.
func NewFacade(store blobstore.Store) *Facade {
	return &Facade{store: store, Stats: NewStats()}
}

// BlockExists reports whether a block's bytes are already stored.
func (f *Facade) BlockExists(ctx context.Context, h hash.Hash) (bool, error) {
	return f.track(func() (bool, error) { return f.store.Exists(ctx, blockKey(h)) })
}

// GetBlock fetches a block's wire bytes.
func (f *Facade) GetBlock(ctx context.Context, h hash.Hash) ([]byte, error) {
	return f.trackBytes(func() ([]byte, error) { return f.store.Get(ctx, blockKey(h)) })
}

// PutBlock stores a block's wire bytes.
func (f *Facade) PutBlock(ctx context.Context, h hash.Hash, data []byte) error {
	return f.trackPut(len(data), func() error { return f.store.Put(ctx, blockKey(h), data) })
}

// GetArchive fetches an archive blob by root hash.
func (f *Facade) GetArchive(ctx context.Context, h hash.Hash) ([]byte, error) {
	return f.trackBytes(func() ([]byte, error) { return f.store.Get(ctx, archiveKey(h)) })
}

// PutArchive stores an archive blob.
func (f *Facade) PutArchive(ctx context.Context, h hash.Hash, data []byte) error {
	return f.trackPut(len(data), func() error { return f.store.Put(ctx, archiveKey(h), data) })
}

// DeleteArchive removes an archive blob.
func (f *Facade) DeleteArchive(ctx context.Context, h hash.Hash) error {
	f.Stats.recordCall()
	return f.store.Delete(ctx, archiveKey(h))
}

// DeleteArchives removes a batch of archive blobs, chunked by the
// underlying store's own DeleteMany.
func (f *Facade) DeleteArchives(ctx context.Context, hashes []hash.Hash) error {
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = archiveKey(h)
	}
	f.Stats.recordCall()
	return f.store.DeleteMany(ctx, keys)
}

// DeleteBlocks removes a batch of block blobs, chunked by the
// underlying store's own DeleteMany.
func (f *Facade) DeleteBlocks(ctx context.Context, hashes []hash.Hash) error {
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = blockKey(h)
	}
	f.Stats.recordCall()
	return f.store.DeleteMany(ctx, keys)
}

// GetBlockRecords fetches the serialized block-ref-count index.
func (f *Facade) GetBlockRecords(ctx context.Context) ([]byte, bool, error) {
	return f.store.TryGet(ctx, metaBlocksKey)
}

// PutBlockRecords stores the serialized block-ref-count index.
func (f *Facade) PutBlockRecords(ctx context.Context, data []byte) error {
	return f.trackPut(len(data), func() error { return f.store.Put(ctx, metaBlocksKey, data) })
}

// GetArchiveRecords fetches the serialized archive index.
func (f *Facade) GetArchiveRecords(ctx context.Context) ([]byte, bool, error) {
	return f.store.TryGet(ctx, metaArchiveKey)
}

// PutArchiveRecords stores the serialized archive index.
func (f *Facade) PutArchiveRecords(ctx context.Context, data []byte) error {
	return f.trackPut(len(data), func() error { return f.store.Put(ctx, metaArchiveKey, data) })
}

// GetLatest fetches the "latest archive" pointer, a bare hex hash
// string, reporting absence via the bool return rather than an error
// (see DESIGN.md, "archive:latest pointer" decision).
func (f *Facade) GetLatest(ctx context.Context) ([]byte, bool, error) {
	return f.store.TryGet(ctx, metaLatestKey)
}

// PutLatest atomically overwrites the "latest archive" pointer.
func (f *Facade) PutLatest(ctx context.Context, data []byte) error {
	return f.trackPut(len(data), func() error { return f.store.Put(ctx, metaLatestKey, data) })
}

// DeleteLatest clears the pointer; callers treat failure as
// best-effort and log rather than fail the command (per DESIGN.md).
func (f *Facade) DeleteLatest(ctx context.Context) error {
	f.Stats.recordCall()
	return f.store.Delete(ctx, metaLatestKey)
}

// ListArchiveKeys lists every stored archive blob key's hash suffix.
func (f *Facade) ListArchiveKeys(ctx context.Context) ([]string, error) {
	return f.listSuffixes(ctx, archivePrefix)
}

// ListBlockKeys lists every stored block blob key's hash suffix.
func (f *Facade) ListBlockKeys(ctx context.Context) ([]string, error) {
	return f.listSuffixes(ctx, blockPrefix)
}

func (f *Facade) listSuffixes(ctx context.Context, prefix string) ([]string, error) {
	it, err := f.store.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("storage: listing %s: %w", prefix, err)
	}
	var out []string
	for it.Next(ctx) {
		out = append(out, it.Key()[len(prefix):])
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("storage: listing %s: %w", prefix, err)
	}
	return out, nil
}

func (f *Facade) trackBytes(fn func() ([]byte, error)) ([]byte, error) {
	f.Stats.recordCall()
	data, err := fn()
	if err != nil {
		return nil, err
	}
	f.Stats.recordBytesRead(len(data))
	return data, nil
}

func (f *Facade) trackPut(size int, fn func() error) error {
	f.Stats.recordCall()
	if err := fn(); err != nil {
		return err
	}
	f.Stats.recordBytesWritten(size)
	return nil
}
