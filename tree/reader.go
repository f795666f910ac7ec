package tree

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cairnbackup/cairn/block"
	"github.com/cairnbackup/cairn/hash"
)

// Source fetches a block's wire bytes by hash during restore.
type Source interface {
	GetBlock(ctx context.Context, h hash.Hash) ([]byte, error)
}

// LocalBlockRef points at bytes for a leaf already written to disk
// during the current restore, by path and byte range, so a
// rediscovered leaf can be copied locally instead of re-fetched.
type LocalBlockRef struct {
	Path   string
	Offset int64
	Size   int64
}

// LocalBlocks is a restore-scoped, concurrency-safe map from
// hash-of-leaf to where its bytes already landed on disk. First writer
// wins: once a hash is recorded its location never changes, even if a
// later download of the same leaf lands somewhere else.
type LocalBlocks struct {
	mu sync.RWMutex
	m  map[hash.Hash]LocalBlockRef
}

// NewLocalBlocks creates an empty cache.
func NewLocalBlocks() *LocalBlocks {
	return &LocalBlocks{m: map[hash.Hash]LocalBlockRef{}}
}

// Lookup reports a previously recorded location for h, if any. A nil
// receiver always misses, so callers may pass a nil *LocalBlocks to
// opt out of local-copy reuse entirely.
func (c *LocalBlocks) Lookup(h hash.Hash) (LocalBlockRef, bool) {
	if c == nil {
		return LocalBlockRef{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.m[h]
	return ref, ok
}

// Record stores ref for h if h has no location yet. A nil receiver is
// a no-op.
func (c *LocalBlocks) Record(h hash.Hash, ref LocalBlockRef) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[h]; !exists {
		c.m[h] = ref
	}
}

// Download materializes the file represented by root into out,
// fetching blocks from src and reusing already-written leaves recorded
// in cache. cache may be nil.
func Download(ctx context.Context, src Source, root hash.Hash, out *os.File, cache *LocalBlocks) error {
	offset, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("tree: determining write offset: %w", err)
	}
	path := out.Name()
	return downloadNode(ctx, src, root, nil, out, &offset, path, cache)
}

func downloadNode(ctx context.Context, src Source, h hash.Hash, expectedLevel *uint8, out *os.File, offset *int64, outPath string, cache *LocalBlocks) error {
	if ref, ok := cache.Lookup(h); ok {
		n, err := copyFromLocal(ref, out)
		if err != nil {
			return err
		}
		*offset += n
		return nil
	}

	raw, err := src.GetBlock(ctx, h)
	if err != nil {
		return fmt.Errorf("tree: fetching block %s: %w", h, err)
	}
	b, err := block.Decode(raw, h, expectedLevel)
	if err != nil {
		return fmt.Errorf("tree: decoding block %s: %w", h, err)
	}

	if b.IsLeaf() {
		n, err := out.Write(b.Data)
		if err != nil {
			return fmt.Errorf("tree: writing leaf %s: %w", h, err)
		}
		cache.Record(h, LocalBlockRef{Path: outPath, Offset: *offset, Size: int64(n)})
		*offset += int64(n)
		return nil
	}

	childLevel := b.Level - 1
	for _, c := range b.Children {
		if err := downloadNode(ctx, src, c, &childLevel, out, offset, outPath, cache); err != nil {
			return err
		}
	}
	return nil
}

func copyFromLocal(ref LocalBlockRef, out *os.File) (int64, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		return 0, fmt.Errorf("tree: opening local source %s: %w", ref.Path, err)
	}
	defer f.Close()

	buf := make([]byte, ref.Size)
	if _, err := f.ReadAt(buf, ref.Offset); err != nil {
		return 0, fmt.Errorf("tree: reading local source %s: %w", ref.Path, err)
	}
	n, err := out.Write(buf)
	if err != nil {
		return 0, fmt.Errorf("tree: writing from local source: %w", err)
	}
	return int64(n), nil
}
