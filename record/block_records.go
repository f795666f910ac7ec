package record

import (
	"fmt"
	"sync"

	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/hash"
)

// BlockRecords indexes BlockRecord by hash and tracks reference counts
// contributed by archives.
type BlockRecords struct {
	mu sync.RWMutex
	m  map[hash.Hash]BlockRecord
}

// NewBlockRecords creates an empty index.
func NewBlockRecords() *BlockRecords {
	return &BlockRecords{m: map[hash.Hash]BlockRecord{}}
}

// Get returns the record for h, or ErrItemNotFound.
func (b *BlockRecords) Get(h hash.Hash) (BlockRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.m[h]
	if !ok {
		return BlockRecord{}, errs.ErrItemNotFound
	}
	return rec, nil
}

// Contains reports whether h is present.
func (b *BlockRecords) Contains(h hash.Hash) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.m[h]
	return ok
}

// AddRef registers one more reference to h, creating the record (with
// size) if this is its first. Size is ignored on subsequent calls for
// an already-known hash, since block contents (and therefore size) are
// immutable once hashed.
func (b *BlockRecords) AddRef(h hash.Hash, size uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.m[h]
	if !ok {
		rec = BlockRecord{Size: size}
	}
	rec.RefCount++
	b.m[h] = rec
}

// RemovedBlock is a block whose ref count reached zero as a result of
// a RemoveRefs call, and so is now garbage.
type RemovedBlock struct {
	Hash hash.Hash
	Size uint64
}

// RemoveRefs decrements the ref count of every block named in refs by
// the given contribution count, returning the blocks whose count
// reached exactly zero. Decrementing past zero is a repository
// integrity violation (ErrWrongRefCount) and aborts before any record
// is mutated.
func (b *BlockRecords) RemoveRefs(refs BlockRefs) ([]RemovedBlock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for h, n := range refs {
		rec, ok := b.m[h]
		if !ok || rec.RefCount < n {
			return nil, fmt.Errorf("%w: block %s", errs.ErrWrongRefCount, h)
		}
	}

	var removed []RemovedBlock
	for h, n := range refs {
		rec := b.m[h]
		rec.RefCount -= n
		if rec.RefCount == 0 {
			removed = append(removed, RemovedBlock{Hash: h, Size: rec.Size})
			delete(b.m, h)
			continue
		}
		b.m[h] = rec
	}
	return removed, nil
}

// Len returns the number of distinct blocks tracked.
func (b *BlockRecords) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}
