package record

import (
	"sort"
	"sync"

	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/hash"
)

// ArchiveRecords indexes ArchiveRecord by hash, and maintains a
// Created-ordered index for chronological listing.
type ArchiveRecords struct {
	mu      sync.RWMutex
	byHash  map[hash.Hash]ArchiveRecord
	ordered []hash.Hash // kept sorted by byHash[h].Created
}

// NewArchiveRecords creates an empty index.
func NewArchiveRecords() *ArchiveRecords {
	return &ArchiveRecords{byHash: map[hash.Hash]ArchiveRecord{}}
}

// Get returns the record for h, or ErrItemNotFound.
func (a *ArchiveRecords) Get(h hash.Hash) (ArchiveRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.byHash[h]
	if !ok {
		return ArchiveRecord{}, errs.ErrItemNotFound
	}
	return rec, nil
}

// Contains reports whether h is present.
func (a *ArchiveRecords) Contains(h hash.Hash) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.byHash[h]
	return ok
}

// Insert adds a new archive record. Re-inserting an existing hash
// overwrites its record in place without disturbing chronological
// order, since archive hashes are derived from creation time and size
// and so never repeat in practice; it exists for idempotent retries.
func (a *ArchiveRecords) Insert(h hash.Hash, rec ArchiveRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.byHash[h]; exists {
		a.byHash[h] = rec
		return
	}
	a.byHash[h] = rec

	i := sort.Search(len(a.ordered), func(i int) bool {
		return a.byHash[a.ordered[i]].Created.After(rec.Created)
	})
	a.ordered = append(a.ordered, hash.Hash{})
	copy(a.ordered[i+1:], a.ordered[i:])
	a.ordered[i] = h
}

// Remove deletes the record for h, returning ErrItemNotFound if absent.
func (a *ArchiveRecords) Remove(h hash.Hash) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.byHash[h]; !ok {
		return errs.ErrItemNotFound
	}
	delete(a.byHash, h)
	for i, candidate := range a.ordered {
		if candidate == h {
			a.ordered = append(a.ordered[:i], a.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// ByCreated returns every archive hash in chronological order, oldest
// first.
func (a *ArchiveRecords) ByCreated() []hash.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]hash.Hash, len(a.ordered))
	copy(out, a.ordered)
	return out
}

// Latest returns the most recently created archive hash, or
// ErrItemNotFound if the index is empty.
func (a *ArchiveRecords) Latest() (hash.Hash, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.ordered) == 0 {
		return hash.Hash{}, errs.ErrItemNotFound
	}
	return a.ordered[len(a.ordered)-1], nil
}

// Len returns the number of archive records.
func (a *ArchiveRecords) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byHash)
}
