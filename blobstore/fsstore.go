package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/cairnbackup/cairn/errs"
)

// FSStore is a local-filesystem Store: blob bytes live one file per
// key under root (with '/' in a key mapped to a directory
// separator, so "blocks/ab12.." becomes root/blocks/ab12..), and a
// leveldb instance alongside them tracks the key set for fast,
// orderly listing without a directory walk per Keys call.
//
// Grounded on backend/depot/file/file.go's file-per-item storage
// idiom; the leveldb key index repurposes the teacher's kept-but-idle
// goleveldb dependency (see DESIGN.md) rather than reintroducing a
// directory walk for every prefix listing.
type FSStore struct {
	root string
	mu   sync.Mutex
	idx  *leveldb.DB
}

// OpenFSStore opens (creating if necessary) a filesystem-backed store
// rooted at dir.
func OpenFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: creating root: %w", err)
	}
	idx, err := leveldb.OpenFile(filepath.Join(dir, ".cairn-keys"), nil)
	if err != nil {
		return nil, fmt.Errorf("fsstore: opening key index: %w", err)
	}
	return &FSStore{root: dir, idx: idx}, nil
}

// Close releases the key index.
func (s *FSStore) Close() error {
	return s.idx.Close()
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.idx.Has([]byte(key), nil)
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok, err := s.TryGet(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrItemNotFound
	}
	return data, nil
}

func (s *FSStore) TryGet(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fsstore: reading %s: %w", key, err)
	}
	return data, true, nil
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("fsstore: creating directory for %s: %w", key, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fsstore: writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("fsstore: committing %s: %w", key, err)
	}
	if err := s.idx.Put([]byte(key), nil, nil); err != nil {
		return fmt.Errorf("fsstore: indexing %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(key)
}

func (s *FSStore) deleteLocked(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: deleting %s: %w", key, err)
	}
	if err := s.idx.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("fsstore: unindexing %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) DeleteMany(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += MaxBatchDelete {
		end := start + MaxBatchDelete
		if end > len(keys) {
			end = len(keys)
		}
		s.mu.Lock()
		for _, k := range keys[start:end] {
			if err := s.deleteLocked(k); err != nil {
				s.mu.Unlock()
				return err
			}
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *FSStore) Keys(ctx context.Context, prefix string) (KeyIterator, error) {
	iter := s.idx.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	err := iter.Error()
	iter.Release()
	if err != nil {
		return nil, fmt.Errorf("fsstore: listing prefix %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return &sliceKeyIterator{keys: keys, pos: -1}, nil
}

type sliceKeyIterator struct {
	keys []string
	pos  int
}

func (it *sliceKeyIterator) Next(ctx context.Context) bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *sliceKeyIterator) Key() string {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return ""
	}
	return it.keys[it.pos]
}

func (it *sliceKeyIterator) Err() error { return nil }
