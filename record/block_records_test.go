package record

import (
	"errors"
	"testing"

	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/hash"
)

func blockHash(i int) hash.Hash {
	return hash.OfLeaf([]byte{byte(i), byte(i)})
}

func TestBlockRecordsAddRefAccumulates(t *testing.T) {
	b := NewBlockRecords()
	b.AddRef(blockHash(0), 100)
	b.AddRef(blockHash(0), 100)
	b.AddRef(blockHash(0), 100)

	rec, err := b.Get(blockHash(0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.RefCount != 3 {
		t.Fatalf("expected RefCount 3, got %d", rec.RefCount)
	}
	if rec.Size != 100 {
		t.Fatalf("expected Size 100, got %d", rec.Size)
	}
}

func TestBlockRecordsRemoveRefsReturnsZeroedBlocks(t *testing.T) {
	b := NewBlockRecords()
	b.AddRef(blockHash(0), 10)
	b.AddRef(blockHash(0), 10)
	b.AddRef(blockHash(1), 20)

	removed, err := b.RemoveRefs(BlockRefs{blockHash(0): 1, blockHash(1): 1})
	if err != nil {
		t.Fatalf("RemoveRefs: %v", err)
	}
	if len(removed) != 1 || removed[0].Hash != blockHash(1) {
		t.Fatalf("expected only block 1 to be garbage, got %+v", removed)
	}

	rec, err := b.Get(blockHash(0))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.RefCount != 1 {
		t.Fatalf("expected block 0 RefCount 1, got %d", rec.RefCount)
	}
	if b.Contains(blockHash(1)) {
		t.Fatalf("expected block 1 removed entirely")
	}
}

func TestBlockRecordsRemoveRefsOverDecrementFails(t *testing.T) {
	b := NewBlockRecords()
	b.AddRef(blockHash(0), 10)

	_, err := b.RemoveRefs(BlockRefs{blockHash(0): 2})
	if !errors.Is(err, errs.ErrWrongRefCount) {
		t.Fatalf("expected ErrWrongRefCount, got %v", err)
	}

	rec, getErr := b.Get(blockHash(0))
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if rec.RefCount != 1 {
		t.Fatalf("expected record untouched after failed RemoveRefs, got RefCount %d", rec.RefCount)
	}
}

func TestBlockRecordsRemoveRefsUnknownBlockFails(t *testing.T) {
	b := NewBlockRecords()
	if _, err := b.RemoveRefs(BlockRefs{blockHash(0): 1}); !errors.Is(err, errs.ErrWrongRefCount) {
		t.Fatalf("expected ErrWrongRefCount, got %v", err)
	}
}
