package tree

import (
	"errors"
	"testing"

	"github.com/cairnbackup/cairn/block"
	"github.com/cairnbackup/cairn/hash"
)

var errUploadFailed = errors.New("tree: simulated upload failure")

func collectUploader(store map[hash.Hash]block.Block) Uploader {
	return func(b block.Block) error {
		store[b.Hash] = b
		return nil
	}
}

func TestSingleLeafProducesBareLeafRoot(t *testing.T) {
	store := map[hash.Hash]block.Block{}
	b := NewBuilder(128, collectUploader(store))

	if err := b.AddLeaf([]byte("hello")); err != nil {
		t.Fatalf("AddLeaf: %v", err)
	}
	root, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if root == nil {
		t.Fatalf("expected a root hash")
	}
	got, ok := store[*root]
	if !ok {
		t.Fatalf("root not found among uploaded blocks")
	}
	if !got.IsLeaf() {
		t.Fatalf("expected single-chunk root to be a bare leaf, got level %d", got.Level)
	}
}

func TestEmptyBuilderHasNoRoot(t *testing.T) {
	store := map[hash.Hash]block.Block{}
	b := NewBuilder(128, collectUploader(store))
	root, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if root != nil {
		t.Fatalf("expected no root for a builder with no leaves")
	}
}

func TestMultiChunkProducesBranchRoot(t *testing.T) {
	store := map[hash.Hash]block.Block{}
	// hash.Size*4 target => fanout 4, so 3 leaves never overflow a layer
	// during AddLeaf and must be wrapped by Finish.
	b := NewBuilder(hash.Size*4, collectUploader(store))
	for _, s := range []string{"a", "b", "c"} {
		if err := b.AddLeaf([]byte(s)); err != nil {
			t.Fatalf("AddLeaf(%q): %v", s, err)
		}
	}
	root, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got := store[*root]
	if got.IsLeaf() {
		t.Fatalf("expected multi-chunk root to be a branch")
	}
	if len(got.Children) != 3 {
		t.Fatalf("expected branch with 3 children, got %d", len(got.Children))
	}
	if got.Level != 1 {
		t.Fatalf("expected root level 1, got %d", got.Level)
	}
}

func TestOverflowDuringAddPromotesAndFinalizeMerges(t *testing.T) {
	store := map[hash.Hash]block.Block{}
	// fanout = 2, so adding 3 leaves overflows layer 0 mid-stream: the
	// first two are wrapped into a branch immediately, leaving the third
	// leaf alone in layer 0 until Finish merges everything.
	b := NewBuilder(hash.Size*2, collectUploader(store))
	for _, s := range []string{"a", "b", "c"} {
		if err := b.AddLeaf([]byte(s)); err != nil {
			t.Fatalf("AddLeaf(%q): %v", s, err)
		}
	}
	root, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, ok := store[*root]
	if !ok {
		t.Fatalf("root block not found in store")
	}
	if got.IsLeaf() {
		t.Fatalf("expected a branch root")
	}

	// Walk the whole tree and confirm every leaf's plaintext is reachable
	// exactly once and in original order.
	var leaves []string
	var walk func(h hash.Hash)
	walk = func(h hash.Hash) {
		b := store[h]
		if b.IsLeaf() {
			leaves = append(leaves, string(b.Data))
			return
		}
		for _, c := range b.Children {
			walk(c)
		}
	}
	walk(*root)
	want := []string{"a", "b", "c"}
	if len(leaves) != len(want) {
		t.Fatalf("expected %d leaves, got %d: %v", len(want), len(leaves), leaves)
	}
	for i := range want {
		if leaves[i] != want[i] {
			t.Fatalf("leaf order mismatch at %d: got %q want %q", i, leaves[i], want[i])
		}
	}
}

func TestManyLeavesBuildMultiLevelTree(t *testing.T) {
	store := map[hash.Hash]block.Block{}
	b := NewBuilder(hash.Size*2, collectUploader(store)) // fanout 2

	const n = 17
	for i := 0; i < n; i++ {
		if err := b.AddLeaf([]byte{byte(i)}); err != nil {
			t.Fatalf("AddLeaf(%d): %v", i, err)
		}
	}
	root, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var leaves []byte
	var walk func(h hash.Hash)
	walk = func(h hash.Hash) {
		blk := store[h]
		if blk.IsLeaf() {
			leaves = append(leaves, blk.Data...)
			return
		}
		for _, c := range blk.Children {
			walk(c)
		}
	}
	walk(*root)
	if len(leaves) != n {
		t.Fatalf("expected %d leaves, got %d", n, len(leaves))
	}
	for i := 0; i < n; i++ {
		if leaves[i] != byte(i) {
			t.Fatalf("leaf order mismatch at %d: got %d want %d", i, leaves[i], i)
		}
	}
}

func TestUploaderErrorPropagates(t *testing.T) {
	b := NewBuilder(128, func(block.Block) error {
		return errUploadFailed
	})
	if err := b.AddLeaf([]byte("x")); err != errUploadFailed {
		t.Fatalf("expected upload error to propagate, got %v", err)
	}
}
