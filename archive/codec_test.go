package archive

import (
	"testing"

	"github.com/cairnbackup/cairn/hash"
)

func TestEncodeDecodeRoundTripPreservesOrder(t *testing.T) {
	tr := NewTree(Metadata{Mode: 0o755})
	mustInsert := func(path string, n Node) {
		t.Helper()
		if err := tr.Insert(path, n); err != nil {
			t.Fatalf("Insert(%q): %v", path, err)
		}
	}
	mustInsert("zeta", FileNode{Size: 1})
	mustInsert("alpha", *newDir())
	mustInsert("alpha/nested", FileNode{Size: 2})
	mustInsert("beta", SymlinkNode{Target: "zeta"})

	h := hash.OfLeaf([]byte("x"))
	tr.AddBlockRef(h)
	tr.AddBlockRef(h)

	data, err := Encode(tr, 3)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Refs[h] != 2 {
		t.Fatalf("expected ref count 2, got %d", got.Refs[h])
	}

	var order []string
	if err := got.WalkDFS(func(relPath string, _ Node) error {
		if relPath != "" {
			order = append(order, relPath)
		}
		return nil
	}); err != nil {
		t.Fatalf("WalkDFS: %v", err)
	}
	want := []string{"zeta", "alpha", "alpha/nested", "beta"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestEncodeDecodeEmptyFileHasNilRootHash(t *testing.T) {
	tr := NewTree(Metadata{})
	if err := tr.Insert("empty", FileNode{Size: 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	data, err := Encode(tr, 3)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	node, err := got.Get("empty")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if node.(FileNode).RootHash != nil {
		t.Fatalf("expected nil root hash for empty file")
	}
}
