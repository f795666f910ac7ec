package tree

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"testing"

	"github.com/cairnbackup/cairn/block"
	"github.com/cairnbackup/cairn/hash"
)

type memSource struct {
	wire map[hash.Hash][]byte
}

func newMemSource() *memSource {
	return &memSource{wire: map[hash.Hash][]byte{}}
}

func (m *memSource) uploader() Uploader {
	return func(b block.Block) error {
		wire, err := block.Encode(b, block.DefaultCompressionLevel)
		if err != nil {
			return err
		}
		m.wire[b.Hash] = wire
		return nil
	}
}

func (m *memSource) GetBlock(ctx context.Context, h hash.Hash) ([]byte, error) {
	wire, ok := m.wire[h]
	if !ok {
		return nil, os.ErrNotExist
	}
	return wire, nil
}

func buildAndDownload(t *testing.T, targetBlockSize int, content []byte) []byte {
	t.Helper()
	src := newMemSource()
	b := NewBuilder(targetBlockSize, src.uploader())

	chunkSize := targetBlockSize / 8
	if chunkSize < 1 {
		chunkSize = 1
	}
	for i := 0; i < len(content); i += chunkSize {
		end := i + chunkSize
		if end > len(content) {
			end = len(content)
		}
		if err := b.AddLeaf(content[i:end]); err != nil {
			t.Fatalf("AddLeaf: %v", err)
		}
	}
	root, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if root == nil {
		if len(content) != 0 {
			t.Fatalf("expected a root for non-empty content")
		}
		return nil
	}

	out, err := os.CreateTemp(t.TempDir(), "restore-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer out.Close()

	if err := Download(context.Background(), src, *root, out, NewLocalBlocks()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return got
}

func TestDownloadRoundTripsSingleChunk(t *testing.T) {
	content := []byte("a small file that fits in one chunk")
	got := buildAndDownload(t, 4096, content)
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch: got %q want %q", got, content)
	}
}

func TestDownloadRoundTripsMultiLevelTree(t *testing.T) {
	content := make([]byte, 5000)
	rand.New(rand.NewSource(1)).Read(content)
	got := buildAndDownload(t, 128, content) // fanout 4, forces several levels
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch: got %d bytes want %d bytes", len(got), len(content))
	}
}

func TestDownloadReusesLocalCacheForRepeatedLeaf(t *testing.T) {
	src := newMemSource()
	b := NewBuilder(hash.Size*2, src.uploader()) // fanout 2
	leaf := []byte("repeated leaf content")
	// The same leaf appears twice in one file: the second AddLeaf
	// uploads an identical block but still adds a second child to the
	// tree, and Download serves that second occurrence from the local
	// cache.
	if err := b.AddLeaf(leaf); err != nil {
		t.Fatalf("AddLeaf: %v", err)
	}
	if err := b.AddLeaf(leaf); err != nil {
		t.Fatalf("AddLeaf: %v", err)
	}
	root, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	out, err := os.CreateTemp(t.TempDir(), "restore-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer out.Close()

	cache := NewLocalBlocks()
	if err := Download(context.Background(), src, *root, out, cache); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := append(append([]byte{}, leaf...), leaf...)
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: got %q want %q", got, want)
	}

	leafHash := hash.OfLeaf(leaf)
	if _, ok := cache.Lookup(leafHash); !ok {
		t.Fatalf("expected leaf hash to be recorded in local cache after download")
	}
}

func TestSourceGetBlockUnknownHashFails(t *testing.T) {
	src := newMemSource()
	out, err := os.CreateTemp(t.TempDir(), "restore-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer out.Close()

	// An empty file never calls Download at all in the pipeline (no root
	// hash exists), so there is no empty-root download to test; this only
	// checks that the test source reports an unknown block hash as an
	// error.
	if _, err := src.GetBlock(context.Background(), hash.Hash{}); err == nil {
		t.Fatalf("expected error fetching unknown block")
	}
}
