// Package tree implements the hash tree that represents a file's bytes:
// Builder streams chunk hashes into a fixed-fanout tree and uploads every
// block exactly once (via a caller-supplied Uploader), emitting a single
// root hash; Download (reader.go) walks a root hash back into bytes.
//
// Grounded on backend/hashtree/reduction.go's layered branching-factor
// reduction (ReduceHashes), generalized from a fixed in-memory page
// count into a streaming, uploading builder.
package tree

import (
	"fmt"

	"github.com/cairnbackup/cairn/block"
	"github.com/cairnbackup/cairn/hash"
)

// Uploader is invoked once per block produced by the builder (leaf or
// branch); it is responsible for the per-hash dedup check and the
// actual put to the blob store (see the locks and pipeline packages).
type Uploader func(block.Block) error

// Builder accumulates chunk hashes into a hash tree, layer by layer.
type Builder struct {
	fanout int
	layers [][]hash.Hash
	upload Uploader
}

// NewBuilder creates a Builder for the given target block size; fanout
// is target/hash.Size, floored at 2.
func NewBuilder(targetBlockSize int, upload Uploader) *Builder {
	fanout := targetBlockSize / hash.Size
	if fanout < 2 {
		fanout = 2
	}
	return &Builder{fanout: fanout, upload: upload}
}

// AddLeaf encodes, uploads, and accumulates one chunk of plaintext.
func (b *Builder) AddLeaf(data []byte) error {
	leaf, err := block.NewLeaf(data)
	if err != nil {
		return err
	}
	if err := b.upload(leaf); err != nil {
		return err
	}
	b.ensureLayer(0)
	b.layers[0] = append(b.layers[0], leaf.Hash)
	return b.promoteOverflow()
}

// Finish completes the tree and returns the root hash, or nil if no
// leaves were ever added (an empty file).
func (b *Builder) Finish() (*hash.Hash, error) {
	if len(b.layers) == 0 {
		return nil, nil
	}

	// Tie-break: content that fits in a single chunk is its own root,
	// with no branch wrapper.
	if len(b.layers) == 1 && len(b.layers[0]) == 1 {
		root := b.layers[0][0]
		return &root, nil
	}

	if err := b.promoteFinalize(); err != nil {
		return nil, err
	}
	for _, layer := range b.layers {
		if len(layer) == 1 {
			root := layer[0]
			return &root, nil
		}
	}
	return nil, fmt.Errorf("tree: finalize did not converge to a single root")
}

func (b *Builder) ensureLayer(i int) {
	for len(b.layers) <= i {
		b.layers = append(b.layers, nil)
	}
}

// promoteOverflow implements the add-leaf promotion protocol: while a
// layer holds more than fanout hashes, drain its first fanout entries
// (keeping the last, which may yet accumulate siblings) into one branch
// pushed onto the next layer.
func (b *Builder) promoteOverflow() error {
	for i := 0; i < len(b.layers); i++ {
		for len(b.layers[i]) > b.fanout {
			group := append([]hash.Hash(nil), b.layers[i][:b.fanout]...)
			b.layers[i] = append([]hash.Hash(nil), b.layers[i][b.fanout:]...)
			if err := b.emitBranch(i, group); err != nil {
				return err
			}
		}
	}
	return nil
}

// promoteFinalize drains every remaining hash — lowest populated layer
// first — into branches, cascading upward, until a single hash remains
// in the highest populated layer.
func (b *Builder) promoteFinalize() error {
	for {
		lowest := -1
		for i, layer := range b.layers {
			if len(layer) > 0 {
				lowest = i
				break
			}
		}
		if lowest == -1 {
			return fmt.Errorf("tree: finalize found no hashes to reduce")
		}

		onlyPopulatedLayer := true
		for i := lowest + 1; i < len(b.layers); i++ {
			if len(b.layers[i]) > 0 {
				onlyPopulatedLayer = false
				break
			}
		}
		if onlyPopulatedLayer && len(b.layers[lowest]) == 1 {
			return nil
		}

		group := b.layers[lowest]
		b.layers[lowest] = nil
		if err := b.emitBranch(lowest, group); err != nil {
			return err
		}
	}
}

func (b *Builder) emitBranch(layerIndex int, children []hash.Hash) error {
	level, err := block.NextLevel(uint8(layerIndex))
	if err != nil {
		return err
	}
	branch, err := block.NewBranch(level, children)
	if err != nil {
		return err
	}
	if err := b.upload(branch); err != nil {
		return err
	}
	b.ensureLayer(layerIndex + 1)
	b.layers[layerIndex+1] = append(b.layers[layerIndex+1], branch.Hash)
	return nil
}
