// Package block implements the unit of content-addressed storage: a
// leaf wraps plaintext, a branch wraps an ordered sequence of child
// hashes. Encoding, decoding, and hash verification live here too (see
// codec.go); this file defines the in-memory representation and its
// construction invariants, grounded on the teacher's level-tagged
// hash-tree node concept (backend/hashtree/hashtree.go) and its
// file-backed framing idiom (backend/depot/file/file.go).
package block

import (
	"fmt"

	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/hash"
)

// MaxLevel is the largest branch level representable on the wire
// (level is a single byte).
const MaxLevel = 255

// Block is either a leaf (Level == 0, carries Data) or a branch
// (Level >= 1, carries Children).
type Block struct {
	Hash     hash.Hash
	Level    uint8
	Data     []byte      // non-nil and non-empty iff Level == 0
	Children []hash.Hash // non-empty iff Level >= 1
}

// IsLeaf reports whether b is a leaf block.
func (b Block) IsLeaf() bool {
	return b.Level == 0
}

// NewLeaf constructs and hashes a leaf block from plaintext. plaintext
// must be non-empty.
func NewLeaf(plaintext []byte) (Block, error) {
	if len(plaintext) == 0 {
		return Block{}, errs.ErrEmptyBlock
	}
	data := make([]byte, len(plaintext))
	copy(data, plaintext)
	return Block{
		Hash:  hash.OfLeaf(data),
		Level: 0,
		Data:  data,
	}, nil
}

// NewBranch constructs and hashes a branch block at the given level
// (>= 1) from an ordered sequence of child hashes.
func NewBranch(level uint8, children []hash.Hash) (Block, error) {
	if level == 0 {
		return Block{}, errs.ErrBranchLevelZero
	}
	if len(children) == 0 {
		return Block{}, errs.ErrEmptyBlock
	}
	kids := make([]hash.Hash, len(children))
	copy(kids, children)
	return Block{
		Hash:     hash.OfBranch(kids),
		Level:    level,
		Children: kids,
	}, nil
}

// NextLevel returns level+1, failing with ErrTooManyBlockLevels rather
// than wrapping past a uint8.
func NextLevel(level uint8) (uint8, error) {
	if level == MaxLevel {
		return 0, fmt.Errorf("%w: level %d", errs.ErrTooManyBlockLevels, level)
	}
	return level + 1, nil
}
