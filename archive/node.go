// Package archive represents one snapshot: a rooted tree of filesystem
// entries, each carrying POSIX metadata, with files pointing at a hash
// tree root instead of embedding content.
//
// Grounded on database/mpt/forest.go's recursive node-tree-over-storage
// idiom, generalized from account/storage trie nodes to filesystem
// entries, and on the teacher's ordered-map-for-deterministic-hashing
// preference.
package archive

import (
	"time"

	"github.com/cairnbackup/cairn/hash"
)

// Metadata is the POSIX attributes carried by every node. The
// timestamps are nil when the originating syscall could not produce
// them.
type Metadata struct {
	Inode uint64
	Mode  uint32
	UID   uint32
	GID   uint32
	Atime *time.Time
	Mtime *time.Time
	Ctime *time.Time
}

// Node is one entry in an archive tree.
type Node interface {
	isNode()
	meta() Metadata
}

// FileNode is a regular file. RootHash is nil for an empty file.
type FileNode struct {
	Meta     Metadata
	RootHash *hash.Hash
	Size     uint64
}

func (FileNode) isNode()          {}
func (n FileNode) meta() Metadata { return n.Meta }

// SymlinkNode is a symbolic link.
type SymlinkNode struct {
	Meta   Metadata
	Target string
}

func (SymlinkNode) isNode()          {}
func (n SymlinkNode) meta() Metadata { return n.Meta }

// DirNode is a directory; Children preserves insertion order for
// deterministic serialization and walks.
type DirNode struct {
	Meta     Metadata
	Children *OrderedMap
}

func (DirNode) isNode()          {}
func (n DirNode) meta() Metadata { return n.Meta }

// NodeMetadata returns the metadata common to every node kind.
func NodeMetadata(n Node) Metadata {
	return n.meta()
}
