package archive

import (
	"strings"

	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/record"
)

// Tree is a rooted archive snapshot: a directory tree of Nodes plus
// the per-snapshot block reference-count contribution (record.BlockRefs)
// described in spec §3. Every DirNode, including the root, is stored
// by value in the Node interface (never *DirNode): DirNode.Children is
// already a pointer, so copies share the same child map and a single
// concrete type can be asserted everywhere a directory is expected.
//
// Refs and Insert are not internally synchronized; a caller driving
// concurrent tasks against the same Tree (the upload pipeline) must
// hold its own mutex around both, matching the teacher's convention of
// pushing concurrency discipline to the owning caller rather than
// burying a lock in every leaf type.
type Tree struct {
	Root     DirNode
	Refs     record.BlockRefs
	inodeIdx map[uint64]string
}

// NewTree creates an empty archive rooted at a directory.
func NewTree(rootMeta Metadata) *Tree {
	return &Tree{Root: DirNode{Meta: rootMeta, Children: NewOrderedMap()}, Refs: record.BlockRefs{}}
}

// AddBlockRef records one more reference from this snapshot to h.
func (t *Tree) AddBlockRef(h hash.Hash) {
	if t.Refs == nil {
		t.Refs = record.BlockRefs{}
	}
	t.Refs[h]++
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errs.ErrEmptyPath
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return nil, errs.ErrEmptyPath
	}
	return parts, nil
}

// Insert places node at path, creating no intermediate directories:
// every ancestor directory must already exist. Fails with
// ErrEmptyPath, ErrFileDoesNotExist (missing ancestor),
// ErrFileIsNotDirectory (ancestor exists but isn't a directory), or
// ErrPathAlreadyArchived (path already occupied).
func (t *Tree) Insert(path string, node Node) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}

	dir := t.Root
	for _, name := range parts[:len(parts)-1] {
		child, ok := dir.Children.Get(name)
		if !ok {
			return errs.ErrFileDoesNotExist
		}
		sub, ok := child.(DirNode)
		if !ok {
			return errs.ErrFileIsNotDirectory
		}
		dir = sub
	}

	leaf := parts[len(parts)-1]
	if _, exists := dir.Children.Get(leaf); exists {
		return errs.ErrPathAlreadyArchived
	}
	dir.Children.Set(leaf, node)
	return nil
}

// Get looks up the node at path.
func (t *Tree) Get(path string) (Node, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var cur Node = t.Root
	for _, name := range parts {
		dir, ok := cur.(DirNode)
		if !ok {
			return nil, errs.ErrFileIsNotDirectory
		}
		child, ok := dir.Children.Get(name)
		if !ok {
			return nil, errs.ErrFileDoesNotExist
		}
		cur = child
	}
	return cur, nil
}

// WalkFunc is called once per node during a walk, with its path
// relative to the archive root (empty string for the root itself).
// Returning an error stops the walk and propagates the error.
type WalkFunc func(relPath string, node Node) error

// WalkDFS visits the tree depth-first, parent before children, in each
// directory's insertion order.
func (t *Tree) WalkDFS(fn WalkFunc) error {
	return walkDFS("", t.Root, fn)
}

// WalkDFSFrom is WalkDFS rooted at subPath instead of the archive
// root; the visited relPaths are still relative to the archive root,
// not to subPath. An empty subPath is equivalent to WalkDFS.
func (t *Tree) WalkDFSFrom(subPath string, fn WalkFunc) error {
	if subPath == "" {
		return t.WalkDFS(fn)
	}
	node, err := t.Get(subPath)
	if err != nil {
		return err
	}
	return walkDFS(subPath, node, fn)
}

func walkDFS(relPath string, node Node, fn WalkFunc) error {
	if err := fn(relPath, node); err != nil {
		return err
	}
	dir, ok := node.(DirNode)
	if !ok {
		return nil
	}
	for _, name := range dir.Children.Keys() {
		child, _ := dir.Children.Get(name)
		if err := walkDFS(joinPath(relPath, name), child, fn); err != nil {
			return err
		}
	}
	return nil
}

// WalkBFS visits the tree breadth-first, level by level, in each
// directory's insertion order within a level.
func (t *Tree) WalkBFS(fn WalkFunc) error {
	type queued struct {
		path string
		node Node
	}
	queue := []queued{{"", t.Root}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if err := fn(cur.path, cur.node); err != nil {
			return err
		}
		if dir, ok := cur.node.(DirNode); ok {
			for _, name := range dir.Children.Keys() {
				child, _ := dir.Children.Get(name)
				queue = append(queue, queued{joinPath(cur.path, name), child})
			}
		}
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// BuildInodeIndex (re)builds the inode-to-path lookup that
// PathForInode answers, keeping the first path walked for each inode.
// The restore pipeline does not consult it. It is lazy and idempotent:
// called once after the tree is fully loaded (e.g. decoded from CBOR),
// not maintained incrementally during Insert.
func (t *Tree) BuildInodeIndex() {
	idx := map[uint64]string{}
	_ = t.WalkDFS(func(relPath string, node Node) error {
		if relPath == "" {
			return nil
		}
		meta := NodeMetadata(node)
		if _, exists := idx[meta.Inode]; !exists {
			idx[meta.Inode] = relPath
		}
		return nil
	})
	t.inodeIdx = idx
}

// PathForInode returns a previously recorded path sharing inode, if
// the index has been built and contains it.
func (t *Tree) PathForInode(inode uint64) (string, bool) {
	if t.inodeIdx == nil {
		return "", false
	}
	path, ok := t.inodeIdx[inode]
	return path, ok
}
