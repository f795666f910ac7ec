// Serialization of a Tree (snapshot) to the zstd-compressed CBOR blob
// persisted under archives/<hex>.
//
// DirNode.Children order matters for reproducible archive hashes
// (spec §4.5), but Go's built-in CBOR map encoding does not preserve
// insertion order; rather than hand-roll a CBOR map header, the wire
// form below represents a directory's children as an ordered array of
// {name, node} entries, which CBOR arrays preserve natively and which
// round-trips OrderedMap's order exactly (see DESIGN.md).
package archive

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/record"
)

type wireMetadata struct {
	Inode uint64 `cbor:"inode"`
	Mode  uint32 `cbor:"mode"`
	UID   uint32 `cbor:"uid"`
	GID   uint32 `cbor:"gid"`
	Atime *int64 `cbor:"atime,omitempty"`
	Mtime *int64 `cbor:"mtime,omitempty"`
	Ctime *int64 `cbor:"ctime,omitempty"`
}

type wireEntry struct {
	Name string   `cbor:"name"`
	Node wireNode `cbor:"node"`
}

type wireNode struct {
	Kind     string       `cbor:"kind"` // "file" | "symlink" | "dir"
	Meta     wireMetadata `cbor:"meta"`
	RootHash []byte       `cbor:"root_hash,omitempty"`
	Size     uint64       `cbor:"size,omitempty"`
	Target   string       `cbor:"target,omitempty"`
	Children []wireEntry  `cbor:"children,omitempty"`
}

type wireRef struct {
	Hash  string `cbor:"hash"`
	Count uint64 `cbor:"count"`
}

type wireArchive struct {
	Root wireNode  `cbor:"root"`
	Refs []wireRef `cbor:"refs,omitempty"`
}

func toWireTime(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ns := t.UnixNano()
	return &ns
}

func fromWireTime(ns *int64) *time.Time {
	if ns == nil {
		return nil
	}
	t := time.Unix(0, *ns).UTC()
	return &t
}

func toWireMetadata(m Metadata) wireMetadata {
	return wireMetadata{
		Inode: m.Inode,
		Mode:  m.Mode,
		UID:   m.UID,
		GID:   m.GID,
		Atime: toWireTime(m.Atime),
		Mtime: toWireTime(m.Mtime),
		Ctime: toWireTime(m.Ctime),
	}
}

func fromWireMetadata(w wireMetadata) Metadata {
	return Metadata{
		Inode: w.Inode,
		Mode:  w.Mode,
		UID:   w.UID,
		GID:   w.GID,
		Atime: fromWireTime(w.Atime),
		Mtime: fromWireTime(w.Mtime),
		Ctime: fromWireTime(w.Ctime),
	}
}

func toWireNode(n Node) (wireNode, error) {
	switch v := n.(type) {
	case FileNode:
		w := wireNode{Kind: "file", Meta: toWireMetadata(v.Meta), Size: v.Size}
		if v.RootHash != nil {
			w.RootHash = append([]byte(nil), v.RootHash[:]...)
		}
		return w, nil
	case SymlinkNode:
		return wireNode{Kind: "symlink", Meta: toWireMetadata(v.Meta), Target: v.Target}, nil
	case DirNode:
		w := wireNode{Kind: "dir", Meta: toWireMetadata(v.Meta)}
		for _, name := range v.Children.Keys() {
			child, _ := v.Children.Get(name)
			wc, err := toWireNode(child)
			if err != nil {
				return wireNode{}, err
			}
			w.Children = append(w.Children, wireEntry{Name: name, Node: wc})
		}
		return w, nil
	default:
		return wireNode{}, fmt.Errorf("archive: unknown node type %T", n)
	}
}

func fromWireNode(w wireNode) (Node, error) {
	switch w.Kind {
	case "file":
		n := FileNode{Meta: fromWireMetadata(w.Meta), Size: w.Size}
		if len(w.RootHash) > 0 {
			var h hash.Hash
			copy(h[:], w.RootHash)
			n.RootHash = &h
		}
		return n, nil
	case "symlink":
		return SymlinkNode{Meta: fromWireMetadata(w.Meta), Target: w.Target}, nil
	case "dir":
		dir := DirNode{Meta: fromWireMetadata(w.Meta), Children: NewOrderedMap()}
		for _, e := range w.Children {
			child, err := fromWireNode(e.Node)
			if err != nil {
				return nil, err
			}
			dir.Children.Set(e.Name, child)
		}
		return dir, nil
	default:
		return nil, fmt.Errorf("archive: unknown node kind %q", w.Kind)
	}
}

// Encode serializes t to the zstd-compressed CBOR blob stored under
// archives/<hex>.
func Encode(t *Tree, compressionLevel int) ([]byte, error) {
	rootWire, err := toWireNode(t.Root)
	if err != nil {
		return nil, fmt.Errorf("archive: encoding tree: %w", err)
	}
	refs := make([]wireRef, 0, len(t.Refs))
	for h, n := range t.Refs {
		refs = append(refs, wireRef{Hash: h.String(), Count: n})
	}
	payload, err := cbor.Marshal(wireArchive{Root: rootWire, Refs: refs})
	if err != nil {
		return nil, fmt.Errorf("archive: marshaling CBOR: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("archive: building zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

// Decode reverses Encode, rebuilding a Tree together with its inode
// index (see BuildInodeIndex).
func Decode(data []byte) (*Tree, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("archive: building zstd decoder: %w", err)
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: zstd decompress: %w", err)
	}

	var wire wireArchive
	if err := cbor.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("archive: unmarshaling CBOR: %w", err)
	}
	root, err := fromWireNode(wire.Root)
	if err != nil {
		return nil, err
	}
	dir, ok := root.(DirNode)
	if !ok {
		return nil, fmt.Errorf("archive: root node is not a directory")
	}

	refs := make(record.BlockRefs, len(wire.Refs))
	for _, r := range wire.Refs {
		h, err := hash.Parse(r.Hash)
		if err != nil {
			return nil, fmt.Errorf("archive: ref hash: %w", err)
		}
		refs[h] = r.Count
	}

	t := &Tree{Root: dir, Refs: refs}
	t.BuildInodeIndex()
	return t, nil
}
