// Serialization of the two record indices to the CBOR blobs persisted
// at metadata/archives and metadata/blocks (no compression, per spec:
// these are small relative to the content they index).
//
// Grounded on the teacher's index-as-flat-slice persistence idiom
// (backend/index/file's on-disk page format) generalized to CBOR.
package record

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cairnbackup/cairn/hash"
)

type wireArchiveRecord struct {
	Hash    string    `cbor:"hash"`
	Created time.Time `cbor:"created"`
	Size    uint64    `cbor:"size"`
	Tags    []string  `cbor:"tags,omitempty"`
}

type wireBlockRecord struct {
	Hash     string `cbor:"hash"`
	RefCount uint64 `cbor:"ref_count"`
	Size     uint64 `cbor:"size"`
}

// EncodeArchiveRecords serializes the full index.
func EncodeArchiveRecords(idx *ArchiveRecords) ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]wireArchiveRecord, 0, len(idx.byHash))
	for h, rec := range idx.byHash {
		tags := make([]string, 0, len(rec.Tags))
		for t := range rec.Tags {
			tags = append(tags, t)
		}
		out = append(out, wireArchiveRecord{
			Hash:    h.String(),
			Created: rec.Created,
			Size:    rec.Size,
			Tags:    tags,
		})
	}
	data, err := cbor.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("record: encoding archive records: %w", err)
	}
	return data, nil
}

// DecodeArchiveRecords rebuilds an index from its serialized form.
func DecodeArchiveRecords(data []byte) (*ArchiveRecords, error) {
	var wire []wireArchiveRecord
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("record: decoding archive records: %w", err)
	}
	idx := NewArchiveRecords()
	for _, w := range wire {
		h, err := hash.Parse(w.Hash)
		if err != nil {
			return nil, fmt.Errorf("record: archive record hash: %w", err)
		}
		var tags map[string]struct{}
		if len(w.Tags) > 0 {
			tags = make(map[string]struct{}, len(w.Tags))
			for _, t := range w.Tags {
				tags[t] = struct{}{}
			}
		}
		idx.Insert(h, ArchiveRecord{Created: w.Created, Size: w.Size, Tags: tags})
	}
	return idx, nil
}

// EncodeBlockRecords serializes the full index.
func EncodeBlockRecords(idx *BlockRecords) ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]wireBlockRecord, 0, len(idx.m))
	for h, rec := range idx.m {
		out = append(out, wireBlockRecord{Hash: h.String(), RefCount: rec.RefCount, Size: rec.Size})
	}
	data, err := cbor.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("record: encoding block records: %w", err)
	}
	return data, nil
}

// DecodeBlockRecords rebuilds an index from its serialized form.
func DecodeBlockRecords(data []byte) (*BlockRecords, error) {
	var wire []wireBlockRecord
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("record: decoding block records: %w", err)
	}
	idx := NewBlockRecords()
	for _, w := range wire {
		h, err := hash.Parse(w.Hash)
		if err != nil {
			return nil, fmt.Errorf("record: block record hash: %w", err)
		}
		idx.m[h] = BlockRecord{RefCount: w.RefCount, Size: w.Size}
	}
	return idx, nil
}
