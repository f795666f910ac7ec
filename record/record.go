// Package record holds the two small, always-resident indices that
// make a repository's contents enumerable and collectible: which
// archives exist and when they were created, and how many archives
// currently reference each block.
//
// Grounded on backend/index/index.go's append-only, ordinal-keyed
// index interface and common/cache.go's eviction-report-by-return-value
// idiom, generalized from "evict one entry when full" to "report every
// block a remove pushed to zero references".
package record

import (
	"time"

	"github.com/cairnbackup/cairn/hash"
)

// ArchiveRecord is the metadata kept for one archive (snapshot), keyed
// by its hash-of-Archive (see hash.OfArchive).
type ArchiveRecord struct {
	Created time.Time
	Size    uint64
	Tags    map[string]struct{}
}

// BlockRecord is the metadata kept for one block, keyed by its hash.
type BlockRecord struct {
	RefCount uint64
	Size     uint64
}

// BlockRefs is one archive's contribution to global block ref counts:
// hash of every block it reaches, mapped to how many times that
// archive's tree references it.
type BlockRefs map[hash.Hash]uint64
