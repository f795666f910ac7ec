// Package cleanup implements the engine's two garbage-collection
// sweeps: orphan detection (blobs with no record, from an interrupted
// or partially-failed prior command) and archive deletion (removing a
// snapshot and every block that only it referenced).
//
// Grounded on backend/index/file's key-iteration idiom plus the
// storage facade's DeleteMany batching, and on golang.org/x/sync/
// errgroup standing in for the teacher's hand-rolled fan-out.
package cleanup

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cairnbackup/cairn/archive"
	"github.com/cairnbackup/cairn/cairnlog"
	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/record"
	"github.com/cairnbackup/cairn/repo"
)

// OrphanStats reports what one cleanup pass removed.
type OrphanStats struct {
	ArchivesDeleted int64
	BlocksDeleted   int64
}

// Orphans streams the archives/ and blocks/ keyspaces against the
// in-memory record indices, concurrently, and bulk-deletes every blob
// with no backing record (spec §4.10, cleanup_archives + cleanup_blocks).
// The indices themselves are never mutated: an orphan blob by
// definition has no record to remove.
func Orphans(ctx context.Context, r *repo.Repository) (*OrphanStats, error) {
	stats := &OrphanStats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		keys, err := r.Storage.ListArchiveKeys(gctx)
		if err != nil {
			return fmt.Errorf("cleanup: listing archives: %w", err)
		}
		var orphans []hash.Hash
		for _, k := range keys {
			h, err := hash.Parse(k)
			if err != nil {
				return fmt.Errorf("cleanup: parsing archive key %s: %w", k, err)
			}
			if !r.Archives.Contains(h) {
				orphans = append(orphans, h)
			}
		}
		if len(orphans) == 0 {
			return nil
		}
		if err := r.Storage.DeleteArchives(gctx, orphans); err != nil {
			return fmt.Errorf("cleanup: deleting orphan archives: %w", err)
		}
		atomic.AddInt64(&stats.ArchivesDeleted, int64(len(orphans)))
		return nil
	})

	g.Go(func() error {
		keys, err := r.Storage.ListBlockKeys(gctx)
		if err != nil {
			return fmt.Errorf("cleanup: listing blocks: %w", err)
		}
		var orphans []hash.Hash
		for _, k := range keys {
			h, err := hash.Parse(k)
			if err != nil {
				return fmt.Errorf("cleanup: parsing block key %s: %w", k, err)
			}
			if !r.Blocks.Contains(h) {
				orphans = append(orphans, h)
			}
		}
		if len(orphans) == 0 {
			return nil
		}
		if err := r.Storage.DeleteBlocks(gctx, orphans); err != nil {
			return fmt.Errorf("cleanup: deleting orphan blocks: %w", err)
		}
		atomic.AddInt64(&stats.BlocksDeleted, int64(len(orphans)))
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// DeleteStats reports what Delete removed.
type DeleteStats struct {
	ArchivesDeleted int64
	BlocksDeleted   int64
}

// Delete removes every archive named in hashes: it downloads each
// archive to recover its BlockRefs contribution, removes the
// ArchiveRecord, subtracts the refs from BlockRecords (record.
// BlockRecords.RemoveRefs — a repository-integrity violation,
// ErrWrongRefCount, aborts the whole call before any record is
// mutated further), and bulk-deletes the archive blob plus every
// block whose ref count reached zero.
func Delete(ctx context.Context, r *repo.Repository, hashes []hash.Hash, log *cairnlog.Log) (*DeleteStats, error) {
	stats := &DeleteStats{}
	var garbage []hash.Hash

	for _, h := range hashes {
		data, err := r.Storage.GetArchive(ctx, h)
		if err != nil {
			return stats, fmt.Errorf("cleanup: fetching archive %s: %w", h, err)
		}
		tr, err := archive.Decode(data)
		if err != nil {
			return stats, fmt.Errorf("cleanup: decoding archive %s: %w", h, err)
		}

		if err := r.Archives.Remove(h); err != nil {
			return stats, fmt.Errorf("cleanup: removing archive record %s: %w", h, err)
		}

		removed, err := r.Blocks.RemoveRefs(record.BlockRefs(tr.Refs))
		if err != nil {
			return stats, fmt.Errorf("cleanup: reconciling block refs for archive %s: %w", h, err)
		}
		for _, rm := range removed {
			garbage = append(garbage, rm.Hash)
		}

		if latest, err := r.Archives.Latest(); err != nil || latest != h {
			// leave the pointer alone; only clear it if it named
			// exactly the archive we're removing.
			if latestPtr, ok, perr := r.Storage.GetLatest(ctx); perr == nil && ok && string(latestPtr) == h.String() {
				if cerr := r.ClearLatest(ctx); cerr != nil {
					log.Warnf(h.String(), "clearing stale latest pointer: %v", cerr)
				}
			}
		} else if err := r.ClearLatest(ctx); err != nil {
			log.Warnf(h.String(), "clearing latest pointer: %v", err)
		}

		stats.ArchivesDeleted++
	}

	if err := r.Storage.DeleteArchives(ctx, hashes); err != nil {
		return stats, fmt.Errorf("cleanup: deleting archive blobs: %w", err)
	}
	if len(garbage) > 0 {
		if err := r.Storage.DeleteBlocks(ctx, garbage); err != nil {
			return stats, fmt.Errorf("cleanup: deleting garbage blocks: %w", err)
		}
		stats.BlocksDeleted = int64(len(garbage))
	}
	return stats, nil
}
