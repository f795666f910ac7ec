// Package pipeline implements the two symmetric command pipelines that
// drive the engine end to end: Upload walks local paths into a hash
// tree and an archive snapshot; Restore walks an archive snapshot back
// onto disk. Both are a sequential walker stage feeding a bounded
// channel of work into a fixed pool of concurrent workers.
//
// Grounded on database/mpt/io's import/export tools, which drive a
// bounded worker pool over a tree the same shape (walk, fan out,
// rejoin), generalized from MPT nodes to filesystem entries and
// golang.org/x/sync/errgroup standing in for the teacher's hand-rolled
// WaitGroup-plus-error-channel idiom.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cairnbackup/cairn/archive"
	"github.com/cairnbackup/cairn/block"
	"github.com/cairnbackup/cairn/cairnlog"
	"github.com/cairnbackup/cairn/chunk"
	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/locks"
	"github.com/cairnbackup/cairn/record"
	"github.com/cairnbackup/cairn/storage"
	"github.com/cairnbackup/cairn/tree"
)

// PendingUpload is one regular file discovered by the walker, queued
// for chunking and upload by a worker.
type PendingUpload struct {
	LocalPath   string
	ArchivePath string
	Meta        archive.Metadata
}

// UploadOptions configures one backup command invocation.
type UploadOptions struct {
	TargetBlockSize  int
	CompressionLevel int
	TaskCount        int
	DryRun           bool
}

// UploadStats summarizes what one backup command did: how many blocks
// were newly uploaded versus deduplicated against existing content
// (invariant 4), and how many bytes were written.
type UploadStats struct {
	BlocksUploaded   int64
	BlocksReferenced int64
	BytesUploaded    int64
}

func (s *UploadStats) addUploaded(size int64) {
	atomic.AddInt64(&s.BlocksUploaded, 1)
	atomic.AddInt64(&s.BytesUploaded, size)
}

func (s *UploadStats) addReferenced() {
	atomic.AddInt64(&s.BlocksReferenced, 1)
}

// Upload walks every root path, content-addresses and uploads every
// regular file it contains, and inserts the resulting tree into
// archiveTree rooted at each path's base name. archiveTree and
// blockRecs are mutated concurrently by worker goroutines and must not
// be touched by the caller until Upload returns.
func Upload(
	ctx context.Context,
	st *storage.Facade,
	blockRecs *record.BlockRecords,
	archiveTree *archive.Tree,
	lockRegistry *locks.Registry,
	roots []string,
	opts UploadOptions,
	log *cairnlog.Log,
) (*UploadStats, error) {
	if opts.TaskCount < 1 {
		opts.TaskCount = 1
	}
	stats := &UploadStats{}
	pending := make(chan PendingUpload, opts.TaskCount)
	var treeMu sync.Mutex
	progress := newProgressStepper(log.NewProgressTracker("uploaded %d blocks (%.1f blocks/sec)", 256))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pending)
		for _, root := range roots {
			if err := walkRoot(gctx, root, archiveTree, &treeMu, pending, log); err != nil {
				return err
			}
		}
		return nil
	})

	for i := 0; i < opts.TaskCount; i++ {
		g.Go(func() error {
			for pu := range pending {
				if err := uploadFile(gctx, st, blockRecs, lockRegistry, archiveTree, &treeMu, pu, opts, stats, progress); err != nil {
					return fmt.Errorf("pipeline: uploading %s: %w", pu.LocalPath, err)
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// walkRoot depth-first walks one root path, inserting directories and
// symlinks into archiveTree immediately and emitting a PendingUpload
// for every regular file. Path-tagged walk errors are logged and
// skipped; errors without a path (a failure of WalkDir itself) are
// fatal.
func walkRoot(ctx context.Context, root string, archiveTree *archive.Tree, treeMu *sync.Mutex, pending chan<- PendingUpload, log *cairnlog.Log) error {
	base := filepath.Base(filepath.Clean(root))

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf(path, "walk error: %v", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return fmt.Errorf("pipeline: relativizing %s: %w", path, relErr)
		}
		archivePath := base
		if rel != "." {
			archivePath = filepath.ToSlash(filepath.Join(base, rel))
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			log.Warnf(path, "stat error: %v", infoErr)
			return nil
		}
		meta, metaErr := metadataFromInfo(info)
		if metaErr != nil {
			log.Warnf(path, "metadata error: %v", metaErr)
			return nil
		}

		switch {
		case d.IsDir():
			treeMu.Lock()
			err := archiveTree.Insert(archivePath, archive.DirNode{Meta: meta, Children: archive.NewOrderedMap()})
			treeMu.Unlock()
			if err != nil {
				return fmt.Errorf("pipeline: inserting directory %s: %w", archivePath, err)
			}
			return nil

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				log.Warnf(path, "readlink error: %v", err)
				return nil
			}
			treeMu.Lock()
			err = archiveTree.Insert(archivePath, archive.SymlinkNode{Meta: meta, Target: target})
			treeMu.Unlock()
			if err != nil {
				return fmt.Errorf("pipeline: inserting symlink %s: %w", archivePath, err)
			}
			return nil

		case isSpecialFile(info.Mode()):
			log.Warnf(path, "skipping special file")
			return nil

		case info.Mode().IsRegular():
			select {
			case pending <- PendingUpload{LocalPath: path, ArchivePath: archivePath, Meta: meta}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil

		default:
			log.Warnf(path, "skipping unsupported file type")
			return nil
		}
	})
}

// uploadFile chunks and uploads one file, then inserts its FileNode
// into archiveTree under treeMu.
func uploadFile(
	ctx context.Context,
	st *storage.Facade,
	blockRecs *record.BlockRecords,
	lockRegistry *locks.Registry,
	archiveTree *archive.Tree,
	treeMu *sync.Mutex,
	pu PendingUpload,
	opts UploadOptions,
	stats *UploadStats,
	progress *progressStepper,
) error {
	f, err := os.Open(pu.LocalPath)
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}
	defer f.Close()

	uploader := func(b block.Block) error {
		var uploadErr error
		lockErr := lockRegistry.With(ctx, b.Hash, func() error {
			if blockRecs.Contains(b.Hash) {
				blockRecs.AddRef(b.Hash, 0)
				stats.addReferenced()
				treeMu.Lock()
				archiveTree.AddBlockRef(b.Hash)
				treeMu.Unlock()
				progress.step()
				return nil
			}

			data, err := block.Encode(b, opts.CompressionLevel)
			if err != nil {
				uploadErr = fmt.Errorf("encoding block %s: %w", b.Hash, err)
				return uploadErr
			}
			if !opts.DryRun {
				if err := st.PutBlock(ctx, b.Hash, data); err != nil {
					uploadErr = fmt.Errorf("storing block %s: %w", b.Hash, err)
					return uploadErr
				}
			}
			blockRecs.AddRef(b.Hash, uint64(len(data)))
			stats.addUploaded(int64(len(data)))
			treeMu.Lock()
			archiveTree.AddBlockRef(b.Hash)
			treeMu.Unlock()
			progress.step()
			return nil
		})
		if lockErr != nil {
			return lockErr
		}
		return uploadErr
	}

	builder := tree.NewBuilder(opts.TargetBlockSize, uploader)
	c := chunk.New(f, opts.TargetBlockSize)
	var size uint64
	for {
		ch, err := c.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("chunking: %w", err)
		}
		if ierr := builder.AddLeaf(ch.Data); ierr != nil {
			return ierr
		}
		size += uint64(ch.Length)
	}

	root, err := builder.Finish()
	if err != nil {
		return fmt.Errorf("finishing hash tree: %w", err)
	}

	var rootHash *hash.Hash
	if root != nil {
		rootHash = root
	}

	treeMu.Lock()
	err = archiveTree.Insert(pu.ArchivePath, archive.FileNode{Meta: pu.Meta, RootHash: rootHash, Size: size})
	treeMu.Unlock()
	if err != nil {
		return fmt.Errorf("inserting file node %s: %w", pu.ArchivePath, err)
	}
	return nil
}
