package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cairnbackup/cairn/archive"
	"github.com/cairnbackup/cairn/cairnlog"
	"github.com/cairnbackup/cairn/errs"
	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/tree"
)

// PendingDownload is one regular file discovered by the restore
// walker, queued for its worker to fetch and write.
type PendingDownload struct {
	Path string // absolute destination path
	Meta archive.Metadata
	Root *hash.Hash // nil for an empty file
}

// RestoreOptions configures one restore command invocation.
type RestoreOptions struct {
	TaskCount int
}

// RestoreStats summarizes what one restore command did.
type RestoreStats struct {
	FilesRestored int64
	BytesRestored int64
}

type dirToFix struct {
	path string
	meta archive.Metadata
}

// Restore materializes tr (or the subtree rooted at subPath, if
// non-empty) under destDir. Directories and symlinks are created
// inline by the walker; regular files are fanned out to a bounded pool
// of downloader workers. Directory mode/ownership is restored only
// after every entry underneath has been written, deepest first, so a
// read-only ancestor never blocks population of its own children.
func Restore(ctx context.Context, src tree.Source, tr *archive.Tree, subPath, destDir string, opts RestoreOptions, cache *tree.LocalBlocks, log *cairnlog.Log) (*RestoreStats, error) {
	if opts.TaskCount < 1 {
		opts.TaskCount = 1
	}
	stats := &RestoreStats{}
	pending := make(chan PendingDownload, opts.TaskCount)
	var dirsMu sync.Mutex
	var dirs []dirToFix
	progress := newProgressStepper(log.NewProgressTracker("restored %d files (%.1f files/sec)", 64))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pending)
		return tr.WalkDFSFrom(subPath, func(relPath string, node archive.Node) error {
			if relPath == "" {
				return nil
			}
			dest := filepath.Join(destDir, filepath.FromSlash(relPath))
			if _, err := os.Lstat(dest); err == nil {
				return fmt.Errorf("%w: %s", errs.ErrFileAlreadyExists, dest)
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("pipeline: checking %s: %w", dest, err)
			}

			switch n := node.(type) {
			case archive.DirNode:
				if err := os.Mkdir(dest, 0o755); err != nil {
					return fmt.Errorf("pipeline: creating directory %s: %w", dest, err)
				}
				dirsMu.Lock()
				dirs = append(dirs, dirToFix{path: dest, meta: n.Meta})
				dirsMu.Unlock()
				return nil

			case archive.SymlinkNode:
				if err := os.Symlink(n.Target, dest); err != nil {
					return fmt.Errorf("pipeline: creating symlink %s: %w", dest, err)
				}
				if err := unix.Lchown(dest, int(n.Meta.UID), int(n.Meta.GID)); err != nil {
					return fmt.Errorf("pipeline: lchown %s: %w", dest, err)
				}
				return nil

			case archive.FileNode:
				select {
				case pending <- PendingDownload{Path: dest, Meta: n.Meta, Root: n.RootHash}:
				case <-gctx.Done():
					return gctx.Err()
				}
				return nil

			default:
				return fmt.Errorf("pipeline: unknown node type %T at %s", node, relPath)
			}
		})
	})

	for i := 0; i < opts.TaskCount; i++ {
		g.Go(func() error {
			for pd := range pending {
				if err := restoreFile(gctx, src, pd, cache, stats); err != nil {
					return fmt.Errorf("pipeline: restoring %s: %w", pd.Path, err)
				}
				progress.step()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := restoreMetadata(dirs[i].path, dirs[i].meta); err != nil {
			return stats, fmt.Errorf("pipeline: restoring directory metadata %s: %w", dirs[i].path, err)
		}
	}
	return stats, nil
}

func restoreFile(ctx context.Context, src tree.Source, pd PendingDownload, cache *tree.LocalBlocks, stats *RestoreStats) error {
	f, err := os.OpenFile(pd.Path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating: %w", err)
	}
	defer f.Close()

	var size int64
	if pd.Root != nil {
		if err := tree.Download(ctx, src, *pd.Root, f, cache); err != nil {
			return err
		}
		if fi, err := f.Stat(); err == nil {
			size = fi.Size()
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing: %w", err)
	}
	if err := restoreMetadata(pd.Path, pd.Meta); err != nil {
		return err
	}

	stats.addRestored(size)
	return nil
}

func (s *RestoreStats) addRestored(size int64) {
	s.FilesRestored++
	s.BytesRestored += size
}

// restoreMetadata applies mode, ownership, and timestamps to a regular
// file or directory. Symlinks are never passed here: their ownership
// is restored via Lchown at creation time in Restore's walker, since
// os.Chown/os.Chtimes always follow symlinks.
func restoreMetadata(path string, meta archive.Metadata) error {
	if err := os.Chmod(path, os.FileMode(meta.Mode&0o7777)); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Chown(path, int(meta.UID), int(meta.GID)); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	if meta.Mtime != nil {
		atime := time.Now()
		if meta.Atime != nil {
			atime = *meta.Atime
		}
		if err := os.Chtimes(path, atime, *meta.Mtime); err != nil {
			return fmt.Errorf("chtimes %s: %w", path, err)
		}
	}
	return nil
}
