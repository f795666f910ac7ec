package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cairnbackup/cairn/archive"
	"github.com/cairnbackup/cairn/config"
	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/pipeline"
	"github.com/cairnbackup/cairn/record"
)

var backupCommand = cli.Command{
	Action:    runBackup,
	Name:      "backup",
	Usage:     "upload one or more paths as a new archive",
	ArgsUsage: "<path> [path...]",
	Flags: []cli.Flag{
		&config.CompressionLevelFlag,
		&config.TargetBlockSizeFlag,
		&config.TaskCountFlag,
		&config.TransientFlag,
		&config.DryRunFlag,
	},
}

func runBackup(ctx *cli.Context) error {
	roots := ctx.Args().Slice()
	if len(roots) == 0 {
		return fmt.Errorf("cairn backup: at least one path is required")
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	bgCtx := context.Background()

	opts := pipeline.UploadOptions{
		TargetBlockSize:  ctx.Int(config.TargetBlockSizeFlag.Name),
		CompressionLevel: ctx.Int(config.CompressionLevelFlag.Name),
		TaskCount:        ctx.Int(config.TaskCountFlag.Name),
		DryRun:           ctx.Bool(config.DryRunFlag.Name),
	}
	transient := ctx.Bool(config.TransientFlag.Name)

	// Dry-run mutates the in-memory record indices exactly like a real
	// backup (so stats and logs read the same) but never flushes them:
	// a record claiming a block exists when its blob was never written
	// would corrupt every future command's dedup check.
	dirty := !opts.DryRun

	tree := archive.NewTree(archive.Metadata{Mode: 0o755})
	stats, err := pipeline.Upload(bgCtx, s.repo.Storage, s.repo.Blocks, tree, s.repo.Locks, roots, opts, s.log)
	if err != nil {
		s.close(bgCtx, false)
		return fmt.Errorf("cairn backup: %w", err)
	}

	s.log.Printf("uploaded %d new blocks (%d bytes), referenced %d existing blocks",
		stats.BlocksUploaded, stats.BytesUploaded, stats.BlocksReferenced)

	var archiveHash hash.Hash
	if !transient {
		created := time.Now()
		data, err := archive.Encode(tree, opts.CompressionLevel)
		if err != nil {
			s.close(bgCtx, dirty)
			return fmt.Errorf("cairn backup: encoding archive: %w", err)
		}
		archiveHash = hash.OfArchive(created, uint64(len(data)))

		if !opts.DryRun {
			if err := s.repo.Storage.PutArchive(bgCtx, archiveHash, data); err != nil {
				s.close(bgCtx, dirty)
				return fmt.Errorf("cairn backup: storing archive: %w", err)
			}
		}
		s.repo.Archives.Insert(archiveHash, record.ArchiveRecord{Created: created, Size: uint64(len(data))})

		if !opts.DryRun {
			if err := s.repo.SetLatest(bgCtx, archiveHash); err != nil {
				s.log.Warnf(archiveHash.String(), "setting latest pointer: %v", err)
			}
		}
		s.log.Printf("archive %s committed", archiveHash)
	} else {
		s.log.Printf("transient backup: blocks uploaded, no archive committed")
	}

	return s.close(bgCtx, dirty)
}
