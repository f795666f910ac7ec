package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cairnbackup/cairn/archive"
	"github.com/cairnbackup/cairn/config"
	"github.com/cairnbackup/cairn/pipeline"
	"github.com/cairnbackup/cairn/tree"
)

var restoreCommand = cli.Command{
	Action:    runRestore,
	Name:      "restore",
	Usage:     "materialize an archive (or a subpath within it) onto disk",
	ArgsUsage: "<archive-hash> <destination> [subpath]",
	Flags: []cli.Flag{
		&config.TaskCountFlag,
	},
}

func runRestore(ctx *cli.Context) error {
	args := ctx.Args()
	if args.Len() < 2 {
		return fmt.Errorf("cairn restore: usage: restore <archive-hash> <destination> [subpath]")
	}
	archiveArg := args.Get(0)
	destDir := args.Get(1)
	subPath := ""
	if args.Len() >= 3 {
		subPath = args.Get(2)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	bgCtx := context.Background()
	defer s.close(bgCtx, false)

	archiveHash, err := resolveArchiveArg(bgCtx, s, archiveArg)
	if err != nil {
		return fmt.Errorf("cairn restore: resolving archive: %w", err)
	}

	data, err := s.repo.Storage.GetArchive(bgCtx, archiveHash)
	if err != nil {
		return fmt.Errorf("cairn restore: fetching archive %s: %w", archiveHash, err)
	}
	tr, err := archive.Decode(data)
	if err != nil {
		return fmt.Errorf("cairn restore: decoding archive %s: %w", archiveHash, err)
	}

	opts := pipeline.RestoreOptions{TaskCount: ctx.Int(config.TaskCountFlag.Name)}
	stats, err := pipeline.Restore(bgCtx, s.repo.Storage, tr, subPath, destDir, opts, tree.NewLocalBlocks(), s.log)
	if err != nil {
		return fmt.Errorf("cairn restore: %w", err)
	}

	s.log.Printf("restored %d files (%d bytes) from archive %s", stats.FilesRestored, stats.BytesRestored, archiveHash)
	return nil
}
