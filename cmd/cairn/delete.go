package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cairnbackup/cairn/cleanup"
	"github.com/cairnbackup/cairn/hash"
)

var deleteCommand = cli.Command{
	Action:    runDelete,
	Name:      "delete",
	Usage:     "remove one or more archives and any blocks left unreferenced",
	ArgsUsage: "<archive-hash> [archive-hash...]",
}

func runDelete(ctx *cli.Context) error {
	args := ctx.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("cairn delete: at least one archive hash is required")
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	bgCtx := context.Background()

	hashes := make([]hash.Hash, len(args))
	for i, arg := range args {
		h, err := resolveArchiveArg(bgCtx, s, arg)
		if err != nil {
			s.close(bgCtx, false)
			return fmt.Errorf("cairn delete: resolving %s: %w", arg, err)
		}
		hashes[i] = h
	}

	stats, err := cleanup.Delete(bgCtx, s.repo, hashes, s.log)
	if err != nil {
		s.close(bgCtx, true)
		return fmt.Errorf("cairn delete: %w", err)
	}

	s.log.Printf("deleted %d archives, %d blocks reclaimed", stats.ArchivesDeleted, stats.BlocksDeleted)
	return s.close(bgCtx, true)
}
