package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cairnbackup/cairn/cleanup"
)

var cleanupCommand = cli.Command{
	Action: runCleanup,
	Name:   "cleanup",
	Usage:  "delete block and archive blobs with no backing record",
}

func runCleanup(ctx *cli.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	bgCtx := context.Background()
	defer s.close(bgCtx, false)

	stats, err := cleanup.Orphans(bgCtx, s.repo)
	if err != nil {
		return fmt.Errorf("cairn cleanup: %w", err)
	}

	s.log.Printf("cleanup complete: archives_deleted=%d blocks_deleted=%d", stats.ArchivesDeleted, stats.BlocksDeleted)
	return nil
}
