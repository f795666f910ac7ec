package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

var archivesCommand = cli.Command{
	Action: runArchives,
	Name:   "archives",
	Usage:  "list every archive, oldest first",
}

func runArchives(ctx *cli.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	bgCtx := context.Background()
	defer s.close(bgCtx, false)

	latest, latestErr := s.repo.Latest(bgCtx)

	for _, h := range s.repo.Archives.ByCreated() {
		rec, err := s.repo.Archives.Get(h)
		if err != nil {
			return fmt.Errorf("cairn archives: %w", err)
		}
		marker := ""
		if latestErr == nil && h == latest {
			marker = " (latest)"
		}
		fmt.Printf("%s  %s  %d bytes%s\n", h.Short(12), rec.Created.Format("2006-01-02T15:04:05Z07:00"), rec.Size, marker)
	}
	return nil
}
