package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cairnbackup/cairn/blobstore"
	"github.com/cairnbackup/cairn/cairnlog"
	"github.com/cairnbackup/cairn/config"
	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/repo"
)

// session bundles what every subcommand needs and knows how to tear
// itself down: the open repository, its logger, and the backend's
// closer.
type session struct {
	repo   *repo.Repository
	log    *cairnlog.Log
	closer io.Closer
	cctx   *cli.Context
}

func openSession(ctx *cli.Context) (*session, error) {
	storageCfg, err := config.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	store, closer, err := blobstore.Open(storageCfg.URL)
	if err != nil {
		return nil, err
	}

	if latency := ctx.Duration(config.LatencyFlag.Name); latency > 0 {
		store = blobstore.WithLatency(store, latency)
	}

	r, err := repo.Open(context.Background(), store)
	if err != nil {
		closer.Close()
		return nil, err
	}

	log := cairnlog.New()
	log.SetDebug(ctx.Bool(config.VerboseFlag.Name))
	log.SetQuiet(ctx.Bool(config.QuietFlag.Name))

	return &session{repo: r, log: log, closer: closer, cctx: ctx}, nil
}

// close persists the record indices (if dirty is true) and releases
// the backend, reporting storage stats if --stats was requested.
// Errors from Flush take priority over a closer error so a command's
// exit code reflects the more actionable failure.
func (s *session) close(ctx context.Context, dirty bool) error {
	var flushErr error
	if dirty {
		flushErr = s.repo.Flush(ctx)
	}

	if s.cctx.Bool(config.StatsFlag.Name) {
		snap := s.repo.Storage.Stats.Snapshot()
		s.log.Printf("storage stats: calls=%d bytes_read=%d bytes_written=%d elapsed=%s",
			snap.Calls, snap.BytesRead, snap.BytesWritten, snap.Ended.Sub(snap.Started).Round(time.Millisecond))
	}

	closeErr := s.closer.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// resolveArchiveArg resolves a short or full archive hash from the
// command line, or falls back to the repository's latest archive when
// arg is empty.
func resolveArchiveArg(ctx context.Context, s *session, arg string) (hash.Hash, error) {
	if arg == "" {
		h, err := s.repo.Latest(ctx)
		if err != nil {
			return hash.Hash{}, fmt.Errorf("cairn: no archive specified and no latest archive recorded: %w", err)
		}
		return h, nil
	}
	if len(arg) == hash.Size*2 {
		return hash.Parse(arg)
	}
	full, err := s.repo.Storage.FindOneByPrefix(ctx, "archives/", arg)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.Parse(full)
}
