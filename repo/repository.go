// Package repo wires the record indices, the storage facade, and the
// per-hash lock registry into the one object every command operates
// against for the duration of its run, loading the indices at open and
// persisting them at close.
//
// Grounded on carmen/database.go's top-level façade that opens a state
// backend and its indices together and hands back one handle a command
// drives end to end.
package repo

import (
	"context"
	"fmt"

	"github.com/cairnbackup/cairn/blobstore"
	"github.com/cairnbackup/cairn/hash"
	"github.com/cairnbackup/cairn/locks"
	"github.com/cairnbackup/cairn/record"
	"github.com/cairnbackup/cairn/storage"
)

// Repository bundles everything one cairn command needs to talk to a
// backup repository: the namespaced storage facade, the two always-
// resident record indices, and a fresh per-hash lock registry.
type Repository struct {
	Storage  *storage.Facade
	Blocks   *record.BlockRecords
	Archives *record.ArchiveRecords
	Locks    *locks.Registry
}

// Open loads (or initializes, if absent) the record indices from
// store and returns a Repository ready to drive one command.
func Open(ctx context.Context, store blobstore.Store) (*Repository, error) {
	facade := storage.NewFacade(store)

	blocks := record.NewBlockRecords()
	if data, ok, err := facade.GetBlockRecords(ctx); err != nil {
		return nil, fmt.Errorf("repo: loading block records: %w", err)
	} else if ok {
		blocks, err = record.DecodeBlockRecords(data)
		if err != nil {
			return nil, fmt.Errorf("repo: decoding block records: %w", err)
		}
	}

	archives := record.NewArchiveRecords()
	if data, ok, err := facade.GetArchiveRecords(ctx); err != nil {
		return nil, fmt.Errorf("repo: loading archive records: %w", err)
	} else if ok {
		archives, err = record.DecodeArchiveRecords(data)
		if err != nil {
			return nil, fmt.Errorf("repo: decoding archive records: %w", err)
		}
	}

	return &Repository{
		Storage:  facade,
		Blocks:   blocks,
		Archives: archives,
		Locks:    locks.NewRegistry(),
	}, nil
}

// Flush persists both record indices back to the store. Every command
// that mutates Blocks or Archives must call this before exiting.
func (r *Repository) Flush(ctx context.Context) error {
	blockData, err := record.EncodeBlockRecords(r.Blocks)
	if err != nil {
		return fmt.Errorf("repo: encoding block records: %w", err)
	}
	if err := r.Storage.PutBlockRecords(ctx, blockData); err != nil {
		return fmt.Errorf("repo: persisting block records: %w", err)
	}

	archiveData, err := record.EncodeArchiveRecords(r.Archives)
	if err != nil {
		return fmt.Errorf("repo: encoding archive records: %w", err)
	}
	if err := r.Storage.PutArchiveRecords(ctx, archiveData); err != nil {
		return fmt.Errorf("repo: persisting archive records: %w", err)
	}
	return nil
}

// Latest resolves the "archive:latest" pointer to a full hash.
func (r *Repository) Latest(ctx context.Context) (hash.Hash, error) {
	data, ok, err := r.Storage.GetLatest(ctx)
	if err != nil {
		return hash.Hash{}, fmt.Errorf("repo: reading latest pointer: %w", err)
	}
	if !ok {
		return r.Archives.Latest()
	}
	return hash.Parse(string(data))
}

// SetLatest atomically overwrites the "archive:latest" pointer. Called
// after every successful backup that is neither transient nor a dry run.
func (r *Repository) SetLatest(ctx context.Context, h hash.Hash) error {
	return r.Storage.PutLatest(ctx, []byte(h.String()))
}

// ClearLatest best-effort clears the pointer when the archive it names
// is deleted; failures are not fatal to the deleting command (per
// DESIGN.md's "archive:latest pointer" decision), so callers should log
// rather than propagate this error.
func (r *Repository) ClearLatest(ctx context.Context) error {
	return r.Storage.DeleteLatest(ctx)
}
