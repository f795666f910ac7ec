// Package config resolves the engine's tunables from CLI flags with
// environment-variable fallbacks, in the teacher's
// flag-variable-then-ctx.String(flag.Name) style
// (tools/state-cli/sync.go).
package config

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Default tunables, used when neither a flag nor its environment
// variable override is present.
const (
	DefaultTargetBlockSize  = 1 << 20 // 1 MiB
	DefaultCompressionLevel = 3
	DefaultTaskCount        = 8
)

// Global flags, shared by every subcommand.
var (
	StorageFlag = cli.StringFlag{
		Name:    "storage",
		Usage:   "repository location (file:///path or s3://bucket)",
		EnvVars: []string{"CAIRN_STORAGE"},
	}
	LatencyFlag = cli.DurationFlag{
		Name:    "latency",
		Usage:   "artificial per-call storage latency, for testing backpressure",
		EnvVars: []string{"CAIRN_LATENCY"},
	}
	StatsFlag = cli.BoolFlag{
		Name:  "stats",
		Usage: "print storage call statistics on exit",
	}
	VerboseFlag = cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "enable debug logging",
	}
	QuietFlag = cli.BoolFlag{
		Name:    "quiet",
		Aliases: []string{"q"},
		Usage:   "suppress non-essential output",
	}
)

// Backup-specific flags.
var (
	CompressionLevelFlag = cli.IntFlag{
		Name:  "compression-level",
		Usage: "zstd compression level (1-19) for new block blobs",
		Value: DefaultCompressionLevel,
	}
	TargetBlockSizeFlag = cli.IntFlag{
		Name:  "target-block-size",
		Usage: "target chunk/block size in bytes",
		Value: DefaultTargetBlockSize,
	}
	TaskCountFlag = cli.IntFlag{
		Name:  "tasks",
		Usage: "number of concurrent upload/restore tasks",
		Value: DefaultTaskCount,
	}
	TransientFlag = cli.BoolFlag{
		Name:  "transient",
		Usage: "upload blocks but do not commit an archive record",
	}
	DryRunFlag = cli.BoolFlag{
		Name:  "dry-run",
		Usage: "walk and chunk as usual but skip all storage writes",
	}
)

// Storage holds the resolved repository connection parameters.
type Storage struct {
	URL string
}

// Resolve reads the global flags (and their CAIRN_* environment
// fallbacks, handled by urfave/cli's EnvVars) off ctx.
func Resolve(ctx *cli.Context) (Storage, error) {
	url := ctx.String(StorageFlag.Name)
	if url == "" {
		return Storage{}, fmt.Errorf("config: --%s not set (or $%s)",
			StorageFlag.Name, StorageFlag.EnvVars[0])
	}
	return Storage{URL: url}, nil
}
