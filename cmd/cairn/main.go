// Command cairn is the CLI driver: backup, restore, delete, archives,
// cleanup. Run with `go run ./cmd/cairn`.
//
// Grounded on tools/state-cli/main.go's app-plus-command-list shape.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cairnbackup/cairn/config"
)

func main() {
	app := &cli.App{
		Name:     "cairn",
		HelpName: "cairn",
		Usage:    "a deduplicating, content-addressed backup tool",
		Flags: []cli.Flag{
			&config.StorageFlag,
			&config.LatencyFlag,
			&config.StatsFlag,
			&config.VerboseFlag,
			&config.QuietFlag,
		},
		Commands: []*cli.Command{
			&backupCommand,
			&restoreCommand,
			&deleteCommand,
			&archivesCommand,
			&cleanupCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
