// Package main provides the suipack CLI entrypoint.
//
// sync, csv, replay, fetch and framework write to the archive. Every
// other command only reads it.
//
// Usage:
//
//	suipack <command> [subcommand] [options]
//
// Exit codes of the archiving commands:
//   - 0: success
//   - 1: usage or unknown error
//   - 2: fetch error
//   - 3: decode error
//   - 4: storage error
//   - 5: decompiler error
//   - 130: canceled
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/cli/cmd"
	suipackconfig "github.com/pithecene-io/suipack/cli/config"
	"github.com/pithecene-io/suipack/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "suipack",
		Usage:          "Archive Sui Move packages and query the archive",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file before reading flags",
				Value: suipackconfig.DefaultDotEnv,
			},
		},
		Before: func(c *cli.Context) error {
			return suipackconfig.LoadDotEnv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			cmd.SyncCommand(),
			cmd.CSVCommand(),
			cmd.ReplayCommand(),
			cmd.FetchCommand(),
			cmd.FrameworkCommand(),
			cmd.CheckpointCommand(),
			cmd.ListCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.AuditCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
