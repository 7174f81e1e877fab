// Package cmd provides CLI commands for the suipack binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/fetch"
)

// urfave/cli records whether a flag was set, env vars included, on the flag
// value itself. Every command gets its own values from these constructors.

// formatFlag selects output format: json, table, yaml.
func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}
}

// noColorFlag disables colored output.
func noColorFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
}

// tuiFlag enables Bubble Tea interactive mode.
// Only valid for select read-only commands (inspect, stats).
func tuiFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}
}

// configFlag points at a YAML config file. CLI flags override its values.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML config file",
		EnvVars: []string{"SUIPACK_CONFIG"},
	}
}

// archiveFlag is the archive root directory.
func archiveFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "archive",
		Aliases: []string{"a"},
		Usage:   "Archive root directory",
		EnvVars: []string{"SUIPACK_ARCHIVE"},
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		formatFlag(),
		noColorFlag(),
		tuiFlag(),
	}
}

// ArchiveReadFlags returns the flags of read-only commands over an archive.
func ArchiveReadFlags() []cli.Flag {
	return append([]cli.Flag{configFlag(), archiveFlag()}, ReadOnlyFlags()...)
}

// RunFlags returns the flags shared by every command that archives packages.
// forceDefault is the --force default; framework refreshes force by default.
func RunFlags(forceDefault bool) []cli.Flag {
	return []cli.Flag{
		configFlag(),
		archiveFlag(),
		&cli.StringFlag{
			Name:    "decompiler",
			Usage:   "Path to the move-decompiler binary (required unless decompiled output is disabled)",
			EnvVars: []string{"SUIPACK_DECOMPILER"},
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Rewrite artifacts that already exist",
			Value: forceDefault,
		},
		&cli.StringSliceFlag{
			Name:  "skip",
			Usage: "Artifacts not to write: bcs, bytecode, decompiled, call_graph, metadata",
		},
		&cli.StringFlag{
			Name:  "checkpoint-file",
			Usage: "Write the highest processed checkpoint to this file after a successful run",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON run report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the result summary",
		},
		// Endpoint flags
		&cli.StringFlag{
			Name:    "graphql-url",
			Usage:   "Sui GraphQL endpoint (default " + fetch.DefaultGraphQLEndpoint + ")",
			EnvVars: []string{"SUIPACK_GRAPHQL_URL"},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Sui JSON-RPC endpoint for pruned provenance (default " + fetch.DefaultRPCEndpoint + ")",
			EnvVars: []string{"SUIPACK_RPC_URL"},
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Packages requested per GraphQL page",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request HTTP timeout",
		},
		// Mirror flags
		&cli.StringFlag{
			Name:  "mirror-backend",
			Usage: "Mirror new artifacts to a lode store: fs or s3",
		},
		&cli.StringFlag{
			Name:  "mirror-path",
			Usage: "Mirror location (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "mirror-s3-region",
			Usage: "AWS region for the s3 mirror (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "mirror-s3-endpoint",
			Usage: "Custom S3 endpoint (R2, MinIO)",
		},
		&cli.BoolFlag{
			Name:  "mirror-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
		// Adapter flags
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook URL or redis://host:port/db",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
		},
		// Observability flags
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Also write JSON logs to this rotated file",
		},
		&cli.StringFlag{
			Name:  "metrics-textfile",
			Usage: "Write Prometheus metrics to this file for the node-exporter textfile collector",
		},
	}
}
