package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/runtime"
	"github.com/pithecene-io/suipack/source"
	"github.com/pithecene-io/suipack/types"
)

// FrameworkPackages are the system packages refreshed by `suipack framework`.
var FrameworkPackages = []string{"0x1", "0x2", "0x3", "0xb", "0xdee9"}

// SyncCommand returns the bulk sync command.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Archive every package published after a checkpoint",
		Description: "Pages through the GraphQL packages query. Without --start-checkpoint the\n" +
			"highest checkpoint already in the archive is used.",
		Flags: append(RunFlags(false),
			&cli.Uint64Flag{
				Name:  "start-checkpoint",
				Usage: "Archive packages created after this checkpoint (default: recovered from the archive)",
			},
		),
		Action: syncAction,
	}
}

func syncAction(c *cli.Context) error {
	setup, err := newRunSetup(c, types.SourceGraphQL)
	if err != nil {
		return err
	}
	defer setup.Close()

	var explicit *uint64
	if c.IsSet("start-checkpoint") {
		v := c.Uint64("start-checkpoint")
		explicit = &v
	}
	start, err := runtime.ResolveStartCheckpoint(explicit, setup.store)
	if err != nil {
		return cli.Exit(err.Error(), outcomeToExitCode(types.OutcomeFor(err)))
	}

	client, err := setup.fetchClient(c)
	if err != nil {
		return err
	}
	return setup.execute(c, start, func(context.Context) runtime.Source {
		return runtime.NewFetchSource(client, start)
	})
}

// CSVCommand returns the CSV replay command.
func CSVCommand() *cli.Command {
	return &cli.Command{
		Name:      "csv",
		Usage:     "Archive packages from a warehouse CSV export",
		ArgsUsage: "<file.csv>",
		Flags:     RunFlags(false),
		Action:    csvAction,
	}
}

func csvAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one CSV file required", exitRunError)
	}
	path := c.Args().First()

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open csv: %v", err), exitStorageError)
	}
	defer func() { _ = f.Close() }()

	reader, err := source.NewCSVReader(f, path)
	if err != nil {
		return cli.Exit(err.Error(), exitDecodeError)
	}

	setup, err := newRunSetup(c, types.SourceCSV)
	if err != nil {
		return err
	}
	defer setup.Close()

	start, err := setup.checkpointForFile()
	if err != nil {
		return cli.Exit(err.Error(), outcomeToExitCode(types.OutcomeFor(err)))
	}
	return setup.execute(c, start, func(context.Context) runtime.Source { return reader })
}

// ReplayCommand returns the captured-page replay command.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Archive packages from a captured GraphQL page response",
		ArgsUsage: "<page.json>",
		Flags:     RunFlags(false),
		Action:    replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one page file required", exitRunError)
	}
	path := c.Args().First()

	setup, err := newRunSetup(c, types.SourceReplay)
	if err != nil {
		return err
	}
	defer setup.Close()

	client, err := setup.fetchClient(c)
	if err != nil {
		return err
	}
	start, err := setup.checkpointForFile()
	if err != nil {
		return cli.Exit(err.Error(), outcomeToExitCode(types.OutcomeFor(err)))
	}
	return setup.execute(c, start, func(context.Context) runtime.Source {
		return runtime.NewDeferredSource(func(ctx context.Context) ([]*types.PackageWithMetadata, error) {
			return client.ReplayFile(ctx, path)
		})
	})
}

// FetchCommand returns the single-package fetch command.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Archive specific packages by address",
		ArgsUsage: "<address> [address...]",
		Flags:     RunFlags(false),
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one package address required", exitRunError)
			}
			return fetchAddresses(c, types.SourceSingle, c.Args().Slice())
		},
	}
}

// FrameworkCommand returns the framework refresh command. Framework
// packages are upgraded in place, so --force defaults to true.
func FrameworkCommand() *cli.Command {
	return &cli.Command{
		Name:  "framework",
		Usage: "Archive the Sui framework packages (0x1 0x2 0x3 0xb 0xdee9)",
		Flags: RunFlags(true),
		Action: func(c *cli.Context) error {
			return fetchAddresses(c, types.SourceFramework, FrameworkPackages)
		},
	}
}

func fetchAddresses(c *cli.Context, kind types.SourceKind, addresses []string) error {
	for _, a := range addresses {
		if _, err := types.ParseAddress(a); err != nil {
			return cli.Exit(err.Error(), exitRunError)
		}
	}

	setup, err := newRunSetup(c, kind)
	if err != nil {
		return err
	}
	defer setup.Close()

	client, err := setup.fetchClient(c)
	if err != nil {
		return err
	}
	start, err := setup.checkpointForFile()
	if err != nil {
		return cli.Exit(err.Error(), outcomeToExitCode(types.OutcomeFor(err)))
	}
	return setup.execute(c, start, func(context.Context) runtime.Source {
		return runtime.NewAddressSource(client, addresses)
	})
}
