package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/archive"
	suipackconfig "github.com/pithecene-io/suipack/cli/config"
	"github.com/pithecene-io/suipack/cli/reader"
	"github.com/pithecene-io/suipack/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// openStore resolves the archive root from --archive or the config file.
func openStore(c *cli.Context) (*archive.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	root := resolveString(c, "archive", configVal(cfg, func(c *suipackconfig.Config) string { return c.Archive }))
	if root == "" {
		return nil, errors.New("--archive is required (flag, SUIPACK_ARCHIVE or config archive)")
	}
	return archive.New(root), nil
}

// openReader returns a read-side query layer over the archive.
func openReader(c *cli.Context) (reader.Reader, error) {
	store, err := openStore(c)
	if err != nil {
		return nil, err
	}
	return reader.New(store), nil
}

// ListCommand returns the list command.
// List returns thin rows (not inspect-level detail).
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List archived packages",
		Flags: append(ArchiveReadFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of packages to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list command", 1)
	}

	limit := c.Int("limit")
	if limit < 0 {
		return cli.Exit("--limit must be >= 0", 1)
	}

	rd, err := openReader(c)
	if err != nil {
		return err
	}
	results, err := rd.ListPackages()
	if err != nil {
		return cli.Exit(fmt.Sprintf("list packages: %v", err), 1)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}
