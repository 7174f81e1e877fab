package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/cli/render"
	"github.com/pithecene-io/suipack/cli/tui"
)

// StatsCommand returns the stats command.
// Stats returns aggregated, derived facts about the archive.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show archive statistics",
		Flags:  ArchiveReadFlags(),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	rd, err := openReader(c)
	if err != nil {
		return err
	}
	stats, err := rd.Stats()
	if err != nil {
		return cli.Exit(fmt.Sprintf("stats: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsArchive, stats)
	}
	return r.Render(stats)
}
