package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/cli/reader"
	"github.com/pithecene-io/suipack/cli/render"
	"github.com/pithecene-io/suipack/cli/tui"
)

// InspectCommand returns the inspect command.
// Inspect returns a deep view of a single archived package.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect an archived package by id or directory",
		ArgsUsage: "<package-id>",
		Flags:     ArchiveReadFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("package-id required", 1)
	}
	id, err := reader.ParsePackageID(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	rd, err := openReader(c)
	if err != nil {
		return err
	}
	resp, err := rd.InspectPackage(id)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect %s: %v", id, err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectPackage, resp)
	}
	return r.Render(resp)
}
