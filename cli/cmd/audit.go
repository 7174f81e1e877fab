package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/cli/render"
)

// AuditCommand returns the audit command with subcommands.
func AuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Scan archived bytecode for constructs worth a manual review",
		Subcommands: []*cli.Command{
			auditCapsCommand(),
		},
	}
}

func auditCapsCommand() *cli.Command {
	return &cli.Command{
		Name:   "caps",
		Usage:  "List capability structs (name ending in Cap, more than one field)",
		Flags:  ArchiveReadFlags(),
		Action: auditCapsAction,
	}
}

func auditCapsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for audit command", 1)
	}

	rd, err := openReader(c)
	if err != nil {
		return err
	}
	findings, err := rd.AuditCaps()
	if err != nil {
		return cli.Exit(fmt.Sprintf("audit caps: %v", err), 1)
	}
	return r.Render(findings)
}
