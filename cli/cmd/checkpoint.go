package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/suipack/cli/render"
	"github.com/pithecene-io/suipack/runtime"
	"github.com/pithecene-io/suipack/types"
)

// CheckpointResponse is the response for the checkpoint command.
type CheckpointResponse struct {
	Archive    string `json:"archive"`
	Checkpoint uint64 `json:"checkpoint"`
}

// CheckpointCommand returns the checkpoint command. It prints the
// high-water mark `sync` would resume from.
func CheckpointCommand() *cli.Command {
	return &cli.Command{
		Name:   "checkpoint",
		Usage:  "Show the highest checkpoint recorded in the archive",
		Flags:  ArchiveReadFlags(),
		Action: checkpointAction,
	}
}

func checkpointAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for checkpoint command", 1)
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	cp, err := runtime.ResolveStartCheckpoint(nil, store)
	if err != nil {
		return cli.Exit(err.Error(), outcomeToExitCode(types.OutcomeFor(err)))
	}
	return r.Render(CheckpointResponse{Archive: store.Root(), Checkpoint: cp})
}
