package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/internal/commands"
)

func main() {
	if err := run(); err != nil {
		if code, ok := exitCode(err); ok {
			os.Exit(code)
		}

		os.Exit(1)
	}
}

func run() error {
	root := cobra.Command{
		Use:   "moldock-supervisor",
		Short: "Runs and supervises moldockpipe workers and their progress watchers",

		// a failed worker run is reported through the exit code, cobra
		// shouldn't add its own usage or error output to it
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(commands.CSVPreview())
	root.AddCommand(commands.Launch())
	root.AddCommand(commands.Output())
	root.AddCommand(commands.Progress())
	root.AddCommand(commands.Projects())
	root.AddCommand(commands.ReadText())
	root.AddCommand(commands.Run())
	root.AddCommand(commands.Serve())
	root.AddCommand(commands.Status())

	ctx := context.Background()

	cmd, err := root.ExecuteContextC(ctx)
	if _, ok := exitCode(err); ok {
		return err
	}

	if err != nil {
		// copied from cobra so that everything but a worker exit code still
		// shows usage and the error
		root.Println(cmd.UsageString())
		root.PrintErrln(root.ErrPrefix(), err.Error())
	}

	return err
}

func exitCode(err error) (int, bool) {
	var eerr *commands.ExitError
	if errors.As(err, &eerr) {
		return eerr.Code, true
	}
	return 0, false
}
