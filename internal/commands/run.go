package commands

import (
	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/internal/client"
)

type run struct {
	clientCommand
	req requestFlags
}

func Run() *cobra.Command {
	var r run

	cmd := cobra.Command{
		Use:   "run [flags] -- args...",
		Short: "Run the worker on the supervisor server and wait for it to exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(func(c *client.Client) error {
				res, err := c.Run(cmd.Context(), r.req.request(args))
				if err != nil {
					return err
				}

				if err = printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}

				if !res.OK {
					return &ExitError{Code: res.Code}
				}
				return nil
			})
		},
	}

	r.cfg.Flags(&cmd)
	r.req.Flags(&cmd)

	return &cmd
}

type launch struct {
	clientCommand
	req requestFlags
}

func Launch() *cobra.Command {
	var l launch

	cmd := cobra.Command{
		Use:   "launch [flags] -- args...",
		Short: "Start the worker on the supervisor server, runs are paired with a progress watcher",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return l.with(func(c *client.Client) error {
				launched, err := c.Launch(cmd.Context(), l.req.request(args))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), launched)
			})
		},
	}

	l.cfg.Flags(&cmd)
	l.req.Flags(&cmd)

	return &cmd
}
