package commands

import (
	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/internal/client"
)

type output struct {
	clientCommand
}

func Output() *cobra.Command {
	var o output
	cmd := cobra.Command{
		Use:   "output [flags] job-id",
		Short: "Stream the output of a job on the supervisor server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args)
			if err != nil {
				return err
			}

			return o.with(func(c *client.Client) error {
				return c.Output(cmd.Context(), id, cmd.OutOrStdout())
			})
		},
	}

	o.cfg.Flags(&cmd)

	return &cmd
}
