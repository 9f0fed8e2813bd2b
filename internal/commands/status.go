package commands

import (
	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/internal/client"
)

type status struct {
	clientCommand
}

func Status() *cobra.Command {
	var s status
	cmd := cobra.Command{
		Use:   "status [flags] job-id",
		Short: "Get the status of a job on the supervisor server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args)
			if err != nil {
				return err
			}

			return s.with(func(c *client.Client) error {
				st, err := c.Status(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}

	s.cfg.Flags(&cmd)

	return &cmd
}
