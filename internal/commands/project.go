package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/internal/client"
)

type progress struct {
	clientCommand
	path string
}

func Progress() *cobra.Command {
	var p progress
	cmd := cobra.Command{
		Use:   "progress [flags] project-dir",
		Short: "Show the progress the watcher reported for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.with(func(c *client.Client) error {
				res, err := c.Progress(cmd.Context(), args[0], p.path)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	p.cfg.Flags(&cmd)
	cmd.Flags().StringVar(&p.path, "path", "", "progress file, must be inside the project (default state/progress.json)")

	return &cmd
}

type projects struct {
	clientCommand
}

func Projects() *cobra.Command {
	var p projects
	cmd := cobra.Command{
		Use:   "projects",
		Short: "List the projects known to the supervisor server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return p.with(func(c *client.Client) error {
				res, err := c.Projects(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	p.cfg.Flags(&cmd)

	return &cmd
}

type readText struct {
	clientCommand
}

func ReadText() *cobra.Command {
	var r readText
	cmd := cobra.Command{
		Use:   "read-text [flags] file",
		Short: "Print a text file from the supervisor host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(func(c *client.Client) error {
				text, err := c.ReadText(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			})
		},
	}

	r.cfg.Flags(&cmd)

	return &cmd
}

type csvPreview struct {
	clientCommand
	maxRows int
}

func CSVPreview() *cobra.Command {
	var p csvPreview
	cmd := cobra.Command{
		Use:   "csv-preview [flags] file",
		Short: "Show the header and first rows of a csv file on the supervisor host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return p.with(func(c *client.Client) error {
				res, err := c.CSVPreview(cmd.Context(), args[0], p.maxRows)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	p.cfg.Flags(&cmd)
	cmd.Flags().IntVar(&p.maxRows, "max-rows", 0, "maximum number of rows, the server default when 0")

	return &cmd
}
