package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/joshuarubin/moldock-supervisor/internal/client"
	"github.com/joshuarubin/moldock-supervisor/pkg/registry"
	"github.com/joshuarubin/moldock-supervisor/pkg/supervisor"
)

// ExitError is returned by commands that want the process to exit with Code
// without printing an error
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// clientCommand runs fn with a client connected to the server configured by
// the cli flags
type clientCommand struct {
	cfg client.Config
}

func (c *clientCommand) with(fn func(*client.Client) error) error {
	cl, err := client.Dial(&c.cfg)
	if err != nil {
		return err
	}
	defer cl.Close()

	return fn(cl)
}

// requestFlags are the worker invocation flags shared by run and launch
type requestFlags struct {
	dir    string
	python string
}

func (r *requestFlags) Flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.dir, "dir", "", "working directory of the worker, relative project paths are resolved against it")
	cmd.Flags().StringVar(&r.python, "python", "", "python interpreter, overrides the server's")
}

func (r *requestFlags) request(args []string) supervisor.Request {
	return supervisor.Request{
		Args:   args,
		Dir:    r.dir,
		Python: r.python,
	}
}

func parseJobID(args []string) (registry.ID, error) {
	id, err := registry.ParseID(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q: %w", args[0], err)
	}
	return id, nil
}
