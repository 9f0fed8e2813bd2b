package registry

import "strconv"

// ID is the opaque job identifier. IDs are issued by a counter that only
// increases and are never reused while the process is running.
type ID uint64

// String returns the id in base 10
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a base 10 job id
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// State is the lifecycle state of a registered job
type State int

const (
	StateUnspecified State = iota
	StateRunning           // the worker process has been started
	StateExited            // the worker process exited and its exit code was recorded
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unspecified"
	}
}

// Status is the read side view of a job as polled by the front-end
type Status struct {
	Found   bool `json:"found"`
	Running bool `json:"running"`

	// ExitCode is nil when the job is unknown or still running
	ExitCode *int `json:"exit_code"`
}
