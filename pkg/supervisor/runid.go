package supervisor

import "go.jetify.com/typeid"

// RunPrefix is used to define the run typeid prefix
type RunPrefix struct{}

// Prefix returns the run id prefix "run"
func (RunPrefix) Prefix() string { return "run" }

// RunID identifies one run of the pipeline. It is handed to the watcher so
// that progress snapshots can be matched to the job that produced them.
type RunID struct {
	typeid.TypeID[RunPrefix]
}

// NewRunID returns a new RunID
func NewRunID() (RunID, error) {
	return typeid.New[RunID]()
}
