package registry

import (
	"errors"
	"sync"
	"time"
)

// Entry is everything the registry knows about a job
type Entry struct {
	ID         ID
	RunID      string
	WorkerPID  int
	WatcherPID int // 0 when the job has no watcher
	ProjectDir string
	State      State
	ExitCode   int // only valid when State is StateExited
	StartedAt  time.Time
	EndedAt    time.Time
}

// Paired reports whether the job was started together with a watcher
func (e *Entry) Paired() bool {
	return e.WatcherPID != 0
}

// ErrAlreadyRegistered is returned when registering an id twice
var ErrAlreadyRegistered = errors.New("job already registered")

// Registry is the process wide table of jobs. Entries are never deleted. A
// single lock guards the whole table; every operation is a map lookup.
type Registry struct {
	mu   sync.RWMutex
	jobs map[ID]*Entry
}

// New returns an empty Registry
func New() *Registry {
	return &Registry{jobs: map[ID]*Entry{}}
}

// Register inserts e as a running job. It must be called exactly once per id,
// before the id is handed to any caller.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[e.ID]; ok {
		return ErrAlreadyRegistered
	}

	e.State = StateRunning
	e.ExitCode = 0
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	r.jobs[e.ID] = &e

	return nil
}

// Complete records the exit code of a job. The state only moves forward:
// calling Complete for an unknown or already exited job does nothing. Returns
// true if the entry transitioned.
func (r *Registry) Complete(id ID, code int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok || e.State >= StateExited {
		return false
	}

	e.State = StateExited
	e.ExitCode = code
	e.EndedAt = time.Now().UTC()

	return true
}

// Query returns the status triple for id. Unknown ids are reported with
// Found set to false rather than an error.
func (r *Registry) Query(id ID) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return Status{}
	}

	if e.State != StateExited {
		return Status{Found: true, Running: true}
	}

	code := e.ExitCode
	return Status{Found: true, ExitCode: &code}
}

// Get returns a copy of the entry for id
func (r *Registry) Get(id ID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
