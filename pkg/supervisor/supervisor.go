// Package supervisor launches moldockpipe workers, pairs each "run" with a
// progress watcher and tears the watcher down once the worker is gone.
//
// A paired job goes through four states. Starting: the project run lock is
// taken, a stale stop signal is cleared and the watcher then the worker are
// started. Running: the job is registered and a single goroutine takes
// ownership of both processes. Finishing: that goroutine waits for the
// worker, records its exit code and writes the stop signal the watcher is
// waiting for. Done: a watcher that did not stop on its own within the grace
// window is killed and the lock is released.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/joshuarubin/moldock-supervisor/pkg/launcher"
	"github.com/joshuarubin/moldock-supervisor/pkg/outbuf"
	"github.com/joshuarubin/moldock-supervisor/pkg/project"
	"github.com/joshuarubin/moldock-supervisor/pkg/registry"
	"github.com/joshuarubin/moldock-supervisor/pkg/stopsignal"
)

// names of the best effort cleanup steps, as passed to CleanupHook
const (
	ActionClearStopSignal = "clear_stop_signal"
	ActionWriteStopSignal = "write_stop_signal"
	ActionKillWatcher     = "kill_watcher"
	ActionReleaseLock     = "release_lock"
)

// runCommand is the worker subcommand that is paired with a watcher
const runCommand = "run"

// Request describes a worker invocation
type Request struct {
	Args   []string `json:"args"`             // worker arguments, e.g. "run", "<project>"
	Dir    string   `json:"dir,omitempty"`    // working directory, the current one when empty
	Python string   `json:"python,omitempty"` // overrides the configured interpreter
}

// Paired reports whether the request is a run that gets a watcher
func (r *Request) Paired() bool {
	return len(r.Args) >= 2 && r.Args[0] == runCommand
}

// ProjectDir returns the project the request operates on. For runs it is the
// second argument, resolved against Dir. Otherwise it is Dir.
func (r *Request) ProjectDir() (string, error) {
	if !r.Paired() {
		return r.Dir, nil
	}

	dir := r.Args[1]
	if !filepath.IsAbs(dir) && r.Dir != "" {
		dir = filepath.Join(r.Dir, dir)
	}

	return filepath.Abs(dir)
}

// Launched is returned by Supervisor.Launch once the job is running
type Launched struct {
	JobID      registry.ID `json:"job_id"`
	RunID      string      `json:"run_id"`
	WorkerPID  int         `json:"worker_pid"`
	WatcherPID *int        `json:"watcher_pid,omitempty"` // nil when the job has no watcher
}

// ErrJobNotFound is returned when asking for the output of a job that
// doesn't exist
var ErrJobNotFound = errors.New("job not found")

// Supervisor starts and tracks jobs. The zero value is not usable, use New.
type Supervisor struct {
	cfg      *Config
	classify stopsignal.Classifier
	env      []string

	jobs   *registry.Registry
	nextID atomic.Uint64

	// start starts the watcher and the worker, launcher.Start outside tests
	start func(launcher.Command) (*launcher.Process, error)

	mu      sync.RWMutex
	outputs map[registry.ID]*outbuf.Buffer

	wg sync.WaitGroup
}

// New creates a new Supervisor
func New(config *Config) (*Supervisor, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	// make a copy to ensure config is externally immutable
	cfg := config.copy()

	if cfg.RepoRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.RepoRoot, _ = launcher.FindRepoRoot(wd)
		}
	}

	classify := stopsignal.DefaultClassifier
	if config.CompletedExitCodes != nil {
		classify = stopsignal.CompletedOn(cfg.CompletedExitCodes...)
	}

	env := slices.Clone(cfg.Env)
	if cfg.RepoRoot != "" {
		env = append(env, launcher.PythonPath(cfg.RepoRoot, cfg.Env))
	}

	return &Supervisor{
		cfg:      cfg,
		classify: classify,
		env:      env,
		jobs:     registry.New(),
		start:    launcher.Start,
		outputs:  map[registry.ID]*outbuf.Buffer{},
	}, nil
}

func (s *Supervisor) python(req *Request) string {
	explicit := req.Python
	if explicit == "" {
		explicit = s.cfg.Python
	}
	return launcher.ResolveInterpreter(explicit, DefaultPythonCandidates...)
}

func (s *Supervisor) command(python, dir, module string, args ...string) launcher.Command {
	return launcher.Command{
		Path: python,
		Args: append([]string{"-m", module}, args...),
		Dir:  dir,
		Env:  s.env,

		WaitDelay: s.cfg.OutputWaitDelay,
	}
}

// Run starts the worker and waits for it to exit. It is meant for short
// commands, it doesn't register a job or start a watcher even for runs.
func (s *Supervisor) Run(ctx context.Context, req Request) (*launcher.Result, error) {
	cmd := s.command(s.python(&req), req.Dir, s.cfg.WorkerModule, req.Args...)
	return launcher.Run(ctx, cmd)
}

// job is everything the coordinating goroutine owns
type job struct {
	id         registry.ID
	projectDir string
	worker     *launcher.Process
	watcher    *launcher.Process // nil for jobs that are not paired
	lock       *flock.Flock      // nil for jobs that are not paired
	output     *outbuf.Buffer
	log        *slog.Logger
}

// Launch starts the worker described by req without waiting for it. Runs are
// paired with a watcher. Errors are returned before any job id is issued; a
// worker or watcher that can not be started is reported as a
// *launcher.LaunchError, a project that is already running as
// project.ErrProjectBusy.
func (s *Supervisor) Launch(ctx context.Context, req Request) (*Launched, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runID, err := NewRunID()
	if err != nil {
		return nil, fmt.Errorf("error creating run id: %w", err)
	}

	projectDir, err := req.ProjectDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving project directory: %w", err)
	}

	j := job{
		projectDir: projectDir,
		output:     outbuf.NewLimited(s.cfg.OutputLimit),
		log:        slog.With("run_id", runID.String()),
	}

	python := s.python(&req)

	if req.Paired() {
		if j.lock, err = project.TryLock(projectDir); err != nil {
			return nil, err
		}

		s.bestEffort(j.log, ActionClearStopSignal, func() error {
			return stopsignal.Clear(stopsignal.Path(projectDir))
		})

		watcherCmd := s.command(python, req.Dir, s.cfg.WatcherModule,
			"--project", projectDir,
			"--run-id", runID.String(),
			"--interval-ms", strconv.FormatInt(s.cfg.WatcherInterval.Milliseconds(), 10),
		)

		if j.watcher, err = s.start(watcherCmd); err != nil {
			s.bestEffort(j.log, ActionReleaseLock, j.lock.Unlock)
			return nil, err
		}
	}

	workerCmd := s.command(python, req.Dir, s.cfg.WorkerModule, req.Args...)
	workerCmd.Stdout = j.output
	workerCmd.Stderr = j.output

	if j.worker, err = s.start(workerCmd); err != nil {
		if j.watcher != nil {
			s.bestEffort(j.log, ActionKillWatcher, j.watcher.Kill)
			s.bestEffort(j.log, ActionReleaseLock, j.lock.Unlock)
		}
		return nil, err
	}

	j.id = registry.ID(s.nextID.Add(1))

	ret := Launched{
		JobID:     j.id,
		RunID:     runID.String(),
		WorkerPID: j.worker.PID(),
	}

	entry := registry.Entry{
		ID:         j.id,
		RunID:      ret.RunID,
		WorkerPID:  ret.WorkerPID,
		ProjectDir: projectDir,
	}

	j.log = j.log.With("job_id", j.id, "worker_pid", ret.WorkerPID)

	if j.watcher != nil {
		pid := j.watcher.PID()
		ret.WatcherPID = &pid
		entry.WatcherPID = pid
		j.log = j.log.With("watcher_pid", pid)
	}

	if err = s.jobs.Register(entry); err != nil {
		// ids come from a counter, a collision is a bug. The job still runs
		// and is coordinated, it just can't be queried.
		j.log.Error("error registering job", "err", err)
	}

	s.mu.Lock()
	s.outputs[j.id] = j.output
	s.mu.Unlock()

	s.wg.Add(1)
	go s.coordinate(&j)

	j.log.Info("job started", "project", projectDir, "paired", req.Paired())

	return &ret, nil
}

// coordinate owns the processes of j from the moment it is registered until
// both are gone
func (s *Supervisor) coordinate(j *job) {
	defer s.wg.Done()

	code, waitErr := j.worker.Wait()
	if waitErr != nil {
		j.log.Error("error waiting for worker", "err", waitErr)
	}

	s.jobs.Complete(j.id, code)
	_ = j.output.Close()

	j.log.Info("worker exited", "exit_code", code)

	if j.watcher == nil {
		return
	}

	sig := stopsignal.ForExit(code, s.classify)
	if waitErr != nil {
		sig = stopsignal.WaitFailed()
	}

	s.bestEffort(j.log, ActionWriteStopSignal, func() error {
		return stopsignal.Write(stopsignal.Path(j.projectDir), sig)
	})

	if !s.awaitWatcher(j.watcher) {
		j.log.Warn("watcher did not stop in time, killing it")
		s.bestEffort(j.log, ActionKillWatcher, j.watcher.Kill)
	}

	s.bestEffort(j.log, ActionReleaseLock, j.lock.Unlock)

	j.log.Info("job done", "signal", sig.String())
}

// awaitWatcher checks up to WatcherGraceAttempts times, WatcherGracePoll
// apart, whether the watcher has exited
func (s *Supervisor) awaitWatcher(p *launcher.Process) bool {
	if !p.IsRunning() {
		return true
	}

	if s.cfg.WatcherGraceAttempts == 0 {
		return false
	}

	ticker := time.NewTicker(max(s.cfg.WatcherGracePoll, time.Millisecond))
	defer ticker.Stop()

	for range s.cfg.WatcherGraceAttempts {
		select {
		case <-p.Done():
			return true
		case <-ticker.C:
		}
	}

	return !p.IsRunning()
}

// bestEffort runs a cleanup step. Failures are logged and reported to the
// CleanupHook but never returned, so later steps always run.
func (s *Supervisor) bestEffort(log *slog.Logger, action string, fn func() error) {
	err := fn()
	if err != nil {
		log.Warn("cleanup step failed", "action", action, "err", err)
	}

	if s.cfg.CleanupHook != nil {
		s.cfg.CleanupHook(action, err)
	}
}

// Status returns whether id exists, whether it is still running and its exit
// code once it is not
func (s *Supervisor) Status(id registry.ID) registry.Status {
	return s.jobs.Query(id)
}

// Job returns the registry entry of id
func (s *Supervisor) Job(id registry.ID) (registry.Entry, bool) {
	return s.jobs.Get(id)
}

// Output returns an io.ReadCloser that replays the combined output of the
// worker of id and follows it until the worker exits. Creating multiple
// readers for a single job is safe. It is the responsibility of the caller to
// close the reader when done to free resources.
func (s *Supervisor) Output(id registry.ID) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.outputs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	return buf.NewReader(), nil
}

// Wait blocks until every job has finished, watcher included, or ctx is done
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
