package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Command describes an external process to start
type Command struct {
	Path string   // executable name or path, resolved with exec.LookPath
	Args []string // arguments, not including Path
	Dir  string   // working directory, the current one when empty
	Env  []string // additional "key=value" entries appended to os.Environ()

	// Hint is appended to launch errors to tell the operator how to fix them.
	// DefaultHint is used when empty.
	Hint string

	// Stdout and Stderr receive the output of processes started with Start.
	// Output is discarded when nil. Run always captures both.
	Stdout io.Writer
	Stderr io.Writer

	// WaitDelay bounds how long Wait keeps copying output after the process
	// exited, e.g. when a process it left behind still holds stdout.
	// DefaultWaitDelay is used when zero.
	WaitDelay time.Duration
}

// DefaultWaitDelay is the Command.WaitDelay used when none is set
const DefaultWaitDelay = time.Second

// DefaultHint is the remediation text attached to launch errors
const DefaultHint = "Verify that Python is installed and the moldockpipe module is importable, or set the interpreter path."

func (c *Command) cmd(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	cmd.WaitDelay = c.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	return cmd
}

func (c *Command) launchError(err error) *LaunchError {
	hint := c.Hint
	if hint == "" {
		hint = DefaultHint
	}
	return &LaunchError{Path: c.Path, Err: err, Hint: hint}
}

// ErrLaunch matches every *LaunchError with errors.Is
var ErrLaunch = errors.New("launch failed")

// LaunchError is returned when a process could not be started at all, e.g.
// because the executable does not exist
type LaunchError struct {
	Path string
	Err  error
	Hint string
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("could not launch %s: %v", e.Path, e.Err)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *LaunchError) Unwrap() []error {
	return []error{ErrLaunch, e.Err}
}

// ErrWait is returned by Process.Wait when the operating system did not
// report how the process exited
var ErrWait = errors.New("wait failed")

// WaitFailedExitCode is reported in place of an exit code when waiting on a
// process failed
const WaitFailedExitCode = -1

// Process is a running process started with Start
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	killOnce sync.Once
	killErr  error

	// these values are only safe to read after done has closed
	exitCode int
	waitErr  error
}

// Start starts c and returns without waiting for it to exit. A goroutine reaps
// the process; use Wait or Done to observe its exit.
func Start(c Command) (*Process, error) {
	// the process outlives the caller, only Kill stops it
	cmd := c.cmd(context.Background())
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Start(); err != nil {
		return nil, c.launchError(err)
	}

	p := Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go p.wait()

	return &p, nil
}

func (p *Process) wait() {
	defer close(p.done)
	err := p.cmd.Wait()
	p.exitCode, p.waitErr = exitStatus(p.cmd.ProcessState, err)
}

// exitStatus converts the error returned by exec.Cmd.Wait to an exit code.
// Processes killed by a signal report -1 without an error. Output still open
// after the wait delay is not a failure, the process itself exited with
// state. Anything else is a wait failure.
func exitStatus(state *os.ProcessState, err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var eerr *exec.ExitError
	if errors.As(err, &eerr) {
		return eerr.ExitCode(), nil
	}

	if errors.Is(err, exec.ErrWaitDelay) && state != nil {
		return state.ExitCode(), nil
	}

	return WaitFailedExitCode, fmt.Errorf("%w: %w", ErrWait, err)
}

// PID returns the operating system process id
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done returns a channel that is closed once the process has exited and been
// reaped
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns whether or not the process is still running
func (p *Process) IsRunning() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the process exits and returns its exit code. The error is
// non-nil, and wraps ErrWait, only when the exit could not be observed.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.waitErr
}

// Kill force terminates the process and waits for it to be reaped. Killing a
// process that already exited is not an error. Repeated calls return the same
// value.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		if !p.IsRunning() {
			return
		}

		err := p.cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			// it exited between the check and the signal
			return
		}
		if err != nil {
			p.killErr = err
			return
		}

		<-p.done
	})

	return p.killErr
}

// Result is the outcome of a process started with Run
type Result struct {
	OK     bool   `json:"ok"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// noExitCode is reported by Run for processes that ended without an exit
// code, e.g. because they were killed by a signal
const noExitCode = 1

// Run starts c, waits for it to exit and returns its captured output. A
// non-zero exit is reported in the Result, not as an error. Cancelling ctx
// kills the process.
func Run(ctx context.Context, c Command) (*Result, error) {
	cmd := c.cmd(ctx)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, c.launchError(err)
	}

	err := cmd.Wait()
	code, err := exitStatus(cmd.ProcessState, err)
	if err != nil {
		return nil, err
	}

	if code < 0 {
		code = noExitCode
	}

	return &Result{
		OK:     code == 0,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Code:   code,
	}, nil
}

// ResolveInterpreter returns explicit when it is set. Otherwise it returns the
// first of candidates found in PATH, or the first candidate when none are, so
// that starting it reports a LaunchError.
func ResolveInterpreter(explicit string, candidates ...string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}

	for _, c := range candidates {
		if p, err := exec.LookPath(c); err == nil {
			return p
		}
	}

	if len(candidates) > 0 {
		return candidates[0]
	}

	return ""
}
