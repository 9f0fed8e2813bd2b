// Package stopsignal implements the file handshake used to tell a progress
// watcher that the worker it reports on has finished. The watcher and the
// worker are independent processes with no other shared channel.
//
// The file lives at <project>/state/stop_progress_watcher and contains either
// "phase" or "phase|message". The supervisor writes it at most once per job;
// the watcher reads and deletes it.
package stopsignal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	// StateDir is the per-project directory shared with the watcher
	StateDir = "state"

	// FileName is the name of the stop file inside StateDir
	FileName = "stop_progress_watcher"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Path returns the stop file location for projectDir
func Path(projectDir string) string {
	return filepath.Join(projectDir, StateDir, FileName)
}

// Phase is the reason the worker stopped, as reported to the watcher
type Phase string

const (
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

const (
	// MessageWaitFailed is reported when the worker's exit could not be
	// observed
	MessageWaitFailed = "runner_wait_failed"

	exitCodeMessagePrefix = "runner_exit_code="
)

// Signal is the payload of the stop file
type Signal struct {
	Phase   Phase
	Message string
}

// String encodes s as "phase" or "phase|message"
func (s Signal) String() string {
	if s.Message == "" {
		return string(s.Phase)
	}
	return string(s.Phase) + "|" + s.Message
}

// Parse decodes a stop file payload the way the watcher does: surrounding
// whitespace is ignored, an empty payload or an unknown phase means
// completed.
func Parse(raw string) Signal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Signal{Phase: PhaseCompleted}
	}

	phase, message, _ := strings.Cut(raw, "|")

	sig := Signal{
		Phase:   Phase(strings.ToLower(strings.TrimSpace(phase))),
		Message: strings.TrimSpace(message),
	}
	if sig.Phase != PhaseFailed {
		sig.Phase = PhaseCompleted
	}

	return sig
}

// Classifier maps a worker exit code to a phase
type Classifier func(code int) Phase

// CompletedOn returns a Classifier that reports PhaseCompleted for any of
// codes and PhaseFailed for everything else
func CompletedOn(codes ...int) Classifier {
	codes = slices.Clone(codes)
	return func(code int) Phase {
		if slices.Contains(codes, code) {
			return PhaseCompleted
		}
		return PhaseFailed
	}
}

// DefaultCompletedExitCodes are the worker exit codes treated as a clean stop.
// The worker exits with 2 when a run was cancelled by the user.
var DefaultCompletedExitCodes = []int{0, 2}

// DefaultClassifier treats DefaultCompletedExitCodes as completed
var DefaultClassifier = CompletedOn(DefaultCompletedExitCodes...)

// ForExit returns the signal to write after the worker exited with code. A nil
// classifier uses DefaultClassifier.
func ForExit(code int, classify Classifier) Signal {
	if classify == nil {
		classify = DefaultClassifier
	}

	if phase := classify(code); phase == PhaseCompleted {
		return Signal{Phase: PhaseCompleted}
	}

	return Signal{
		Phase:   PhaseFailed,
		Message: exitCodeMessagePrefix + strconv.Itoa(code),
	}
}

// WaitFailed returns the signal to write when waiting on the worker failed
func WaitFailed() Signal {
	return Signal{Phase: PhaseFailed, Message: MessageWaitFailed}
}

// Write stores sig at path, creating the parent directory if needed and
// replacing any previous content
func Write(path string, sig Signal) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("error creating stop signal directory: %w", err)
	}

	// the watcher polls for the file, it must never see it half written
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sig.String()), filePerm); err != nil {
		return fmt.Errorf("error writing stop signal: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error writing stop signal: %w", err)
	}

	return nil
}

// Read returns the signal stored at path. The second return value is false
// when no stop file exists.
func Read(path string) (Signal, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Signal{}, false, nil
	}
	if err != nil {
		return Signal{}, false, fmt.Errorf("error reading stop signal: %w", err)
	}
	return Parse(string(data)), true, nil
}

// Clear removes a stale stop file. A missing file is not an error.
func Clear(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error clearing stop signal: %w", err)
}
