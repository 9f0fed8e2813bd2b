package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshuarubin/moldock-supervisor/pkg/stopsignal"
)

// ProgressFileName is the name of the file the watcher keeps up to date in
// the project state directory
const ProgressFileName = "progress.json"

// ProgressPath returns the progress file of the project in dir
func ProgressPath(dir string) string {
	return filepath.Join(dir, stopsignal.StateDir, ProgressFileName)
}

// Progress is the snapshot the watcher writes for a running job
type Progress struct {
	RunID         string              `json:"run_id"`
	Phase         string              `json:"phase"`
	CurrentModule string              `json:"current_module"`
	Timestamp     string              `json:"timestamp"`
	ElapsedSec    float64             `json:"elapsed_sec"`
	Counts        map[string]*int     `json:"counts"`
	Progress      map[string]*float64 `json:"progress"`
	Message       string              `json:"message"`
}

var (
	// ErrPathRejected is returned when a path resolves outside of the project
	// root it is supposed to be in
	ErrPathRejected = errors.New("path is outside of the project directory")

	// ErrNoProgress is returned when the progress file does not exist yet
	ErrNoProgress = errors.New("no progress reported")
)

// canonical resolves symlinks in path and makes it absolute
func canonical(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// canonicalPrefix is like canonical but allows the tail of path to not exist
// yet. The longest existing prefix is resolved and the rest joined back on.
func canonicalPrefix(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var missing []string
	for {
		resolved, err := canonical(abs)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", err
		}
		missing = append([]string{filepath.Base(abs)}, missing...)
		abs = parent
	}
}

// Confine returns the canonical form of path after checking that its parent
// directory is root or one of its descendants. The parent does not need to
// exist yet.
func Confine(root, path string) (string, error) {
	croot, err := canonical(root)
	if err != nil {
		return "", fmt.Errorf("error resolving project root: %w", err)
	}

	parent, err := canonicalPrefix(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("error resolving %q: %w", path, err)
	}

	rel, err := filepath.Rel(croot, parent)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathRejected, path)
	}

	return filepath.Join(parent, filepath.Base(path)), nil
}

// ReadProgress reads the progress file at path, which must live within the
// project root
func ReadProgress(root, path string) (*Progress, error) {
	path, err := Confine(root, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoProgress
	}
	if err != nil {
		return nil, fmt.Errorf("error reading progress: %w", err)
	}

	var p Progress
	if err = json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error decoding progress: %w", err)
	}

	return &p, nil
}
