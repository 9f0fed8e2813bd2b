package launcher

import (
	"os"
	"path/filepath"
	"strings"
)

// PythonPathVar is the module search path variable the worker and watcher use
// to import their own code from a source checkout
const PythonPathVar = "PYTHONPATH"

// PrependPathList returns a "name=value" environment entry with dir in front
// of existing, joined by the platform's path list separator
func PrependPathList(name, dir, existing string) string {
	if dir == "" {
		return name + "=" + existing
	}
	if existing == "" {
		return name + "=" + dir
	}
	return name + "=" + dir + string(os.PathListSeparator) + existing
}

// PythonPath returns the PYTHONPATH entry that puts repoRoot ahead of the
// existing value. A PYTHONPATH in extra takes precedence over the one
// inherited from the current environment.
func PythonPath(repoRoot string, extra []string) string {
	existing, ok := envLookup(extra, PythonPathVar)
	if !ok {
		existing = os.Getenv(PythonPathVar)
	}
	return PrependPathList(PythonPathVar, repoRoot, existing)
}

const (
	// RepoRootMarker identifies the root of a moldockpipe checkout
	RepoRootMarker = "pyproject.toml"

	// maxRepoRootDepth is the number of directories, start included, that
	// FindRepoRoot looks at
	maxRepoRootDepth = 6
)

// FindRepoRoot walks up from start looking for a directory containing
// RepoRootMarker
func FindRepoRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}

	for range maxRepoRootDepth {
		if _, err := os.Stat(filepath.Join(dir, RepoRootMarker)); err == nil {
			return dir, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

// envLookup returns the value of name in environ, later entries win
func envLookup(environ []string, name string) (string, bool) {
	var (
		val   string
		found bool
	)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k == name {
			val, found = v, true
		}
	}
	return val, found
}
