// Package project deals with the on-disk layout of moldockpipe projects.
package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ConfigName is the file or directory that marks a directory as a project
const ConfigName = "config"

// projectPattern matches the config of the direct children of a search root
const projectPattern = "*/" + ConfigName

// Source is a directory that is searched for projects
type Source struct {
	Dir   string
	Label string
}

// Project is a discovered project directory
type Project struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Source string `json:"source"`
}

// DefaultSources returns the projects directory of the repo checkout, when
// repoRoot is set, and the per-user projects directory
func DefaultSources(repoRoot string) []Source {
	var ret []Source

	if repoRoot != "" {
		ret = append(ret, Source{
			Dir:   filepath.Join(repoRoot, "projects"),
			Label: "repo projects",
		})
	}

	if home, err := os.UserHomeDir(); err == nil {
		ret = append(ret, Source{
			Dir:   filepath.Join(home, "Documents", "MolDockPipeV2", "Projects"),
			Label: "Documents",
		})
	}

	return ret
}

// Discover returns the projects found directly under each of sources, sorted
// by name. Sources that do not exist are skipped. Directories reachable from
// more than one source, compared case insensitively, are only listed once.
func Discover(sources ...Source) ([]Project, error) {
	seen := map[string]struct{}{}
	var ret []Project

	for _, src := range sources {
		if fi, err := os.Stat(src.Dir); err != nil || !fi.IsDir() {
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(src.Dir), projectPattern)
		if err != nil {
			return nil, fmt.Errorf("error searching %q: %w", src.Dir, err)
		}

		for _, m := range matches {
			name := path.Dir(m)
			dir := filepath.Join(src.Dir, filepath.FromSlash(name))

			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				continue
			}

			p := filepath.ToSlash(dir)
			key := strings.ToLower(p)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			ret = append(ret, Project{
				Name:   name,
				Path:   p,
				Source: src.Label,
			})
		}
	}

	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})

	slog.Debug("discovered projects", "count", len(ret))

	return ret, nil
}

// ErrNotRegular is returned when asked to read something that is not a
// regular file
var ErrNotRegular = errors.New("not a regular file")

// ReadText returns the contents of file
func ReadText(file string) (string, error) {
	fi, err := os.Stat(file)
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotRegular, file)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
