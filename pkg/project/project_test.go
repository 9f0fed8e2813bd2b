package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	t.Run("finds-configured-projects", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		assert := assert.New(t)

		repo := t.TempDir()
		docs := t.TempDir()

		writeFile(t, filepath.Join(repo, "zeta", ConfigName, "project.yaml"), "")
		writeFile(t, filepath.Join(repo, "alpha", ConfigName), "")
		require.NoError(os.MkdirAll(filepath.Join(repo, "not-a-project"), 0o755))
		writeFile(t, filepath.Join(repo, "stray-file"), "")
		writeFile(t, filepath.Join(docs, "beta", ConfigName), "")

		got, err := Discover(
			Source{Dir: repo, Label: "repo projects"},
			Source{Dir: docs, Label: "Documents"},
			Source{Dir: filepath.Join(repo, "missing"), Label: "missing"},
		)
		require.NoError(err)
		require.Len(got, 3)

		assert.Equal("alpha", got[0].Name)
		assert.Equal("repo projects", got[0].Source)
		assert.Equal(filepath.ToSlash(filepath.Join(repo, "alpha")), got[0].Path)
		assert.Equal("beta", got[1].Name)
		assert.Equal("Documents", got[1].Source)
		assert.Equal("zeta", got[2].Name)
	})

	t.Run("dedupes-sources", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		repo := t.TempDir()
		writeFile(t, filepath.Join(repo, "alpha", ConfigName), "")

		got, err := Discover(
			Source{Dir: repo, Label: "first"},
			Source{Dir: repo, Label: "second"},
		)
		require.NoError(err)
		require.Len(got, 1)
		require.Equal("first", got[0].Source)
	})

	t.Run("default-sources", func(t *testing.T) {
		t.Parallel()
		src := DefaultSources("/repo")
		require.NotEmpty(t, src)
		require.Equal(t, filepath.Join("/repo", "projects"), src[0].Dir)
	})
}

func TestReadProgress(t *testing.T) {
	t.Parallel()

	const payload = `{
		"run_id": "run_01h455vb4pex5vsknk084sn02q",
		"phase": "running",
		"current_module": "M3",
		"timestamp": "2026-01-02T03:04:05Z",
		"elapsed_sec": 12.5,
		"counts": {"total_input": null, "admet_passed": 4, "sdf": 3, "pdbqt": 2, "vina_done": 1},
		"progress": {"M1": 100, "M2": 75.5, "M3": null, "M4": null},
		"message": ""
	}`

	t.Run("reads-progress", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		assert := assert.New(t)

		dir := t.TempDir()
		writeFile(t, ProgressPath(dir), payload)

		p, err := ReadProgress(dir, ProgressPath(dir))
		require.NoError(err)
		assert.Equal("running", p.Phase)
		assert.Equal("M3", p.CurrentModule)
		assert.InDelta(12.5, p.ElapsedSec, 0.001)
		assert.Nil(p.Counts["total_input"])
		require.NotNil(p.Counts["admet_passed"])
		assert.Equal(4, *p.Counts["admet_passed"])
		require.NotNil(p.Progress["M2"])
		assert.InDelta(75.5, *p.Progress["M2"], 0.001)
		assert.Nil(p.Progress["M4"])
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		_, err := ReadProgress(dir, ProgressPath(dir))
		require.ErrorIs(t, err, ErrNoProgress)
	})

	t.Run("traversal", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		base := t.TempDir()
		dir := filepath.Join(base, "project")
		writeFile(t, filepath.Join(base, "outside", "progress.json"), payload)
		require.NoError(os.MkdirAll(dir, 0o755))

		_, err := ReadProgress(dir, filepath.Join(dir, "..", "outside", "progress.json"))
		require.ErrorIs(err, ErrPathRejected)

		_, err = ReadProgress(dir, filepath.Join(base, "project-sibling", "progress.json"))
		require.ErrorIs(err, ErrPathRejected)
	})

	t.Run("symlink-escape", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		base := t.TempDir()
		dir := filepath.Join(base, "project")
		outside := filepath.Join(base, "outside")
		writeFile(t, filepath.Join(outside, "progress.json"), payload)
		require.NoError(os.MkdirAll(dir, 0o755))
		require.NoError(os.Symlink(outside, filepath.Join(dir, "state")))

		_, err := ReadProgress(dir, ProgressPath(dir))
		require.ErrorIs(err, ErrPathRejected)
	})

	t.Run("root-itself", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "progress.json"), payload)

		_, err := ReadProgress(dir, filepath.Join(dir, "progress.json"))
		require.NoError(t, err)
	})

	t.Run("invalid-json", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, ProgressPath(dir), "{")

		_, err := ReadProgress(dir, ProgressPath(dir))
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrPathRejected)
	})
}

func TestReadText(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()
	file := filepath.Join(dir, "log.txt")
	writeFile(t, file, "line 1\nline 2\n")

	s, err := ReadText(file)
	require.NoError(err)
	require.Equal("line 1\nline 2\n", s)

	_, err = ReadText(dir)
	require.ErrorIs(err, ErrNotRegular)

	_, err = ReadText(filepath.Join(dir, "missing"))
	require.ErrorIs(err, os.ErrNotExist)
}

func TestReadCSVPreview(t *testing.T) {
	t.Parallel()

	t.Run("limits-rows", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		file := filepath.Join(t.TempDir(), "results.csv")
		writeFile(t, file, "id,score\na,-7.1\nb,-6.4\nc,-5.0\n")

		p, err := ReadCSVPreview(file, 2)
		require.NoError(err)
		require.Equal([]string{"id", "score"}, p.Headers)
		require.Equal([][]string{{"a", "-7.1"}, {"b", "-6.4"}}, p.Rows)
	})

	t.Run("skips-malformed", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		file := filepath.Join(t.TempDir(), "results.csv")
		writeFile(t, file, strings.Join([]string{
			"id,score",
			"a,-7.1",
			"b",
			"c,-5.0",
		}, "\n"))

		p, err := ReadCSVPreview(file, 10)
		require.NoError(err)
		require.Equal([][]string{{"a", "-7.1"}, {"c", "-5.0"}}, p.Rows)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "results.csv")
		writeFile(t, file, "")

		p, err := ReadCSVPreview(file, 10)
		require.NoError(t, err)
		require.Empty(t, p.Headers)
		require.Empty(t, p.Rows)
	})
}

func TestTryLock(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dir := t.TempDir()

	lock, err := TryLock(dir)
	require.NoError(err)
	require.FileExists(LockPath(dir))

	_, err = TryLock(dir)
	require.ErrorIs(err, ErrProjectBusy)

	require.NoError(lock.Unlock())

	lock, err = TryLock(dir)
	require.NoError(err)
	require.NoError(lock.Unlock())
}

func TestTryLockMissingProject(t *testing.T) {
	t.Parallel()

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		dir := filepath.Join(t.TempDir(), "typo")
		_, err := TryLock(dir)
		require.ErrorIs(err, fs.ErrNotExist)
		require.NoDirExists(dir)
	})

	t.Run("file", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		file := filepath.Join(t.TempDir(), "config")
		require.NoError(os.WriteFile(file, nil, 0o600))

		_, err := TryLock(file)
		require.ErrorIs(err, ErrNotDirectory)
	})
}
