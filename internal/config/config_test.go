package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuarubin/moldock-supervisor/pkg/supervisor"
)

const testConfig = `
python: /opt/conda/bin/python
watcher_interval: 250ms
watcher_grace_attempts: 5
completed_exit_codes: [0]
project_dirs:
  - /data/projects
env:
  CUDA_VISIBLE_DEVICES: "0"
  HOME: $HOME
`

func newCommand(t *testing.T) (*cobra.Command, *Loader) {
	t.Helper()
	cmd := cobra.Command{Use: "test"}
	l := NewLoader()
	l.Flags(&cmd)
	return &cmd, l
}

func writeConfig(t *testing.T) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "moldock.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testConfig), 0o600))
	return file
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		require := require.New(t)

		_, l := newCommand(t)
		cfg, err := l.Load()
		require.NoError(err)

		want := supervisor.Defaults()
		want.Env = []string{}
		require.Equal(want, cfg.Supervisor)
		require.Equal("text", cfg.Log.Format)
		require.Equal("info", cfg.Log.Level)
	})

	t.Run("file", func(t *testing.T) {
		require := require.New(t)
		assert := assert.New(t)

		cmd, l := newCommand(t)
		require.NoError(cmd.Flags().Set("config", writeConfig(t)))

		cfg, err := l.Load()
		require.NoError(err)

		assert.Equal("/opt/conda/bin/python", cfg.Supervisor.Python)
		assert.Equal(250*time.Millisecond, cfg.Supervisor.WatcherInterval)
		assert.Equal(5, cfg.Supervisor.WatcherGraceAttempts)
		assert.Equal([]int{0}, cfg.Supervisor.CompletedExitCodes)
		assert.Equal(supervisor.DefaultWorkerModule, cfg.Supervisor.WorkerModule)
		assert.Equal([]string{"/data/projects"}, cfg.ProjectDirs)
		assert.ElementsMatch([]string{
			"CUDA_VISIBLE_DEVICES=0",
			"HOME=" + os.Getenv("HOME"),
		}, cfg.Supervisor.Env)
	})

	t.Run("flags-over-env-over-file", func(t *testing.T) {
		require := require.New(t)

		t.Setenv(EnvPrefix+"_WATCHER_GRACE_ATTEMPTS", "7")
		t.Setenv(EnvPrefix+"_PYTHON", "/usr/bin/python3")

		cmd, l := newCommand(t)
		require.NoError(cmd.Flags().Set("config", writeConfig(t)))
		require.NoError(cmd.Flags().Set("python", "/venv/bin/python"))
		require.NoError(cmd.Flags().Set("log-level", "debug"))

		cfg, err := l.Load()
		require.NoError(err)

		require.Equal("/venv/bin/python", cfg.Supervisor.Python)
		require.Equal(7, cfg.Supervisor.WatcherGraceAttempts)
		require.Equal(250*time.Millisecond, cfg.Supervisor.WatcherInterval)
		require.Equal("debug", cfg.Log.Level)
	})

	t.Run("config-from-env", func(t *testing.T) {
		t.Setenv(EnvPrefix+"_CONFIG", writeConfig(t))

		_, l := newCommand(t)
		cfg, err := l.Load()
		require.NoError(t, err)
		require.Equal(t, "/opt/conda/bin/python", cfg.Supervisor.Python)
	})

	t.Run("missing-file", func(t *testing.T) {
		cmd, l := newCommand(t)
		require.NoError(t, cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")))

		_, err := l.Load()
		require.Error(t, err)
	})
}

func TestSources(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Supervisor:  supervisor.Config{RepoRoot: "/repo"},
		ProjectDirs: []string{"/data/screens"},
	}

	src := cfg.Sources()
	require.Equal(t, filepath.Join("/repo", "projects"), src[0].Dir)

	last := src[len(src)-1]
	require.Equal(t, "/data/screens", last.Dir)
	require.Equal(t, "screens", last.Label)
}

func TestLogger(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer

		log, err := (&Log{Format: "json", Level: "warn"}).Logger(&buf)
		require.NoError(t, err)

		log.Info("hidden")
		log.Warn("shown", "job_id", 1)
		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), `"job_id":1`)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := (&Log{Format: "text", Level: "loud"}).Logger(&bytes.Buffer{})
		require.Error(t, err)

		_, err = (&Log{Format: "xml", Level: "info"}).Logger(&bytes.Buffer{})
		require.Error(t, err)
	})
}
