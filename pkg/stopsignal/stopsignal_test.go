package stopsignal

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForExit(t *testing.T) {
	t.Parallel()

	t.Run("completed-codes", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)

		for _, code := range []int{0, 2} {
			sig := ForExit(code, nil)
			assert.Equal(PhaseCompleted, sig.Phase)
			assert.Empty(sig.Message)
			assert.Equal("completed", sig.String())
		}
	})

	t.Run("failed-codes", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)

		for _, code := range []int{-1, 1, 3, 127, 255} {
			sig := ForExit(code, nil)
			assert.Equal(PhaseFailed, sig.Phase)
			assert.Equal("runner_exit_code="+strconv.Itoa(code), sig.Message)
			assert.Equal("failed|runner_exit_code="+strconv.Itoa(code), sig.String())
		}
	})

	t.Run("custom-classifier", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)

		classify := CompletedOn(0, 130)
		assert.Equal(PhaseCompleted, ForExit(130, classify).Phase)
		assert.Equal("failed|runner_exit_code=2", ForExit(2, classify).String())
	})

	t.Run("wait-failed", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "failed|runner_wait_failed", WaitFailed().String())
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Signal
	}{
		{"", Signal{Phase: PhaseCompleted}},
		{"completed", Signal{Phase: PhaseCompleted}},
		{"failed|runner_exit_code=1\n", Signal{Phase: PhaseFailed, Message: "runner_exit_code=1"}},
		{" FAILED | boom ", Signal{Phase: PhaseFailed, Message: "boom"}},
		{"bogus|x", Signal{Phase: PhaseCompleted, Message: "x"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Parse(tt.raw), "raw: %q", tt.raw)
	}
}

func TestFile(t *testing.T) {
	t.Parallel()

	t.Run("write-creates-dir-and-overwrites", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		project := t.TempDir()
		path := Path(project)
		require.Equal(filepath.Join(project, "state", "stop_progress_watcher"), path)

		require.NoError(Write(path, ForExit(9, nil)))
		require.NoError(Write(path, ForExit(0, nil)))

		data, err := os.ReadFile(path)
		require.NoError(err)
		require.Equal("completed", string(data))

		sig, ok, err := Read(path)
		require.NoError(err)
		require.True(ok)
		require.Equal(PhaseCompleted, sig.Phase)
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		path := Path(t.TempDir())

		// nothing to clear yet
		require.NoError(Clear(path))

		require.NoError(Write(path, WaitFailed()))
		require.NoError(Clear(path))

		_, ok, err := Read(path)
		require.NoError(err)
		require.False(ok)
	})
}
