package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("unknown-id", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)

		r := New()
		for _, id := range []ID{0, 1, 42, ^ID(0)} {
			st := r.Query(id)
			assert.False(st.Found)
			assert.False(st.Running)
			assert.Nil(st.ExitCode)
		}

		assert.False(r.Complete(7, 0))
		assert.Equal(0, r.Len())
	})

	t.Run("running-then-exited", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		assert := assert.New(t)

		r := New()
		require.NoError(r.Register(Entry{ID: 1, WorkerPID: 100, WatcherPID: 101}))

		st := r.Query(1)
		assert.Equal(Status{Found: true, Running: true}, st)

		assert.True(r.Complete(1, 3))

		st = r.Query(1)
		assert.True(st.Found)
		assert.False(st.Running)
		require.NotNil(st.ExitCode)
		assert.Equal(3, *st.ExitCode)

		e, ok := r.Get(1)
		require.True(ok)
		assert.Equal(StateExited, e.State)
		assert.True(e.Paired())
		assert.False(e.EndedAt.IsZero())
	})

	t.Run("state-is-monotone", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		assert := assert.New(t)

		r := New()
		require.NoError(r.Register(Entry{ID: 5}))
		assert.True(r.Complete(5, 0))
		assert.False(r.Complete(5, 1))

		st := r.Query(5)
		require.NotNil(st.ExitCode)
		assert.Equal(0, *st.ExitCode)
		assert.False(st.Running)
	})

	t.Run("register-once", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		r := New()
		require.NoError(r.Register(Entry{ID: 9}))
		require.ErrorIs(r.Register(Entry{ID: 9}), ErrAlreadyRegistered)
	})

	t.Run("concurrency", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)

		r := New()

		const n = 200
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(id ID) {
				defer wg.Done()
				_ = r.Register(Entry{ID: id})
				_ = r.Query(id)
				r.Complete(id, int(id))
			}(ID(i + 1))
		}
		wg.Wait()

		assert.Equal(n, r.Len())
		for i := 1; i <= n; i++ {
			st := r.Query(ID(i))
			if assert.NotNil(st.ExitCode) {
				assert.Equal(i, *st.ExitCode)
			}
		}
	})
}

func TestParseID(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	id, err := ParseID("18446744073709551615")
	require.NoError(err)
	require.Equal(^ID(0), id)
	require.Equal("18446744073709551615", id.String())

	_, err = ParseID("-1")
	require.Error(err)
}
