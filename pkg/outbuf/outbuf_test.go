package outbuf

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufWrite(buf *Buffer, v string) <-chan error {
	ch := make(chan error)
	go func() {
		_, err := buf.Write([]byte(v))
		ch <- err
	}()
	return ch
}

func TestBuffer(t *testing.T) {
	t.Parallel()

	t.Run("reader-blocks-until-close", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		require := require.New(t)

		buf := New()
		for range 3 {
			require.NoError(<-bufWrite(buf, "foo"))
		}
		assert.Equal("foofoofoo", buf.String())

		r := buf.NewReader()
		b := make([]byte, 3)
		for range 3 {
			n, err := r.Read(b)
			require.NoError(err)
			assert.Equal("foo", string(b[:n]))
		}

		done := make(chan error)
		go func() {
			_, err := r.Read(b)
			done <- err
		}()

		select {
		case <-done:
			t.Fatal("expected Read to block while the buffer is open")
		case <-time.After(20 * time.Millisecond):
		}

		require.NoError(buf.Close())
		assert.Equal(io.EOF, <-done)
	})

	t.Run("multiple-readers", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		buf := New()
		for range 3 {
			require.NoError(<-bufWrite(buf, "foo"))
		}
		require.NoError(buf.Close())

		for _, r := range []io.Reader{buf.NewReader(), buf.NewReader()} {
			data, err := io.ReadAll(r)
			require.NoError(err)
			require.Equal("foofoofoo", string(data))
		}
	})

	t.Run("write-after-initial-read", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		buf := New()
		require.NoError(<-bufWrite(buf, "foofoofoo"))

		r := buf.NewReader()
		b := make([]byte, 9)
		n, err := r.Read(b)
		require.NoError(err)
		require.Equal(9, n)

		require.NoError(<-bufWrite(buf, "bar"))

		n, err = r.Read(b)
		require.NoError(err)
		require.Equal("bar", string(b[:n]))
	})

	t.Run("closed-reader", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		buf := New()
		r := buf.NewReader()

		done := make(chan error)
		go func() {
			_, err := r.Read(make([]byte, 1))
			done <- err
		}()

		require.NoError(r.Close())
		require.ErrorIs(<-done, ErrReaderClosed)

		_, err := io.ReadAll(r)
		require.ErrorIs(err, ErrReaderClosed)
	})

	t.Run("write-after-close", func(t *testing.T) {
		t.Parallel()
		buf := New()
		require.NoError(t, buf.Close())
		require.NoError(t, buf.Close())
		_, err := buf.Write([]byte("x"))
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("limited", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		buf := NewLimited(4)
		require.NoError(<-bufWrite(buf, "ab"))

		r := buf.NewReader()
		b := make([]byte, 1)
		n, err := r.Read(b)
		require.NoError(err)
		require.Equal("a", string(b[:n]))

		require.NoError(<-bufWrite(buf, "cdefgh"))
		require.Equal("efgh", buf.String())
		require.Equal(8, buf.Len())
		require.Equal(4, buf.Dropped())

		// the reader was at offset 1, "bcd" is gone
		require.NoError(buf.Close())
		rest, err := io.ReadAll(r)
		require.NoError(err)
		require.Equal("efgh", string(rest))

		data, err := io.ReadAll(buf.NewReader())
		require.NoError(err)
		require.Equal("efgh", string(data))
	})

	t.Run("limited-single-large-write", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)

		buf := NewLimited(3)
		n, err := buf.Write([]byte("0123456789"))
		require.NoError(err)
		require.Equal(10, n)
		require.Equal("789", buf.String())
	})

	t.Run("concurrency", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		require := require.New(t)

		buf := New()
		times := 1000
		msg := "foo"

		errCh0 := make(chan error)
		go func() {
			defer close(errCh0)
			defer buf.Close()

			for range times {
				if err := <-bufWrite(buf, msg); err != nil {
					errCh0 <- err
					return
				}
			}
		}()

		errCh1 := make(chan error)
		read := 0
		go func() {
			defer close(errCh1)
			r := buf.NewReader()
			b := make([]byte, 16)
			for {
				n, err := r.Read(b)
				if err == io.EOF {
					return
				}
				if err != nil {
					errCh1 <- err
					return
				}
				read += n
			}
		}()

		err, ok := <-errCh0
		require.NoError(err)
		assert.False(ok)

		err, ok = <-errCh1
		require.NoError(err)
		assert.False(ok)
		assert.Equal(times*len(msg), read)
		assert.Equal(times*len(msg), buf.Len())
	})
}
