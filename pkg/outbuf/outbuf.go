// Package outbuf captures the combined output of a running worker so that
// any number of readers can replay it from the start and follow new writes
// until the worker exits. A limited buffer only keeps the most recent output.
package outbuf

import (
	"errors"
	"io"
	"sync"
)

// Buffer is a goroutine safe, append only buffer. Writers append with Write;
// Close marks the end of the output, after which readers drain what is left
// and get io.EOF.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool

	// limit is the number of bytes kept, 0 keeps everything. base is the
	// offset of data[0] in the output, i.e. how many bytes were dropped.
	limit int
	base  int

	// wake is closed and replaced on every Write and on Close
	wake chan struct{}
}

// ensure Buffer implements the io.WriteCloser interface
var _ io.WriteCloser = (*Buffer)(nil)

// New returns an empty Buffer that keeps all output
func New() *Buffer {
	return NewLimited(0)
}

// NewLimited returns an empty Buffer that keeps only the last limit bytes.
// Readers that fall behind skip ahead to the oldest byte still held. A limit
// of 0 or less keeps everything.
func NewLimited(limit int) *Buffer {
	return &Buffer{
		wake:  make(chan struct{}),
		limit: max(limit, 0),
	}
}

// ErrClosed is returned by Write after Close
var ErrClosed = errors.New("output buffer is closed")

// Write appends p and wakes any blocked readers
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	b.data = append(b.data, p...)
	if b.limit > 0 && len(b.data) > b.limit {
		drop := len(b.data) - b.limit
		b.base += drop
		b.data = b.data[drop:]
	}
	b.broadcast()

	return len(p), nil
}

// Close marks the end of output. Repeated calls are ignored.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		b.broadcast()
	}
	return nil
}

// broadcast must be called with mu held
func (b *Buffer) broadcast() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// Len returns the number of bytes written so far, dropped ones included
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base + len(b.data)
}

// Dropped returns the number of bytes discarded because of the limit
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}

// String returns a copy of the output still held
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// readAt copies data at offset into p and returns the offset following what
// was copied. Offsets that were dropped are skipped. If nothing is available
// yet it returns the channel that will be closed on the next write.
func (b *Buffer) readAt(offset int, p []byte) (int, int, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	offset = max(offset, b.base)

	if i := offset - b.base; i < len(b.data) {
		n := copy(p, b.data[i:])
		return n, offset + n, nil, nil
	}
	if b.closed {
		return 0, offset, nil, io.EOF
	}
	return 0, offset, b.wake, nil
}

// NewReader returns an io.ReadCloser that streams the buffer from the
// beginning. It is the caller's responsibility to close it.
func (b *Buffer) NewReader() io.ReadCloser {
	return &reader{
		buf:    b,
		closed: make(chan struct{}),
	}
}

// ErrReaderClosed is returned by Read after the reader has been closed
var ErrReaderClosed = errors.New("reader is closed")

type reader struct {
	buf *Buffer

	mu     sync.Mutex
	offset int

	closeOnce sync.Once
	closed    chan struct{}
}

func (r *reader) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// Read blocks until data is available, the buffer is closed (io.EOF) or the
// reader is closed (ErrReaderClosed)
func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.isClosed() {
			return 0, ErrReaderClosed
		}

		n, next, wake, err := r.buf.readAt(r.offset, p)
		r.offset = next
		if n > 0 || err != nil {
			return n, err
		}

		select {
		case <-wake:
		case <-r.closed:
			return 0, ErrReaderClosed
		}
	}
}

func (r *reader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}
