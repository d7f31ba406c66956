// Package stream turns a child's blocking output pipes into non-blocking
// sources for the cooperative driver.
//
// A Reader owns one pump goroutine that copies the pipe into a bounded
// channel. PullChunk only ever performs non-blocking receives from that
// channel, so a driver turn can check for output without waiting on the
// child. Backpressure reaches the child when the channel is full.
// DrainRemaining is the one blocking call, used once the child has exited.
package stream

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zjrosen/cvrexport/internal/log"
)

const (
	defaultReadSize = 4096
	defaultBacklog  = 64
)

// Option configures a Reader.
type Option func(*Reader)

// WithReadSize sets the size of each pump read from the pipe.
func WithReadSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.readSize = n
		}
	}
}

// WithBacklog sets how many pump reads may be queued before the pump
// blocks (and with it, the child's writes).
func WithBacklog(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.backlog = n
		}
	}
}

// WithName labels the reader in log output.
func WithName(name string) Option {
	return func(r *Reader) {
		r.name = name
	}
}

// Reader is an incremental, non-blocking view over a byte stream.
// PullChunk, DrainRemaining and Closed must be called from a single
// goroutine (the host event loop).
type Reader struct {
	name     string
	readSize int
	backlog  int

	chunks chan []byte
	done   chan struct{}
	stop   chan struct{}
	halted bool
	err    error // set by the pump before done is closed

	pending []byte
	eof     bool
	total   int
}

// NewReader starts pumping src and returns the reader.
func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		name:     "stdout",
		readSize: defaultReadSize,
		backlog:  defaultBacklog,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.chunks = make(chan []byte, r.backlog)
	r.done = make(chan struct{})
	r.stop = make(chan struct{})

	go r.pump(src)
	return r
}

func (r *Reader) pump(src io.Reader) {
	err := r.copyChunks(src)
	if err != nil {
		r.err = err
		log.Warn(log.CatStream, "read anomaly", "stream", r.name, "error", err)
	}
	close(r.chunks)
	close(r.done)
	if err != nil {
		// Keep reading so the writer never blocks on a pipe nobody drains.
		_, _ = io.Copy(io.Discard, src)
	}
}

// copyChunks moves src into the channel until end of stream, Stop or a
// read anomaly, which it returns.
func (r *Reader) copyChunks(src io.Reader) error {
	buf := make([]byte, r.readSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case r.chunks <- data:
			case <-r.stop:
				return nil
			}
		}
		if err == nil {
			continue
		}
		if isEndOfStream(err) {
			return nil
		}
		return err
	}
}

// isEndOfStream reports whether err is a normal end of the pipe rather
// than a read anomaly. A read end closed by Release counts as the end.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// PullChunk returns at most maxChars characters (runes) of output that has
// already arrived. It never waits for more data.
//
// exhausted is true when the pull stopped because nothing further was
// available right now, or the stream is closed. It is false only when
// maxChars characters were returned. Once the stream is fully consumed,
// every call returns ("", true).
func (r *Reader) PullChunk(maxChars int) (chunk string, exhausted bool) {
	if maxChars <= 0 {
		return "", true
	}

	var b strings.Builder
	count := 0
	defer func() { r.total += count }()

	for count < maxChars {
		if !r.fill() {
			return b.String(), true
		}
		size, ok := r.nextRuneSize()
		if !ok {
			// Partial UTF-8 sequence: wait for the rest unless the
			// stream has already ended.
			if !r.fillMore() {
				return b.String(), true
			}
			continue
		}
		b.Write(r.pending[:size])
		r.pending = r.pending[size:]
		count++
	}
	return b.String(), false
}

// fill makes sure at least one byte is pending, receiving without blocking.
func (r *Reader) fill() bool {
	if len(r.pending) > 0 {
		return true
	}
	return r.fillMore()
}

// fillMore appends the next queued pump read to pending, if one is ready.
func (r *Reader) fillMore() bool {
	if r.eof {
		return false
	}
	select {
	case data, ok := <-r.chunks:
		if !ok {
			r.eof = true
			return len(r.pending) > 0
		}
		r.pending = append(r.pending, data...)
		return true
	default:
		return false
	}
}

// nextRuneSize returns the byte length of the first pending rune.
// ok is false when pending holds only the start of a multi-byte rune and
// more bytes may still arrive.
func (r *Reader) nextRuneSize() (int, bool) {
	if utf8.FullRune(r.pending) {
		_, size := utf8.DecodeRune(r.pending)
		return size, true
	}
	if r.eof {
		// Truncated sequence at end of stream: hand it out byte by byte.
		return 1, true
	}
	return 0, false
}

// DrainRemaining hands out everything still buffered or in flight, in
// chunks of at most maxChars, passing each non-empty chunk to emit. Unlike
// PullChunk it blocks while the pump has more to deliver, for at most
// timeout in total. It returns the number of characters drained and
// whether the end of the stream was reached. A non-positive timeout only
// sweeps what has already arrived.
func (r *Reader) DrainRemaining(maxChars int, timeout time.Duration, emit func(string)) (drained int, complete bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		chunk, exhausted := r.PullChunk(maxChars)
		if chunk != "" {
			drained += utf8.RuneCountInString(chunk)
			if emit != nil {
				emit(chunk)
			}
		}
		if !exhausted {
			continue
		}
		if r.eof {
			return drained, true
		}
		if deadline == nil || !r.await(deadline) {
			return drained, false
		}
	}
}

// await blocks for the next pump read or the end of the stream. It
// returns false when deadline fires first.
func (r *Reader) await(deadline <-chan time.Time) bool {
	select {
	case data, ok := <-r.chunks:
		if !ok {
			r.eof = true
			return true
		}
		r.pending = append(r.pending, data...)
		return true
	case <-deadline:
		return false
	}
}

// Wait blocks until the pump reaches the end of the stream or timeout
// elapses. It reports whether the pump finished. A non-positive timeout
// only checks.
func (r *Reader) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-r.done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return true
	case <-timer.C:
		return false
	}
}

// Closed reports whether the stream has ended and every byte was handed out.
func (r *Reader) Closed() bool {
	return r.eof && len(r.pending) == 0
}

// Err returns the read anomaly that stopped the pump, if any. End of
// stream is not an error. It is nil while the pump is still running.
func (r *Reader) Err() error {
	if r.eof {
		return r.err
	}
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Stop releases a pump that is blocked handing data to a reader that will
// never pull again. The underlying pipe must be closed separately.
func (r *Reader) Stop() {
	if !r.halted {
		r.halted = true
		close(r.stop)
	}
}

// Total returns how many characters have been handed out so far.
func (r *Reader) Total() int {
	return r.total
}
