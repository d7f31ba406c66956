package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const waitTimeout = 2 * time.Second

// settled returns a reader whose pump has already consumed all of payload.
func settled(t *testing.T, payload string, opts ...Option) *Reader {
	t.Helper()
	r := NewReader(strings.NewReader(payload), opts...)
	require.True(t, r.Wait(waitTimeout), "pump should finish")
	return r
}

func TestPullChunk_RespectsMaxChars(t *testing.T) {
	r := settled(t, strings.Repeat("A", 1000))

	chunk, exhausted := r.PullChunk(250)
	require.Len(t, chunk, 250)
	require.False(t, exhausted, "a full chunk is not exhaustion")

	chunk, exhausted = r.PullChunk(1000)
	require.Len(t, chunk, 750)
	require.True(t, exhausted)
	require.Equal(t, 1000, r.Total())
}

func TestPullChunk_IdempotentAfterExhaustion(t *testing.T) {
	r := settled(t, "done\n")

	chunk, exhausted := r.PullChunk(100)
	require.Equal(t, "done\n", chunk)
	require.True(t, exhausted)

	for i := 0; i < 5; i++ {
		chunk, exhausted = r.PullChunk(100)
		require.Empty(t, chunk)
		require.True(t, exhausted)
	}
	require.True(t, r.Closed())
}

func TestPullChunk_DoesNotBlockOnSilentWriter(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewReader(pr)

	start := time.Now()
	chunk, exhausted := r.PullChunk(100)
	require.Empty(t, chunk)
	require.True(t, exhausted)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.False(t, r.Closed(), "an idle pipe is not a closed stream")
}

func TestPullChunk_ZeroMaxChars(t *testing.T) {
	r := settled(t, "abc")
	chunk, exhausted := r.PullChunk(0)
	require.Empty(t, chunk)
	require.True(t, exhausted)
}

func TestPullChunk_CountsRunesNotBytes(t *testing.T) {
	r := settled(t, "ééééé")
	chunk, exhausted := r.PullChunk(3)
	require.Equal(t, "ééé", chunk)
	require.False(t, exhausted)
}

func TestPullChunk_HoldsBackSplitRune(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, WithReadSize(1))

	go func() {
		_, _ = pw.Write([]byte{0xC3}) // first byte of "é"
	}()
	require.Eventually(t, func() bool { return len(r.chunks) > 0 }, waitTimeout, 5*time.Millisecond)

	chunk, exhausted := r.PullChunk(10)
	require.Empty(t, chunk, "a partial rune must not be emitted")
	require.True(t, exhausted)

	go func() {
		_, _ = pw.Write([]byte{0xA9})
		_ = pw.Close()
	}()
	require.True(t, r.Wait(waitTimeout))

	chunk, _ = r.PullChunk(10)
	require.Equal(t, "é", chunk)
}

func TestPullChunk_TruncatedRuneAtEOF(t *testing.T) {
	r := settled(t, "ok\xC3")
	var got strings.Builder
	_, complete := r.DrainRemaining(10, waitTimeout, func(s string) { got.WriteString(s) })
	require.True(t, complete)
	require.Equal(t, "ok\xC3", got.String())
}

func TestDrainRemaining_EmitsEverythingOnce(t *testing.T) {
	r := settled(t, strings.Repeat("A", 500))

	var chunks []string
	n, complete := r.DrainRemaining(100, waitTimeout, func(s string) { chunks = append(chunks, s) })
	require.Equal(t, 500, n)
	require.True(t, complete)
	require.Equal(t, strings.Repeat("A", 500), strings.Join(chunks, ""))

	n, complete = r.DrainRemaining(100, waitTimeout, func(s string) { t.Fatalf("unexpected chunk %q", s) })
	require.Zero(t, n)
	require.True(t, complete)
}

func TestDrainRemaining_ReceivesPastFullBacklog(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, WithBacklog(2), WithReadSize(8))

	payload := strings.Repeat("B", 10_000)
	go func() {
		_, _ = pw.Write([]byte(payload))
		_ = pw.Close()
	}()
	require.Eventually(t, func() bool { return len(r.chunks) == 2 }, waitTimeout, 5*time.Millisecond)
	require.False(t, r.Wait(0), "pump is blocked on a full backlog")

	var got strings.Builder
	n, complete := r.DrainRemaining(100, waitTimeout, func(s string) { got.WriteString(s) })
	require.True(t, complete)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, got.String())
	require.True(t, r.Closed())
}

func TestDrainRemaining_TimesOutOnOpenStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewReader(pr)

	go func() { _, _ = pw.Write([]byte("early")) }()
	var got strings.Builder
	n, complete := r.DrainRemaining(100, 50*time.Millisecond, func(s string) { got.WriteString(s) })
	require.False(t, complete)
	require.Equal(t, 5, n)
	require.Equal(t, "early", got.String())
}

func TestDrainRemaining_ZeroTimeoutOnlySweeps(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewReader(pr)

	start := time.Now()
	n, complete := r.DrainRemaining(100, 0, nil)
	require.Zero(t, n)
	require.False(t, complete)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestReader_ReadAnomalyIsNotEOF(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(io.MultiReader(strings.NewReader("abc"), iotest.ErrReader(boom)))
	require.True(t, r.Wait(waitTimeout))

	chunk, exhausted := r.PullChunk(10)
	require.Equal(t, "abc", chunk)
	require.True(t, exhausted)
	require.ErrorIs(t, r.Err(), boom)
}

// failFirst returns err from its first Read and reads r afterwards.
type failFirst struct {
	err    error
	failed bool
	r      io.Reader
}

func (f *failFirst) Read(p []byte) (int, error) {
	if !f.failed {
		f.failed = true
		return 0, f.err
	}
	return f.r.Read(p)
}

func TestReader_AnomalyKeepsWriterUnblocked(t *testing.T) {
	boom := errors.New("boom")
	pr, pw := io.Pipe()
	r := NewReader(&failFirst{err: boom, r: pr})
	require.True(t, r.Wait(waitTimeout))
	require.ErrorIs(t, r.Err(), boom)

	written := make(chan error, 1)
	go func() {
		_, err := pw.Write([]byte(strings.Repeat("x", 1<<20)))
		written <- err
	}()
	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("writer blocked after a read anomaly")
	}
	_ = pw.Close()
}

func TestReader_CleanEOFHasNoError(t *testing.T) {
	r := settled(t, "abc")
	require.NoError(t, r.Err())
}

func TestReader_ErrBeforeDoneIsNil(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewReader(pr)
	require.NoError(t, r.Err())
	require.False(t, r.Wait(0))
}

func TestReader_StopReleasesBlockedPump(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, WithBacklog(1), WithReadSize(1))

	go func() {
		_, _ = pw.Write([]byte("abcdef"))
	}()
	require.Eventually(t, func() bool { return len(r.chunks) == 1 }, waitTimeout, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	_ = pr.Close()
	require.True(t, r.Wait(waitTimeout), "pump should exit after Stop")
}

func TestProperty_ChunksPreserveContentWithinBudget(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.String().Draw(rt, "payload")
		maxChars := rapid.IntRange(1, 64).Draw(rt, "maxChars")
		readSize := rapid.IntRange(1, 16).Draw(rt, "readSize")

		r := NewReader(strings.NewReader(payload), WithReadSize(readSize), WithBacklog(4))

		var got strings.Builder
		deadline := time.Now().Add(waitTimeout)
		for !r.Closed() {
			if time.Now().After(deadline) {
				rt.Fatalf("stream never closed")
			}
			chunk, exhausted := r.PullChunk(maxChars)
			if n := utf8.RuneCountInString(chunk); n > maxChars {
				rt.Fatalf("chunk of %d runes exceeds max %d", n, maxChars)
			}
			got.WriteString(chunk)
			if exhausted {
				time.Sleep(time.Millisecond)
			}
		}
		if got.String() != payload {
			rt.Fatalf("content mismatch: got %q want %q", got.String(), payload)
		}
		if r.Total() != utf8.RuneCountInString(payload) {
			rt.Fatalf("total %d, want %d", r.Total(), utf8.RuneCountInString(payload))
		}
	})
}
