package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLineCollector_CollectsAllLines(t *testing.T) {
	c := CollectLines(strings.NewReader("bad input\nsecond line\nno newline"))
	require.True(t, c.Wait(waitTimeout))
	require.Equal(t, []string{"bad input", "second line", "no newline"}, c.Lines())
	require.NoError(t, c.Err())
}

func TestLineCollector_EmptyStream(t *testing.T) {
	c := CollectLines(strings.NewReader(""))
	require.True(t, c.Wait(waitTimeout))
	require.Empty(t, c.Lines())
}

func TestLineCollector_WaitTimesOutWhileOpen(t *testing.T) {
	pr, pw := io.Pipe()
	c := CollectLines(pr)

	_, err := pw.Write([]byte("partial\n"))
	require.NoError(t, err)
	require.False(t, c.Wait(0))

	require.NoError(t, pw.Close())
	require.True(t, c.Wait(waitTimeout))
	require.Equal(t, []string{"partial"}, c.Lines())
}

func TestLineCollector_LinesReturnsCopy(t *testing.T) {
	c := CollectLines(strings.NewReader("a\nb\n"))
	require.True(t, c.Wait(waitTimeout))

	lines := c.Lines()
	lines[0] = "mutated"
	require.Equal(t, "a", c.Lines()[0])
}

func TestLineCollector_SplitsOverlongLine(t *testing.T) {
	pr, pw := io.Pipe()
	c := CollectLines(pr)

	go func() {
		_, _ = pw.Write([]byte(strings.Repeat("x", 2*maxLineSize+5) + "\nbad input\n"))
		_ = pw.Close()
	}()
	require.True(t, c.Wait(waitTimeout), "collector must keep reading past a long line")

	lines := c.Lines()
	require.Len(t, lines, 4)
	require.Len(t, lines[0], maxLineSize)
	require.Len(t, lines[1], maxLineSize)
	require.Equal(t, "xxxxx", lines[2])
	require.Equal(t, "bad input", lines[3])
	require.NoError(t, c.Err())
}

func TestLineCollector_LineOfExactlyMaxSize(t *testing.T) {
	c := CollectLines(strings.NewReader(strings.Repeat("y", maxLineSize) + "\nnext\n"))
	require.True(t, c.Wait(waitTimeout))

	lines := c.Lines()
	require.Len(t, lines, 2)
	require.Len(t, lines[0], maxLineSize)
	require.Equal(t, "next", lines[1])
}

func TestLineCollector_CRLF(t *testing.T) {
	c := CollectLines(strings.NewReader("one\r\ntwo\r\n"))
	require.True(t, c.Wait(waitTimeout))
	require.Equal(t, []string{"one", "two"}, c.Lines())
}

func TestLineCollector_AnomalyKeepsWriterUnblocked(t *testing.T) {
	boom := errors.New("boom")
	pr, pw := io.Pipe()
	c := CollectLines(&failFirst{err: boom, r: pr})
	require.True(t, c.Wait(waitTimeout))
	require.ErrorIs(t, c.Err(), boom)

	written := make(chan error, 1)
	go func() {
		_, err := pw.Write([]byte(strings.Repeat("line\n", 100_000)))
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
