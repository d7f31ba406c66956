package stream

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/zjrosen/cvrexport/internal/log"
)

// maxLineSize bounds a single diagnostic line; longer lines are split.
const maxLineSize = 1024 * 1024

// LineCollector reads a stream line by line in the background and keeps
// every line. It exists so a child that writes heavily to stderr cannot
// fill the pipe and stall while nobody reads it; the lines are only
// handed to the host once the child has exited.
type LineCollector struct {
	mu    sync.Mutex
	lines []string
	err   error
	done  chan struct{}
}

// CollectLines starts collecting src.
func CollectLines(src io.Reader) *LineCollector {
	c := &LineCollector{done: make(chan struct{})}
	go c.run(src)
	return c
}

func (c *LineCollector) run(src io.Reader) {
	br := bufio.NewReaderSize(src, 64*1024)
	var (
		line  []byte
		split bool
	)
	for {
		frag, isPrefix, err := br.ReadLine()
		line = append(line, frag...)
		if len(line) >= maxLineSize {
			c.add(string(line[:maxLineSize]))
			line = append(line[:0], line[maxLineSize:]...)
			split = true
		}
		if err == nil && !isPrefix {
			if len(line) > 0 || !split {
				c.add(string(line))
			}
			line, split = line[:0], false
			continue
		}
		if err == nil {
			continue
		}

		if len(line) > 0 {
			c.add(string(line))
		}
		if isEndOfStream(err) {
			close(c.done)
			return
		}
		log.Warn(log.CatStream, "stderr read anomaly", "error", err)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		// Keep reading so the writer never blocks on a pipe nobody drains.
		_, _ = io.Copy(io.Discard, br)
		return
	}
}

func (c *LineCollector) add(line string) {
	log.Debug(log.CatStream, "STDERR", "line", line)
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Wait blocks until the stream ends or timeout elapses and reports
// whether collection finished.
func (c *LineCollector) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(max(timeout, 0))
	defer timer.Stop()
	select {
	case <-c.done:
		return true
	case <-timer.C:
		select {
		case <-c.done:
			return true
		default:
			return false
		}
	}
}

// Lines returns a copy of the lines collected so far.
func (c *LineCollector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Err returns a read error other than end of stream.
func (c *LineCollector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
