package logging

import (
	"bytes"
	"sync"
)

// ChannelWriter turns written bytes into lines on a channel, for display in
// the TUI log box. Lines are dropped when the channel is full.
type ChannelWriter struct {
	mu      sync.Mutex
	partial []byte
	lines   chan string
}

// NewChannelWriter returns a writer buffering up to size lines.
func NewChannelWriter(size int) *ChannelWriter {
	if size <= 0 {
		size = 1
	}
	return &ChannelWriter{lines: make(chan string, size)}
}

// Lines returns the channel of complete lines, without terminators.
func (w *ChannelWriter) Lines() <-chan string {
	return w.lines
}

func (w *ChannelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.partial[:i], "\r"))
		w.partial = w.partial[i+1:]
		select {
		case w.lines <- line:
		default:
			// Drop if channel full
		}
	}
	return len(p), nil
}
