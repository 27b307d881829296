// Package progress carries human-readable progress lines from the core to whichever
// front-end currently owns the output.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Sink is a redirectable line writer. Core components print through it and never know
// whether the lines end up on a terminal, an HTTP response or a websocket.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// New returns a sink writing to w. A nil writer discards output.
func New(w io.Writer) *Sink {
	if w == nil {
		w = io.Discard
	}
	return &Sink{w: w}
}

// Discard returns a sink that drops everything.
func Discard() *Sink {
	return New(io.Discard)
}

// Printf writes one line. A trailing newline is added when missing.
func (s *Sink) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line)
}

// Write implements io.Writer so raw child output can be copied through the sink.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Redirect swaps the destination and returns a func restoring the previous one.
func (s *Sink) Redirect(w io.Writer) (restore func()) {
	if w == nil {
		w = io.Discard
	}
	s.mu.Lock()
	prev := s.w
	s.w = w
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.w = prev
		s.mu.Unlock()
	}
}
