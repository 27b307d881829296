package supervisor

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tail follows path and emits complete lines until ctx is done. The file is re-read from
// the last offset on every poll; open and read errors are ignored until the next tick.
// Write notifications, when the platform delivers them, wake the reader early.
func Tail(ctx context.Context, path string, interval time.Duration) <-chan string {
	lines := make(chan string, 64)

	go func() {
		defer close(lines)

		var wake <-chan fsnotify.Event
		var watchErrs <-chan error
		if w, err := fsnotify.NewWatcher(); err == nil {
			defer w.Close()
			if err := w.Add(path); err == nil {
				wake, watchErrs = w.Events, w.Errors
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		t := &tailer{path: path}
		for {
			for _, line := range t.read() {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case _, ok := <-wake:
				if !ok {
					wake = nil
				}
			case _, ok := <-watchErrs:
				if !ok {
					watchErrs = nil
				}
			}
		}
	}()

	return lines
}

type tailer struct {
	path    string
	offset  int64
	partial []byte
}

func (t *tailer) read() []string {
	f, err := os.Open(t.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() < t.offset {
		// Truncated underneath us.
		t.offset, t.partial = 0, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil
	}
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return nil
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	var out []string
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		out = append(out, strings.TrimRight(string(buf[:i]), "\r"))
		buf = buf[i+1:]
	}
	t.partial = append([]byte(nil), buf...)
	return out
}
