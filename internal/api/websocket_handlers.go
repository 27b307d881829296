package api

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// createUpgrader creates a WebSocket upgrader with appropriate CORS settings
func createUpgrader(allowAllOrigins bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAllOrigins {
				return true
			}
			// Only allow same origin
			origin := r.Header.Get("Origin")
			return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}

// frameWriter turns progress output into "log" frames, one per complete line. It is the
// only writer on its connection.
type frameWriter struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	partial []byte
	broken  bool
}

func newFrameWriter(conn *websocket.Conn) *frameWriter {
	return &frameWriter{conn: conn}
}

func (w *frameWriter) Write(p []byte) (int, error) {
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
		w.sendLocked(streamFrame{Type: "log", Line: line})
	}
	// The operation keeps running when the client is gone; its output is dropped
	return len(p), nil
}

// flush sends a trailing line without newline.
func (w *frameWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.sendLocked(streamFrame{Type: "log", Line: string(w.partial)})
		w.partial = nil
	}
}

func (w *frameWriter) send(f streamFrame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sendLocked(f)
}

func (w *frameWriter) sendLocked(f streamFrame) {
	if w.broken {
		return
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(f); err != nil {
		w.broken = true
	}
}
