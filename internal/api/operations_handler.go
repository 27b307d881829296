package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/middleware"
	"github.com/payperplay/easyservers/internal/ops"
	"github.com/payperplay/easyservers/internal/progress"
	"github.com/payperplay/easyservers/pkg/logger"
)

// ErrBusy is returned while another operation holds the gate.
var ErrBusy = errors.New("another operation is already running")

const maxRequestBody = 1 << 20

// Executor runs one operation.
type Executor interface {
	Execute(ctx context.Context, req ops.Request) (ops.Result, error)
}

// OperationsHandler exposes the operation set over HTTP and WebSocket. One operation runs
// at a time; the progress sink is pointed at the caller for its duration.
type OperationsHandler struct {
	exec     Executor
	out      *progress.Sink
	gate     *semaphore.Weighted
	upgrader websocket.Upgrader
}

// NewOperationsHandler creates a handler sharing out with the core.
func NewOperationsHandler(exec Executor, out *progress.Sink, allowAllOrigins bool) *OperationsHandler {
	return &OperationsHandler{
		exec:     exec,
		out:      out,
		gate:     semaphore.NewWeighted(1),
		upgrader: createUpgrader(allowAllOrigins),
	}
}

// OperationResponse is the body of a successful operation.
type OperationResponse struct {
	ops.Result
	Output []string `json:"output"`
}

// ListKinds handles GET /api/operations
func (h *OperationsHandler) ListKinds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": ops.Kinds()})
}

// Run handles POST /api/operations/:kind
func (h *OperationsHandler) Run(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		middleware.RespondError(c, http.StatusBadRequest, err, nil)
		return
	}
	req, err := decode(c.Param("kind"), body)
	if err != nil {
		middleware.RespondError(c, http.StatusBadRequest, err, nil)
		return
	}

	if !h.gate.TryAcquire(1) {
		c.AbortWithStatusJSON(http.StatusConflict, middleware.ErrorResponse{Error: ErrBusy.Error()})
		return
	}
	defer h.gate.Release(1)

	var buf bytes.Buffer
	restore := h.out.Redirect(&buf)
	res, err := h.exec.Execute(c.Request.Context(), req)
	restore()

	output := splitLines(buf.String())
	if err != nil {
		middleware.RespondError(c, 0, err, map[string]interface{}{"output": output})
		return
	}
	c.JSON(http.StatusOK, OperationResponse{Result: res, Output: output})
}

func decode(kind string, body []byte) (ops.Request, error) {
	req, err := ops.Decode(kind, body)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// streamRequest is the first and only message a stream client sends.
type streamRequest struct {
	Kind    string          `json:"kind"`
	Request json.RawMessage `json:"request"`
}

// streamFrame is sent to stream clients. Type is "log", "result" or "error".
type streamFrame struct {
	Type   string      `json:"type"`
	Line   string      `json:"line,omitempty"`
	Result *ops.Result `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Kind   string      `json:"kind,omitempty"`
	Hint   string      `json:"hint,omitempty"`
}

func errorFrame(err error) streamFrame {
	resp := middleware.NewErrorResponse(err, nil)
	return streamFrame{Type: "error", Error: resp.Error, Kind: resp.Kind, Hint: resp.Hint}
}

// Stream handles GET /api/operations/stream
func (h *OperationsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Failed to upgrade operation stream", map[string]interface{}{
			"remote_addr": c.Request.RemoteAddr,
			"error":       err.Error(),
		})
		return
	}
	defer conn.Close()

	w := newFrameWriter(conn)

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var msg streamRequest
	if err := conn.ReadJSON(&msg); err != nil {
		w.send(streamFrame{Type: "error", Error: "expected {\"kind\": ..., \"request\": {...}}"})
		return
	}
	conn.SetReadDeadline(time.Time{})

	req, err := decode(msg.Kind, msg.Request)
	if err != nil {
		w.send(errorFrame(err))
		return
	}
	if !h.gate.TryAcquire(1) {
		w.send(streamFrame{Type: "error", Error: ErrBusy.Error()})
		return
	}
	defer h.gate.Release(1)

	// A closed socket cancels the operation
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	restore := h.out.Redirect(w)
	res, err := h.exec.Execute(ctx, req)
	restore()
	w.flush()

	if err != nil {
		if !failure.Is(err, failure.Precondition) {
			logger.Warn("Streamed operation failed", map[string]interface{}{
				"kind":  req.Kind(),
				"error": err.Error(),
			})
		}
		w.send(errorFrame(err))
	} else {
		w.send(streamFrame{Type: "result", Result: &res})
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
