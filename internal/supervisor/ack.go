package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/payperplay/easyservers/pkg/logger"
)

// LaunchAndWaitForAck runs cmd attached to the caller and streams its merged output to
// the progress sink. When a line contains readyMarker, "stop" is written to the child's
// stdin. It returns true only when the ready marker was seen before the error marker and
// before the child went away. The child is killed on timeout or cancellation.
func (s *Supervisor) LaunchAndWaitForAck(ctx context.Context, cmd Command, readyMarker, errorMarker string, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	setDetached(c)
	c.Cancel = func() error {
		return killTree(c.Process.Pid)
	}

	stdin, err := c.StdinPipe()
	if err != nil {
		return false, err
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return false, err
	}
	defer pr.Close()
	c.Stdout = pw
	c.Stderr = pw

	if err := c.Start(); err != nil {
		pw.Close()
		return false, fmt.Errorf("failed to start %s: %w", cmd.Cmdline(), err)
	}
	// The child holds its own copy; EOF arrives once every writer is gone.
	pw.Close()

	logger.Debug("Attached process started", map[string]interface{}{
		"pid":     c.Process.Pid,
		"command": cmd.Cmdline(),
	})

	acked, failed := false, false
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.out.Printf("%s", line)

		switch {
		case !acked && !failed && strings.Contains(line, readyMarker):
			acked = true
			if _, err := io.WriteString(stdin, "stop\n"); err != nil {
				logger.Debug("Failed to request stop", map[string]interface{}{"error": err.Error()})
			}
		case !acked && errorMarker != "" && strings.Contains(line, errorMarker):
			failed = true
			_ = killTree(c.Process.Pid)
		case s.hangMarker != "" && strings.Contains(line, s.hangMarker):
			if pid, err := KillNewest(s.runtimeName); err == nil {
				logger.Warn("Killed hanging runtime process", map[string]interface{}{
					"pid":    pid,
					"marker": s.hangMarker,
				})
			}
		}
	}

	waitErr := c.Wait()

	if !acked && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return false, fmt.Errorf("%s did not acknowledge within %s", cmd.Cmdline(), timeout)
	}
	if !acked && errors.Is(ctx.Err(), context.Canceled) {
		return false, ctx.Err()
	}

	logger.Debug("Attached process finished", map[string]interface{}{
		"command": cmd.Cmdline(),
		"acked":   acked,
		"failed":  failed,
		"wait":    fmt.Sprint(waitErr),
	})
	return acked && !failed, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
