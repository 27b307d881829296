package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/payperplay/easyservers/pkg/logger"
)

// LaunchBackground starts cmd detached from the caller with its output redirected to the
// artifact's .out file, records the sidecar, and blocks until the ready marker, the error
// marker, child exit or timeout. The captured lines are written to the .log file.
// Without acknowledgment the child is killed and an error is returned.
func (s *Supervisor) LaunchBackground(ctx context.Context, cmd Command, readyMarker, errorMarker string, timeout time.Duration) (int, error) {
	outPath := OutPath(cmd.Artifact)
	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outPath, err)
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = out
	c.Stderr = out
	setDetached(c)

	err = c.Start()
	out.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", cmd.Cmdline(), err)
	}
	pid := c.Process.Pid

	// Reap the child for as long as this controller lives.
	exited := make(chan struct{})
	go func() {
		_ = c.Wait()
		close(exited)
	}()

	pidPath := PidPath(cmd.Artifact)
	if err := WriteSidecar(pidPath, fingerprint(pid, cmd.Cmdline())); err != nil {
		_ = killTree(pid)
		return 0, fmt.Errorf("failed to write sidecar: %w", err)
	}

	logger.Info("Background process started", map[string]interface{}{
		"pid":      pid,
		"artifact": cmd.Artifact,
	})

	tailCtx, stopTail := context.WithCancel(ctx)
	defer stopTail()
	lines := Tail(tailCtx, outPath, s.pollInterval)

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var (
		captured []string
		acked    bool
		reason   string
		drain    <-chan time.Time
		waitCh   = (<-chan struct{})(exited)
	)

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			captured = append(captured, line)
			s.out.Printf("%s", line)
			if waitCh != nil && strings.Contains(line, readyMarker) {
				acked = true
				break loop
			}
			if errorMarker != "" && strings.Contains(line, errorMarker) {
				reason = "error reported: " + line
				break loop
			}
		case <-waitCh:
			// Give the tailer a chance to pick up the last lines.
			waitCh = nil
			reason = "process exited"
			drain = time.After(2 * s.pollInterval)
		case <-drain:
			break loop
		case <-deadline:
			reason = fmt.Sprintf("no acknowledgment within %s", timeout)
			break loop
		case <-ctx.Done():
			reason = ctx.Err().Error()
			break loop
		}
	}
	stopTail()

	logPath := LogPath(cmd.Artifact)
	content := strings.Join(captured, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		logger.Warn("Failed to write launch log", map[string]interface{}{
			"path":  logPath,
			"error": err.Error(),
		})
	}

	if !acked {
		_ = killTree(pid)
		_ = RemoveSidecar(pidPath)
		logger.Warn("Background process failed to acknowledge", map[string]interface{}{
			"pid":      pid,
			"artifact": cmd.Artifact,
			"reason":   reason,
		})
		return 0, fmt.Errorf("%s failed to acknowledge startup (%s)", filepath.Base(cmd.Artifact), reason)
	}

	return pid, nil
}
