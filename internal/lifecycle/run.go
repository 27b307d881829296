package lifecycle

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/properties"
	"github.com/payperplay/easyservers/internal/supervisor"
	"github.com/payperplay/easyservers/pkg/logger"
)

// Up rewrites the network and RCON properties for port and launches the server in the
// background. It returns once the server printed its ready marker.
func (m *Manager) Up(ctx context.Context, name string, port int) (int, error) {
	if !m.Exists(name) {
		return 0, missingServer(name)
	}
	if port < 1 || port+m.opts.RCONPortOffset > 65535 {
		return 0, failure.Preconditionf("", "Port %d is out of range.", port)
	}
	if status := m.Status(ctx, name); status != None {
		return 0, failure.Preconditionf(failure.Run("server down %s", name),
			"Server with name %s is already running (%s).", name, status)
	}

	err := properties.Update(m.propertiesPath(name), map[string]string{
		"motd":          name,
		"server-port":   strconv.Itoa(port),
		"query.port":    strconv.Itoa(port),
		"rcon.port":     strconv.Itoa(port + m.opts.RCONPortOffset),
		"enable-rcon":   "true",
		"rcon.password": m.opts.RCONPassword,
	})
	if err != nil {
		return 0, failure.Configurationf("Server %s has no usable server.properties: %v", name, err)
	}

	cmd, err := m.launchCommand(name)
	if err != nil {
		return 0, err
	}
	pid, err := m.sup.LaunchBackground(ctx, cmd, m.opts.ReadyMarker, m.opts.ErrorMarker, m.opts.LaunchTimeout)
	if err != nil {
		return 0, failure.Launchf(err, "Server %s failed to start.", name)
	}

	m.out.Printf("Server %s is running with PID %d on port %d.", name, pid, port)
	logger.Info("Server started", map[string]interface{}{
		"server": name,
		"pid":    pid,
		"port":   port,
	})
	return pid, nil
}

// Down asks the server to stop over RCON and force-kills it when it does not answer or
// is still alive after the grace period. A server that survives is reported, not
// returned as an error.
func (m *Manager) Down(ctx context.Context, name string) error {
	if !m.Exists(name) {
		return missingServer(name)
	}
	if m.Status(ctx, name) == None {
		return failure.Preconditionf(failure.Run("server up %s <port>", name),
			"Server with name %s is not running.", name)
	}

	artifact, err := findArtifact(m.Dir(name))
	if err != nil {
		return err
	}
	cmd := supervisor.Command{Artifact: artifact}

	stopped := false
	if port, err := m.rconPort(name); err == nil {
		if _, ok := m.prober.RequestStop(port, m.opts.RCONPassword); ok {
			m.out.Printf("Stop requested for server %s.", name)
			stopped = m.waitStopped(ctx, cmd)
		}
	}

	if stopped {
		if err := supervisor.RemoveSidecar(supervisor.PidPath(artifact)); err != nil {
			logger.Warn("Failed to remove sidecar", map[string]interface{}{"server": name, "error": err.Error()})
		}
	} else if m.sup.Kill(cmd) {
		m.out.Printf("Server %s did not stop in time and was killed.", name)
	}

	if status := m.Status(ctx, name); status != None {
		m.out.Printf("Warning: server %s failed to shut down (%s). Stop the java process manually.", name, status)
		logger.Warn("Server still alive after down", map[string]interface{}{"server": name, "status": string(status)})
		return nil
	}

	m.out.Printf("Server %s stopped.", name)
	logger.Info("Server stopped", map[string]interface{}{"server": name, "forced": !stopped})
	return nil
}

// waitStopped polls liveness until the grace period ends.
func (m *Manager) waitStopped(ctx context.Context, cmd supervisor.Command) bool {
	deadline := time.NewTimer(m.opts.StopGracePeriod)
	defer deadline.Stop()
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		if alive, _ := m.sup.IsAlive(cmd); !alive {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

// Remove deletes a stopped server.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if !m.Exists(name) {
		return failure.Preconditionf("", "Server with name %s doesn't exist.", name)
	}
	if m.Status(ctx, name) != None {
		return failure.Preconditionf(failure.Run("server down %s", name),
			"Server with name %s is running. Stop it before removing it.", name)
	}
	if err := os.RemoveAll(m.Dir(name)); err != nil {
		return err
	}
	m.out.Printf("Server %s removed.", name)
	logger.Info("Server removed", map[string]interface{}{"server": name})
	return nil
}

// NormalizeScript makes an installer's run script start headless and exit without
// waiting for input: lines containing ":exit" or "pause" are dropped and "nogui" is
// passed before the forwarded arguments. Applying it twice changes nothing.
func NormalizeScript(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content := string(data)
	normalized := normalizeScript(content)
	if normalized == content {
		return nil
	}
	return os.WriteFile(path, []byte(normalized), info.Mode().Perm())
}

func normalizeScript(content string) string {
	eol := "\n"
	if strings.Contains(content, "\r\n") {
		eol = "\r\n"
	}
	trailing := strings.HasSuffix(content, eol)

	var kept []string
	for _, l := range strings.Split(strings.TrimSuffix(content, eol), eol) {
		if strings.Contains(l, ":exit") || strings.Contains(l, "pause") {
			continue
		}
		kept = append(kept, injectNogui(l))
	}

	out := strings.Join(kept, eol)
	if trailing && len(kept) > 0 {
		out += eol
	}
	return out
}

func injectNogui(l string) string {
	for _, args := range []string{"%*", `"$@"`} {
		if strings.Contains(l, args) && !strings.Contains(l, "nogui "+args) {
			return strings.Replace(l, args, "nogui "+args, 1)
		}
	}
	return l
}
