// Package lifecycle creates, starts, stops and removes server instances.
//
// A server is a directory below the servers root. Its status is derived on every call
// from that directory, the launched artifact's sidecar and an RCON probe, so any
// controller process can pick up a server another one started.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/progress"
	"github.com/payperplay/easyservers/internal/properties"
	"github.com/payperplay/easyservers/internal/rcon"
	"github.com/payperplay/easyservers/internal/supervisor"
	"github.com/payperplay/easyservers/pkg/logger"
)

var serverNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)

// Status is the derived state of a server.
type Status string

const (
	None           Status = "NONE"
	ProcessRunning Status = "PROCESS_RUNNING"
	Listening      Status = "LISTENING"
)

// Supervisor launches and tracks server processes.
type Supervisor interface {
	LaunchAndWaitForAck(ctx context.Context, cmd supervisor.Command, readyMarker, errorMarker string, timeout time.Duration) (bool, error)
	LaunchBackground(ctx context.Context, cmd supervisor.Command, readyMarker, errorMarker string, timeout time.Duration) (int, error)
	IsAlive(cmd supervisor.Command) (bool, int)
	Kill(cmd supervisor.Command) bool
}

// Prober talks to a server's remote console.
type Prober interface {
	Probe(port int, password string) (string, bool)
	RequestStop(port int, password string) (string, bool)
	Execute(port int, password, command string) (string, error)
}

// Configs gives read access to configurations.
type Configs interface {
	Read(name string) (*assets.Descriptor, error)
	Layout() assets.Layout
}

// Downloader fetches remote worlds and resource packs.
type Downloader interface {
	Download(ctx context.Context, link, destDir, prefix string) (string, error)
}

// Options carries the runtime settings of a Manager.
type Options struct {
	Root             string
	JavaHome         string
	Xmx              string
	Xms              string
	ReadyMarker      string
	ErrorMarker      string
	BootstrapTimeout time.Duration
	LaunchTimeout    time.Duration
	StopGracePeriod  time.Duration
	PollInterval     time.Duration
	RCONPortOffset   int
	RCONPassword     string
}

func (o *Options) defaults() {
	if o.Xmx == "" {
		o.Xmx = "1G"
	}
	if o.Xms == "" {
		o.Xms = "1G"
	}
	if o.ReadyMarker == "" {
		o.ReadyMarker = "Done"
	}
	if o.ErrorMarker == "" {
		o.ErrorMarker = "/ERROR"
	}
	if o.BootstrapTimeout <= 0 {
		o.BootstrapTimeout = 10 * time.Minute
	}
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = 2 * time.Minute
	}
	if o.StopGracePeriod <= 0 {
		o.StopGracePeriod = 15 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.RCONPortOffset == 0 {
		o.RCONPortOffset = 10
	}
	if o.RCONPassword == "" {
		o.RCONPassword = "password"
	}
}

// Manager implements the server operations.
type Manager struct {
	opts       Options
	configs    Configs
	sup        Supervisor
	prober     Prober
	downloader Downloader
	out        *progress.Sink
	findJava   func(javaHome string) (string, error)
}

// NewManager creates a manager for the servers below opts.Root.
func NewManager(opts Options, configs Configs, sup Supervisor, prober Prober, downloader Downloader, out *progress.Sink) *Manager {
	opts.defaults()
	if out == nil {
		out = progress.Discard()
	}
	return &Manager{
		opts:       opts,
		configs:    configs,
		sup:        sup,
		prober:     prober,
		downloader: downloader,
		out:        out,
		findJava:   supervisor.FindJava,
	}
}

// Dir returns the directory of a server.
func (m *Manager) Dir(name string) string {
	return filepath.Join(m.opts.Root, name)
}

func (m *Manager) propertiesPath(name string) string {
	return filepath.Join(m.Dir(name), properties.FileName)
}

// Exists reports whether a server directory exists. Names that could escape the
// servers root never exist.
func (m *Manager) Exists(name string) bool {
	if !serverNameRegex.MatchString(name) {
		return false
	}
	info, err := os.Stat(m.Dir(name))
	return err == nil && info.IsDir()
}

func missingServer(name string) error {
	return failure.Preconditionf(
		failure.Run("server create %s <config>", name),
		"Server with name %s doesn't exist.", name)
}

// List returns server names in directory order.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.opts.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() && serverNameRegex.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Status derives the state of a server. It never fails: anything unexpected reads as
// NONE, and a failed probe reads as PROCESS_RUNNING.
func (m *Manager) Status(ctx context.Context, name string) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Status check panicked", fmt.Errorf("%v", r), map[string]interface{}{"server": name})
			status = None
		}
	}()

	if !m.Exists(name) {
		return None
	}
	artifact, err := findArtifact(m.Dir(name))
	if err != nil {
		return None
	}
	if alive, _ := m.sup.IsAlive(supervisor.Command{Artifact: artifact}); !alive {
		return None
	}
	if ctx.Err() != nil {
		return ProcessRunning
	}

	port, err := m.rconPort(name)
	if err != nil {
		return ProcessRunning
	}
	if _, ok := m.prober.Probe(port, m.opts.RCONPassword); ok {
		return Listening
	}
	return ProcessRunning
}

// Info is a snapshot of a server for status output.
type Info struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	PID        int    `json:"pid,omitempty"`
	Port       int    `json:"port,omitempty"`
	RCONPort   int    `json:"rconPort,omitempty"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	Artifact   string `json:"artifact,omitempty"`
}

// Inspect reports status, process and ports of a server, and the player count when
// it is listening.
func (m *Manager) Inspect(ctx context.Context, name string) (Info, error) {
	if !m.Exists(name) {
		return Info{}, missingServer(name)
	}
	info := Info{Name: name, Status: m.Status(ctx, name)}

	if artifact, err := findArtifact(m.Dir(name)); err == nil {
		info.Artifact = filepath.Base(artifact)
		if alive, pid := m.sup.IsAlive(supervisor.Command{Artifact: artifact}); alive {
			info.PID = pid
		}
	}
	if props, err := properties.Load(m.propertiesPath(name)); err == nil {
		info.Port, _ = props.Int("server-port")
		info.RCONPort, _ = props.Int("rcon.port")
	}
	if info.Status == Listening {
		if reply, ok := m.prober.Probe(info.RCONPort, m.opts.RCONPassword); ok {
			info.Players, info.MaxPlayers = rcon.ParsePlayerCount(reply)
		}
	}
	return info, nil
}

func (m *Manager) rconPort(name string) (int, error) {
	props, err := properties.Load(m.propertiesPath(name))
	if err != nil {
		return 0, err
	}
	return props.Int("rcon.port")
}

// scriptName is the launch script an installer leaves in the server root.
func scriptName() string {
	if runtime.GOOS == "windows" {
		return "run.bat"
	}
	return "run.sh"
}

// findArtifact returns the launch script when present, else the first jar whose name
// contains "server".
func findArtifact(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	script := filepath.Join(abs, scriptName())
	if info, err := os.Stat(script); err == nil && !info.IsDir() {
		return script, nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", err
	}
	var jars []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(n), ".jar") && strings.Contains(strings.ToLower(n), "server") {
			jars = append(jars, filepath.Join(abs, n))
		}
	}
	if len(jars) == 0 {
		return "", failure.Configurationf("No run script or server jar in %s.", dir)
	}
	sort.Strings(jars)
	return jars[0], nil
}

// launchCommand builds the command starting a server. A script is normalized first.
func (m *Manager) launchCommand(name string) (supervisor.Command, error) {
	dir := m.Dir(name)
	artifact, err := findArtifact(dir)
	if err != nil {
		return supervisor.Command{}, err
	}
	absDir := filepath.Dir(artifact)

	if filepath.Base(artifact) == scriptName() {
		if err := NormalizeScript(artifact); err != nil {
			return supervisor.Command{}, fmt.Errorf("failed to normalize %s: %w", artifact, err)
		}
		cmd := supervisor.Command{Dir: absDir, Artifact: artifact}
		if runtime.GOOS == "windows" {
			cmd.Path, cmd.Args = "cmd", []string{"/c", filepath.Base(artifact)}
		} else {
			cmd.Path, cmd.Args = "/bin/sh", []string{filepath.Base(artifact)}
		}
		return cmd, nil
	}

	java, err := m.findJava(m.opts.JavaHome)
	if err != nil {
		return supervisor.Command{}, err
	}
	return supervisor.Command{
		Path:     java,
		Args:     []string{"-Xmx" + m.opts.Xmx, "-Xms" + m.opts.Xms, "-jar", filepath.Base(artifact), "nogui"},
		Dir:      absDir,
		Artifact: artifact,
	}, nil
}
