// Package supervisor launches server processes and tracks them through sidecar files.
//
// Nothing here holds a process handle across invocations. A background launch leaves
// "<artifact>.pid", "<artifact>.out" and "<artifact>.log" next to the launched script or
// jar, and every later question about the process is answered from the sidecar and the
// OS process table.
package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/progress"
)

// Command identifies a program to run and the artifact owning its sidecar files.
type Command struct {
	Path     string
	Args     []string
	Dir      string
	Artifact string // script or jar; sidecars are derived from it
}

// Cmdline renders the command for logs and sidecars.
func (c Command) Cmdline() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Options tunes a Supervisor.
type Options struct {
	// HangMarker is an output substring after which the newest RuntimeName process is
	// force-killed. Empty disables it.
	HangMarker   string
	RuntimeName  string
	PollInterval time.Duration
}

// Supervisor starts and inspects server processes.
type Supervisor struct {
	out          *progress.Sink
	hangMarker   string
	runtimeName  string
	pollInterval time.Duration
}

// New creates a supervisor printing child output to out.
func New(out *progress.Sink, opts Options) *Supervisor {
	if out == nil {
		out = progress.Discard()
	}
	if opts.RuntimeName == "" {
		opts.RuntimeName = "java"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	return &Supervisor{
		out:          out,
		hangMarker:   opts.HangMarker,
		runtimeName:  opts.RuntimeName,
		pollInterval: opts.PollInterval,
	}
}

// PidPath returns the sidecar holding the process identity.
func PidPath(artifact string) string { return withExt(artifact, ".pid") }

// OutPath returns the file receiving the child's stdout and stderr.
func OutPath(artifact string) string { return withExt(artifact, ".out") }

// LogPath returns the file holding the lines captured until acknowledgment.
func LogPath(artifact string) string { return withExt(artifact, ".log") }

func withExt(artifact, ext string) string {
	return strings.TrimSuffix(artifact, filepath.Ext(artifact)) + ext
}

// FindJava resolves the Java runtime from javaHome, then from PATH.
func FindJava(javaHome string) (string, error) {
	binary := "java"
	if runtime.GOOS == "windows" {
		binary = "java.exe"
	}

	if javaHome != "" {
		candidate := filepath.Join(javaHome, "bin", binary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(binary); err == nil {
		return path, nil
	}

	return "", failure.Configurationf("Java runtime not found. Set JAVA_HOME to your Java installation folder or add java to PATH.")
}
