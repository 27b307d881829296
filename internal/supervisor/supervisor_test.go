//go:build !windows

package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payperplay/easyservers/internal/progress"
)

func writeScript(t *testing.T, dir, body string) Command {
	t.Helper()
	path := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return Command{Path: "/bin/sh", Args: []string{path}, Dir: dir, Artifact: path}
}

func newTestSupervisor(buf *bytes.Buffer) *Supervisor {
	return New(progress.New(buf), Options{PollInterval: 20 * time.Millisecond})
}

func TestLaunchAndWaitForAck(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		timeout time.Duration
		want    bool
		wantErr bool
		output  string
	}{
		{
			name:   "ready then stop",
			body:   "echo 'Preparing spawn area'\necho 'Done (1.5s)! For help, type \"help\"'\nread cmd\necho \"received $cmd\"",
			want:   true,
			output: "received stop",
		},
		{
			name: "error before ready",
			body: "echo 'Failed to load /ERROR something'\nsleep 30",
			want: false,
		},
		{
			name: "exit without ready",
			body: "echo 'starting'\nexit 1",
			want: false,
		},
		{
			name:    "timeout",
			body:    "sleep 30",
			timeout: 300 * time.Millisecond,
			want:    false,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := newTestSupervisor(&buf)
			cmd := writeScript(t, t.TempDir(), tt.body)

			timeout := tt.timeout
			if timeout == 0 {
				timeout = 10 * time.Second
			}

			start := time.Now()
			got, err := s.LaunchAndWaitForAck(context.Background(), cmd, "Done", "/ERROR", timeout)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Less(t, time.Since(start), 10*time.Second)
			if tt.output != "" {
				assert.Contains(t, buf.String(), tt.output)
			}
		})
	}
}

// sleeperBinary copies sleep under a name no other process on the host carries.
func sleeperBinary(t *testing.T) (string, string) {
	t.Helper()
	src, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	data, err := os.ReadFile(src)
	require.NoError(t, err)

	name := fmt.Sprintf("hangrt%d", os.Getpid()%1000000)
	bin := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(bin, data, 0755))
	return bin, name
}

func TestHangMarkerKillsNewestRuntime(t *testing.T) {
	bin, name := sleeperBinary(t)

	older := exec.Command(bin, "60")
	require.NoError(t, older.Start())
	exited := make(chan struct{})
	go func() {
		_ = older.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		_ = older.Process.Kill()
		<-exited
	})
	select {
	case <-exited:
		// Multi-call builds of sleep refuse to run under another name.
		t.Skip("sleep cannot run under a different name")
	case <-time.After(300 * time.Millisecond):
	}

	var buf bytes.Buffer
	s := New(progress.New(&buf), Options{
		HangMarker:   "Saving chunks for level",
		RuntimeName:  name,
		PollInterval: 20 * time.Millisecond,
	})
	script := fmt.Sprintf("%q 60 &\necho \"newer $!\"\nsleep 0.5\necho 'Saving chunks for level ServerLevel'\nwait $!\necho 'newer exited'", bin)
	cmd := writeScript(t, t.TempDir(), script)

	start := time.Now()
	acked, err := s.LaunchAndWaitForAck(context.Background(), cmd, "Done", "/ERROR", 20*time.Second)
	require.NoError(t, err)
	assert.False(t, acked)
	assert.Less(t, time.Since(start), 20*time.Second)
	assert.Contains(t, buf.String(), "newer exited")

	m := regexp.MustCompile(`newer (\d+)`).FindStringSubmatch(buf.String())
	require.Len(t, m, 2)
	newerPid, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	assert.NotEqual(t, older.Process.Pid, newerPid)

	running, err := process.PidExists(int32(newerPid))
	require.NoError(t, err)
	assert.False(t, running, "newest runtime process is killed")

	select {
	case <-exited:
		t.Fatal("older runtime process was killed")
	default:
	}
}

func TestKillNewestWithoutMatch(t *testing.T) {
	_, err := KillNewest(fmt.Sprintf("no-such-runtime-%d", os.Getpid()))
	assert.Error(t, err)
}

func TestLaunchBackgroundLifecycle(t *testing.T) {
	var buf bytes.Buffer
	s := newTestSupervisor(&buf)
	dir := t.TempDir()
	cmd := writeScript(t, dir, "echo 'Starting minecraft server'\necho 'Done (2.0s)!'\nsleep 60")

	pid, err := s.LaunchBackground(context.Background(), cmd, "Done", "/ERROR", 10*time.Second)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	sc, err := ReadSidecar(PidPath(cmd.Artifact))
	require.NoError(t, err)
	assert.Equal(t, pid, sc.PID)
	assert.NotZero(t, sc.CreateTime)

	logData, err := os.ReadFile(LogPath(cmd.Artifact))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "Done (2.0s)!")

	isAlive, alivePid := s.IsAlive(cmd)
	assert.True(t, isAlive)
	assert.Equal(t, pid, alivePid)

	assert.True(t, s.Kill(cmd))
	assert.NoFileExists(t, PidPath(cmd.Artifact))

	isAlive, _ = s.IsAlive(cmd)
	assert.False(t, isAlive)
	assert.False(t, s.Kill(cmd), "second kill finds nothing")
}

func TestLaunchBackgroundWithoutAck(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"exits", "echo 'Error: could not bind port'\nexit 1"},
		{"error marker", "echo 'Crash /ERROR'\nsleep 60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := newTestSupervisor(&buf)
			cmd := writeScript(t, t.TempDir(), tt.body)

			pid, err := s.LaunchBackground(context.Background(), cmd, "Done", "/ERROR", 10*time.Second)
			assert.Error(t, err)
			assert.Zero(t, pid)
			assert.NoFileExists(t, PidPath(cmd.Artifact))
			assert.FileExists(t, LogPath(cmd.Artifact))

			isAlive, _ := s.IsAlive(cmd)
			assert.False(t, isAlive)
		})
	}
}

func TestIsAliveFingerprint(t *testing.T) {
	s := New(nil, Options{})
	self := os.Getpid()

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"bare pid", strconv.Itoa(self), true},
		{"matching create time", "", true},
		{"recycled pid", `{"pid":` + strconv.Itoa(self) + `,"createTime":1}`, false},
		{"garbage", "not-a-pid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifact := filepath.Join(t.TempDir(), "server.jar")
			if tt.content == "" {
				require.NoError(t, WriteSidecar(PidPath(artifact), fingerprint(self, "test")))
			} else {
				require.NoError(t, os.WriteFile(PidPath(artifact), []byte(tt.content), 0644))
			}

			got, _ := s.IsAlive(Command{Artifact: artifact})
			assert.Equal(t, tt.want, got)
		})
	}

	got, pid := s.IsAlive(Command{Artifact: filepath.Join(t.TempDir(), "missing.jar")})
	assert.False(t, got)
	assert.Zero(t, pid)
}

func TestSidecarPaths(t *testing.T) {
	assert.Equal(t, "/srv/s1/run.pid", PidPath("/srv/s1/run.sh"))
	assert.Equal(t, "/srv/s1/minecraft_server_1.20.4.out", OutPath("/srv/s1/minecraft_server_1.20.4.jar"))
	assert.Equal(t, "/srv/s1/run.log", LogPath("/srv/s1/run.bat"))
}

func TestTailEmitsCompleteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.out")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := Tail(ctx, path, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("first\r\nsec")
	require.NoError(t, err)
	assert.Equal(t, "first", receive(t, lines))

	_, err = f.WriteString("ond\nthird\n")
	require.NoError(t, err)
	assert.Equal(t, "second", receive(t, lines))
	assert.Equal(t, "third", receive(t, lines))

	cancel()
	for range lines {
	}
}

func receive(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}
