package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Sidecar is the identity of a background process as recorded on disk.
type Sidecar struct {
	PID        int    `json:"pid"`
	CreateTime int64  `json:"createTime,omitempty"` // ms since epoch, 0 when unknown
	Cmdline    string `json:"cmdline,omitempty"`
}

// ReadSidecar parses a sidecar file. A file holding a bare PID is accepted.
func ReadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sidecar{}, err
	}

	content := strings.TrimSpace(string(data))
	if strings.HasPrefix(content, "{") {
		var sc Sidecar
		if err := json.Unmarshal([]byte(content), &sc); err != nil {
			return Sidecar{}, fmt.Errorf("invalid sidecar %s: %w", path, err)
		}
		if sc.PID <= 0 {
			return Sidecar{}, fmt.Errorf("invalid sidecar %s: missing pid", path)
		}
		return sc, nil
	}

	pid, err := strconv.Atoi(content)
	if err != nil || pid <= 0 {
		return Sidecar{}, fmt.Errorf("invalid sidecar %s: %q", path, content)
	}
	return Sidecar{PID: pid}, nil
}

// WriteSidecar stores sc at path.
func WriteSidecar(path string, sc Sidecar) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RemoveSidecar deletes the sidecar, ignoring a missing file.
func RemoveSidecar(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// fingerprint captures the process start time so a recycled PID is not mistaken for
// the original process.
func fingerprint(pid int, cmdline string) Sidecar {
	sc := Sidecar{PID: pid, Cmdline: cmdline}
	if p, err := process.NewProcess(int32(pid)); err == nil {
		if ct, err := p.CreateTime(); err == nil {
			sc.CreateTime = ct
		}
	}
	return sc
}
