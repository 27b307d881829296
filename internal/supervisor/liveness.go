package supervisor

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/payperplay/easyservers/pkg/logger"
)

// IsAlive reports whether the process recorded for cmd's artifact is running.
// The PID is returned whenever a sidecar was readable.
func (s *Supervisor) IsAlive(cmd Command) (bool, int) {
	sc, err := ReadSidecar(PidPath(cmd.Artifact))
	if err != nil {
		return false, 0
	}
	return alive(sc), sc.PID
}

func alive(sc Sidecar) bool {
	exists, err := process.PidExists(int32(sc.PID))
	if err != nil || !exists {
		return false
	}

	p, err := process.NewProcess(int32(sc.PID))
	if err != nil {
		return false
	}

	if status, err := p.Status(); err == nil {
		for _, st := range status {
			if st == process.Zombie {
				return false
			}
		}
	}

	if sc.CreateTime != 0 {
		ct, err := p.CreateTime()
		if err != nil || ct != sc.CreateTime {
			logger.Debug("Sidecar PID belongs to another process", map[string]interface{}{
				"pid":         sc.PID,
				"recorded":    sc.CreateTime,
				"create_time": ct,
			})
			return false
		}
	}

	return true
}

// Kill force-kills the process recorded for cmd's artifact and its descendants, then
// removes the sidecar. It returns false when no live process was found.
func (s *Supervisor) Kill(cmd Command) bool {
	isAlive, pid := s.IsAlive(cmd)
	if !isAlive {
		return false
	}

	if err := killTree(pid); err != nil {
		logger.Warn("Failed to kill process tree", map[string]interface{}{
			"pid":   pid,
			"error": err.Error(),
		})
	}

	if err := RemoveSidecar(PidPath(cmd.Artifact)); err != nil {
		logger.Warn("Failed to remove sidecar", map[string]interface{}{
			"artifact": cmd.Artifact,
			"error":    err.Error(),
		})
	}

	logger.Info("Process killed", map[string]interface{}{
		"pid":      pid,
		"artifact": cmd.Artifact,
	})
	return true
}

// killTree kills pid's process group where the platform has one, then every descendant
// still found in the process table, deepest first.
func killTree(pid int) error {
	_ = killGroup(pid)

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		// Already gone.
		return nil
	}

	var tree []*process.Process
	collect(p, &tree)

	var firstErr error
	for i := len(tree) - 1; i >= 0; i-- {
		if err := tree[i].Kill(); err != nil && firstErr == nil {
			if exists, _ := process.PidExists(tree[i].Pid); exists {
				firstErr = fmt.Errorf("kill %d: %w", tree[i].Pid, err)
			}
		}
	}
	return firstErr
}

func collect(p *process.Process, tree *[]*process.Process) {
	*tree = append(*tree, p)
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		collect(child, tree)
	}
}

// KillNewest force-kills the most recently started process whose name contains name.
func KillNewest(name string) (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, err
	}

	var newest *process.Process
	var newestTime int64
	for _, p := range procs {
		n, err := p.Name()
		if err != nil || !containsFold(n, name) {
			continue
		}
		ct, err := p.CreateTime()
		if err != nil {
			continue
		}
		if newest == nil || ct > newestTime {
			newest, newestTime = p, ct
		}
	}

	if newest == nil {
		return 0, fmt.Errorf("no %s process found", name)
	}
	if err := newest.Kill(); err != nil {
		return 0, err
	}
	return int(newest.Pid), nil
}
