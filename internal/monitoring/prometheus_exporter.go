package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/payperplay/easyservers/internal/fetch"
	"github.com/payperplay/easyservers/internal/lifecycle"
	"github.com/payperplay/easyservers/pkg/logger"
)

// ServerSource lists and inspects servers.
type ServerSource interface {
	List() ([]string, error)
	Inspect(ctx context.Context, name string) (lifecycle.Info, error)
	Dir(name string) string
}

// PrometheusExporter derives server gauges from disk, the process table and RCON
type PrometheusExporter struct {
	servers ServerSource
	known   map[string]bool
}

// NewPrometheusExporter creates a new Prometheus exporter
func NewPrometheusExporter(servers ServerSource) *PrometheusExporter {
	return &PrometheusExporter{servers: servers, known: map[string]bool{}}
}

// CollectMetrics refreshes every server gauge and the fleet totals
func (e *PrometheusExporter) CollectMetrics(ctx context.Context) error {
	names, err := e.servers.List()
	if err != nil {
		return fmt.Errorf("failed to list servers: %w", err)
	}

	var running, players int
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
		info, err := e.servers.Inspect(ctx, name)
		if err != nil {
			// Removed between List and Inspect
			continue
		}
		e.updateServerMetrics(info)
		if info.Status != lifecycle.None {
			running++
			players += info.Players
		}
	}

	for name := range e.known {
		if !seen[name] {
			ForgetServer(name)
		}
	}
	e.known = seen

	FleetTotalServers.Set(float64(len(names)))
	FleetRunningServers.Set(float64(running))
	FleetTotalPlayers.Set(float64(players))

	logger.Debug("Prometheus metrics collected", map[string]interface{}{
		"total_servers":   len(names),
		"running_servers": running,
		"total_players":   players,
	})
	return nil
}

func (e *PrometheusExporter) updateServerMetrics(info lifecycle.Info) {
	ServerStatus.WithLabelValues(info.Name).Set(StatusToFloat(string(info.Status)))
	ServerPlayerCount.WithLabelValues(info.Name).Set(float64(info.Players))
	if info.MaxPlayers > 0 {
		ServerPlayerLimit.WithLabelValues(info.Name).Set(float64(info.MaxPlayers))
	}

	if size, err := fetch.DirSize(e.servers.Dir(info.Name)); err == nil {
		ServerDiskUsageMB.WithLabelValues(info.Name).Set(float64(size) / 1024 / 1024)
	}

	if info.PID == 0 {
		ServerRAMUsageMB.WithLabelValues(info.Name).Set(0)
		ServerCPUPercent.WithLabelValues(info.Name).Set(0)
		return
	}
	rss, cpu := processStats(int32(info.PID))
	ServerRAMUsageMB.WithLabelValues(info.Name).Set(rss)
	ServerCPUPercent.WithLabelValues(info.Name).Set(cpu)
}

// processStats sums resident memory over the process tree, since a run script's shell
// is the recorded PID and the JVM is its child. CPU is taken from the busiest process.
func processStats(pid int32) (rssMB, cpuPercent float64) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, 0
	}
	tree := []*process.Process{p}
	for i := 0; i < len(tree); i++ {
		children, err := tree[i].Children()
		if err == nil {
			tree = append(tree, children...)
		}
	}

	for _, proc := range tree {
		if mem, err := proc.MemoryInfo(); err == nil {
			rssMB += float64(mem.RSS) / 1024 / 1024
		}
		if c, err := proc.CPUPercent(); err == nil && c > cpuPercent {
			cpuPercent = c
		}
	}
	return rssMB, cpuPercent
}

// StartMetricsCollector collects metrics every interval until ctx is done
func (e *PrometheusExporter) StartMetricsCollector(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := e.CollectMetrics(ctx); err != nil {
				logger.Error("Failed to collect Prometheus metrics", err, nil)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	logger.Info("Prometheus metrics collector started", map[string]interface{}{
		"interval": interval.String(),
	})
}
