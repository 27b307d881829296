package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the easyservers controller
var (
	// Operation metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easyservers_operations_total",
			Help: "Total number of operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easyservers_operation_duration_seconds",
			Help:    "Operation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	// Server status metrics
	ServerStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "easyservers_server_status",
			Help: "Server status (0=NONE, 1=PROCESS_RUNNING, 2=LISTENING)",
		},
		[]string{"server"},
	)

	ServerPlayerCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "easyservers_server_players",
			Help: "Current number of online players",
		},
		[]string{"server"},
	)

	ServerPlayerLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "easyservers_server_player_limit",
			Help: "Maximum number of players allowed",
		},
		[]string{"server"},
	)

	// Server resource metrics
	ServerRAMUsageMB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "easyservers_server_ram_mb",
			Help: "Resident memory of the server process tree in megabytes",
		},
		[]string{"server"},
	)

	ServerCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "easyservers_server_cpu_percent",
			Help: "CPU usage of the server process in percent",
		},
		[]string{"server"},
	)

	ServerDiskUsageMB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "easyservers_server_disk_mb",
			Help: "Disk usage of the server directory in megabytes",
		},
		[]string{"server"},
	)

	// Fleet-wide metrics
	FleetTotalServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "easyservers_fleet_total_servers",
			Help: "Total number of servers",
		},
	)

	FleetRunningServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "easyservers_fleet_running_servers",
			Help: "Number of servers with a live process",
		},
	)

	FleetTotalPlayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "easyservers_fleet_total_players",
			Help: "Total number of players across all servers",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "easyservers_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "easyservers_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// StatusToFloat converts a server status to its gauge value
func StatusToFloat(status string) float64 {
	switch status {
	case "NONE":
		return 0
	case "PROCESS_RUNNING":
		return 1
	case "LISTENING":
		return 2
	default:
		return -1
	}
}

// RecordOperation counts an operation and records its duration
func RecordOperation(kind string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	OperationsTotal.WithLabelValues(kind, outcome).Inc()
	OperationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAPIRequest increments the API request counter and records duration
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// ForgetServer drops the series of a removed server
func ForgetServer(server string) {
	for _, g := range []*prometheus.GaugeVec{
		ServerStatus, ServerPlayerCount, ServerPlayerLimit,
		ServerRAMUsageMB, ServerCPUPercent, ServerDiskUsageMB,
	} {
		g.DeleteLabelValues(server)
	}
}
