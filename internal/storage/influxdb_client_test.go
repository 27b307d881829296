package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildFluxQuery(t *testing.T) {
	c := &InfluxDBClient{bucket: "events"}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filters  EventFilters
		contains []string
		absent   []string
	}{
		{
			name:    "defaults",
			filters: EventFilters{},
			contains: []string{
				`from(bucket: "events")`,
				"range(start: -24h)",
				`r._measurement == "controller_event"`,
				`sort(columns: ["_time"], desc: true)`,
			},
			absent: []string{"limit(", "r.server"},
		},
		{
			name: "every filter",
			filters: EventFilters{
				Types:     []string{"server.started", "server.stopped"},
				Server:    "s1",
				Config:    "c1",
				StartTime: start,
				EndTime:   start.Add(time.Hour),
				Limit:     10,
			},
			contains: []string{
				"range(start: 2026-03-01T00:00:00Z, stop: 2026-03-01T01:00:00Z)",
				`r.event_type == "server.started" or r.event_type == "server.stopped"`,
				`r.server == "s1"`,
				`r.config == "c1"`,
				"limit(n: 10)",
			},
		},
		{
			name:     "quotes are escaped",
			filters:  EventFilters{Server: `x") or (r.server != "`},
			contains: []string{`r.server == "x\") or (r.server != \""`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := c.buildFluxQuery(tt.filters)
			for _, s := range tt.contains {
				assert.Contains(t, q, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, q, s)
			}
		})
	}
}
