package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/payperplay/easyservers/pkg/logger"
)

const measurement = "controller_event"

// EventData is a generic event structure that doesn't depend on internal/events
type EventData struct {
	ID          string
	Type        string
	Timestamp   time.Time
	Source      string
	OperationID string
	Server      string
	Config      string
	Data        map[string]interface{}
}

// EventFilters for querying events
type EventFilters struct {
	Types     []string
	Server    string
	Config    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// InfluxDBClient manages connection to InfluxDB for time-series event storage
type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	org      string
	bucket   string
}

// InfluxDBConfig holds InfluxDB connection configuration
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInfluxDBClient creates a new InfluxDB client and checks the server is healthy
func NewInfluxDBClient(config InfluxDBConfig) (*InfluxDBClient, error) {
	client := influxdb2.NewClient(config.URL, config.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	logger.Info("InfluxDB connection established", map[string]interface{}{
		"url":    config.URL,
		"org":    config.Org,
		"bucket": config.Bucket,
	})

	writeAPI := client.WriteAPI(config.Org, config.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("InfluxDB write failed", err, nil)
		}
	}()

	return &InfluxDBClient{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: client.QueryAPI(config.Org),
		org:      config.Org,
		bucket:   config.Bucket,
	}, nil
}

// WriteEvent writes an event as a point. Identity and targets are tags; the event ID and
// data are fields, so a point always carries at least one field.
func (c *InfluxDBClient) WriteEvent(event EventData) error {
	fields := make(map[string]interface{}, len(event.Data)+1)
	for k, v := range event.Data {
		fields[k] = v
	}
	fields["event_id"] = event.ID

	p := influxdb2.NewPoint(
		measurement,
		map[string]string{
			"event_type":   event.Type,
			"source":       event.Source,
			"operation_id": event.OperationID,
			"server":       event.Server,
			"config":       event.Config,
		},
		fields,
		event.Timestamp,
	)

	// Non-blocking; failures surface on the Errors channel
	c.writeAPI.WritePoint(p)
	return nil
}

// Flush ensures all pending writes are sent to InfluxDB
func (c *InfluxDBClient) Flush() {
	c.writeAPI.Flush()
}

// QueryEvents queries events from InfluxDB with filters, newest first
func (c *InfluxDBClient) QueryEvents(ctx context.Context, filters EventFilters) ([]EventData, error) {
	result, err := c.queryAPI.Query(ctx, c.buildFluxQuery(filters))
	if err != nil {
		return nil, fmt.Errorf("failed to query InfluxDB: %w", err)
	}

	var eventsList []EventData
	for result.Next() {
		record := result.Record()

		event := EventData{
			ID:          stringValue(record.ValueByKey("event_id")),
			Type:        stringValue(record.ValueByKey("event_type")),
			Timestamp:   record.Time(),
			Source:      stringValue(record.ValueByKey("source")),
			OperationID: stringValue(record.ValueByKey("operation_id")),
			Server:      stringValue(record.ValueByKey("server")),
			Config:      stringValue(record.ValueByKey("config")),
			Data:        make(map[string]interface{}),
		}

		for k, v := range record.Values() {
			if strings.HasPrefix(k, "_") || k == "result" || k == "table" || isTag(k) || k == "event_id" {
				continue
			}
			event.Data[k] = v
		}

		eventsList = append(eventsList, event)
		if filters.Limit > 0 && len(eventsList) >= filters.Limit {
			break
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}
	return eventsList, nil
}

func isTag(k string) bool {
	switch k {
	case "event_type", "source", "operation_id", "server", "config":
		return true
	}
	return false
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// buildFluxQuery builds a Flux query from filters
func (c *InfluxDBClient) buildFluxQuery(filters EventFilters) string {
	var q strings.Builder
	fmt.Fprintf(&q, `from(bucket: %q)`, c.bucket)

	if !filters.StartTime.IsZero() {
		fmt.Fprintf(&q, "\n  |> range(start: %s", filters.StartTime.Format(time.RFC3339))
		if !filters.EndTime.IsZero() {
			fmt.Fprintf(&q, ", stop: %s", filters.EndTime.Format(time.RFC3339))
		}
		q.WriteString(")")
	} else {
		// Default to last 24 hours
		q.WriteString("\n  |> range(start: -24h)")
	}

	fmt.Fprintf(&q, "\n  |> filter(fn: (r) => r._measurement == %q)", measurement)

	if len(filters.Types) > 0 {
		conds := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			conds[i] = fmt.Sprintf("r.event_type == %q", t)
		}
		fmt.Fprintf(&q, "\n  |> filter(fn: (r) => %s)", strings.Join(conds, " or "))
	}
	if filters.Server != "" {
		fmt.Fprintf(&q, "\n  |> filter(fn: (r) => r.server == %q)", filters.Server)
	}
	if filters.Config != "" {
		fmt.Fprintf(&q, "\n  |> filter(fn: (r) => r.config == %q)", filters.Config)
	}

	// One row per event instead of one per field
	q.WriteString("\n  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")")
	q.WriteString("\n  |> group()")
	q.WriteString("\n  |> sort(columns: [\"_time\"], desc: true)")

	if filters.Limit > 0 {
		fmt.Fprintf(&q, "\n  |> limit(n: %d)", filters.Limit)
	}
	return q.String()
}

// Close flushes pending writes and closes the client
func (c *InfluxDBClient) Close() {
	c.writeAPI.Flush()
	c.client.Close()
	logger.Info("InfluxDB client closed", nil)
}
