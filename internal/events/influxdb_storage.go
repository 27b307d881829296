package events

import (
	"context"

	"github.com/payperplay/easyservers/internal/storage"
)

// InfluxDBEventStorage stores events in InfluxDB for time-series analytics
type InfluxDBEventStorage struct {
	client *storage.InfluxDBClient
}

// NewInfluxDBEventStorage creates a new InfluxDB event storage
func NewInfluxDBEventStorage(client *storage.InfluxDBClient) *InfluxDBEventStorage {
	return &InfluxDBEventStorage{client: client}
}

// Store saves an event to InfluxDB
func (s *InfluxDBEventStorage) Name() string { return "influxdb" }

func (s *InfluxDBEventStorage) Store(event Event) error {
	return s.client.WriteEvent(storage.EventData{
		ID:          event.ID,
		Type:        string(event.Type),
		Timestamp:   event.Timestamp,
		Source:      event.Source,
		OperationID: event.OperationID,
		Server:      event.Server,
		Config:      event.Config,
		Data:        event.Data,
	})
}

// Query retrieves events from InfluxDB based on filters
func (s *InfluxDBEventStorage) Query(filters EventFilters) ([]Event, error) {
	storageFilters := storage.EventFilters{
		Types:     make([]string, len(filters.Types)),
		Server:    filters.Server,
		Config:    filters.Config,
		StartTime: filters.StartTime,
		EndTime:   filters.EndTime,
		Limit:     filters.Limit,
	}
	for i, t := range filters.Types {
		storageFilters.Types[i] = string(t)
	}

	storageEvents, err := s.client.QueryEvents(context.Background(), storageFilters)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(storageEvents))
	for i, se := range storageEvents {
		events[i] = Event{
			ID:          se.ID,
			Type:        EventType(se.Type),
			Timestamp:   se.Timestamp,
			Source:      se.Source,
			OperationID: se.OperationID,
			Server:      se.Server,
			Config:      se.Config,
			Data:        se.Data,
		}
	}
	return events, nil
}
