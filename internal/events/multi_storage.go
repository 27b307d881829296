package events

import (
	"errors"
	"fmt"

	"github.com/payperplay/easyservers/pkg/logger"
)

// MultiEventStorage keeps the event history in several backends. The first backend is
// the history of record; the others are mirrors and the fallbacks for queries.
type MultiEventStorage struct {
	backends []EventStorage
}

// NewMultiEventStorage combines backends in priority order.
func NewMultiEventStorage(backends ...EventStorage) *MultiEventStorage {
	return &MultiEventStorage{backends: backends}
}

// backendName labels a backend in logs and errors.
func backendName(i int, s EventStorage) string {
	if named, ok := s.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("backend-%d", i)
}

// Store writes the event everywhere. An operation's event counts as recorded when at
// least one backend kept it, so a lagging mirror never fails the operation that
// published it; the failure is logged with the backend and the operation.
func (s *MultiEventStorage) Store(event Event) error {
	var errs []error
	for i, backend := range s.backends {
		if err := backend.Store(event); err != nil {
			name := backendName(i, backend)
			logger.Error("Failed to record event", err, map[string]interface{}{
				"backend":      name,
				"event_id":     event.ID,
				"event_type":   string(event.Type),
				"operation_id": event.OperationID,
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) == len(s.backends) {
		return errors.Join(errs...)
	}
	return nil
}

// Query answers from the first backend that can, in priority order.
func (s *MultiEventStorage) Query(filters EventFilters) ([]Event, error) {
	var errs []error
	for i, backend := range s.backends {
		name := backendName(i, backend)
		events, err := backend.Query(filters)
		if err != nil {
			logger.Warn("Event history unavailable from backend", map[string]interface{}{
				"backend": name,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if i > 0 {
			logger.Info("Event history served by fallback backend", map[string]interface{}{
				"backend": name,
				"events":  len(events),
			})
		}
		return events, nil
	}
	return nil, errors.Join(errs...)
}
