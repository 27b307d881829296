package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payperplay/easyservers/pkg/logger"
)

// EventType represents the type of event
type EventType string

const (
	// Operation events
	EventOperationSucceeded EventType = "operation.succeeded"
	EventOperationFailed    EventType = "operation.failed"

	// Config events
	EventConfigCreated EventType = "config.created"
	EventConfigRemoved EventType = "config.removed"
	EventAssetAdded    EventType = "asset.added"
	EventAssetRemoved  EventType = "asset.removed"

	// Server lifecycle events
	EventServerCreated EventType = "server.created"
	EventServerStarted EventType = "server.started"
	EventServerStopped EventType = "server.stopped"
	EventServerRemoved EventType = "server.removed"
	EventServerChanged EventType = "server.changed"
)

// Event represents something the controller did
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	Source      string                 `json:"source"` // e.g. "cli", "api"
	OperationID string                 `json:"operation_id,omitempty"`
	Server      string                 `json:"server,omitempty"`
	Config      string                 `json:"config,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// EventStorage defines the interface for storing events
type EventStorage interface {
	Store(event Event) error
	Query(filters EventFilters) ([]Event, error)
}

// EventFilters for querying events
type EventFilters struct {
	Types     []EventType
	Server    string
	Config    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Matches reports whether e passes every set filter.
func (f EventFilters) Matches(e Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Server != "" && f.Server != e.Server {
		return false
	}
	if f.Config != "" && f.Config != e.Config {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

// EventBus manages event publishing and subscription
type EventBus struct {
	subscribers map[EventType][]EventHandler
	all         map[int]EventHandler
	nextID      int
	mu          sync.RWMutex
	storage     EventStorage
}

var (
	globalBus     *EventBus
	globalBusOnce sync.Once
)

// GetEventBus returns the global event bus instance (singleton)
func GetEventBus() *EventBus {
	globalBusOnce.Do(func() {
		globalBus = NewEventBus(nil)
	})
	return globalBus
}

// SetEventStorage sets the storage backend of the global bus
func SetEventStorage(storage EventStorage) {
	GetEventBus().SetStorage(storage)
}

// NewEventBus creates a new event bus
func NewEventBus(storage EventStorage) *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]EventHandler),
		all:         make(map[int]EventHandler),
		storage:     storage,
	}
}

// SetStorage replaces the storage backend.
func (eb *EventBus) SetStorage(storage EventStorage) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.storage = storage
}

// HasStorage reports whether published events are persisted.
func (eb *EventBus) HasStorage() bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.storage != nil
}

// Subscribe registers a handler for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], handler)
	logger.Debug("Event handler subscribed", map[string]interface{}{
		"event_type": eventType,
	})
}

// SubscribeAll registers a handler for every event until the returned func is called.
func (eb *EventBus) SubscribeAll(handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	eb.all[id] = handler
	eb.mu.Unlock()

	return func() {
		eb.mu.Lock()
		delete(eb.all, id)
		eb.mu.Unlock()
	}
}

// Publish stores an event and notifies subscribers
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Data == nil {
		event.Data = map[string]interface{}{}
	}

	eb.mu.RLock()
	storage := eb.storage
	handlers := append([]EventHandler(nil), eb.subscribers[event.Type]...)
	for _, h := range eb.all {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	if storage != nil {
		if err := storage.Store(event); err != nil {
			logger.Error("Failed to store event", err, map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
			})
		}
	}

	for _, handler := range handlers {
		// Run handlers in goroutines to avoid blocking
		go func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Event handler panicked", nil, map[string]interface{}{
						"event_type": event.Type,
						"panic":      r,
					})
				}
			}()
			h(event)
		}(handler)
	}

	logger.Debug("Event published", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"source":     event.Source,
	})
}

// Query retrieves events based on filters
func (eb *EventBus) Query(filters EventFilters) ([]Event, error) {
	eb.mu.RLock()
	storage := eb.storage
	eb.mu.RUnlock()

	if storage == nil {
		return nil, nil
	}
	return storage.Query(filters)
}
