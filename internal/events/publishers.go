package events

import "time"

// Origin identifies the operation an event came from
type Origin struct {
	OperationID string
	Source      string
}

func (o Origin) event(t EventType, data map[string]interface{}) Event {
	return Event{Type: t, Source: o.Source, OperationID: o.OperationID, Data: data}
}

// PublishOperationSucceeded publishes the outcome of a successful operation
func (eb *EventBus) PublishOperationSucceeded(o Origin, kind, server, config string, duration time.Duration) {
	e := o.event(EventOperationSucceeded, map[string]interface{}{
		"kind":        kind,
		"duration_ms": duration.Milliseconds(),
	})
	e.Server, e.Config = server, config
	eb.Publish(e)
}

// PublishOperationFailed publishes the outcome of a failed operation
func (eb *EventBus) PublishOperationFailed(o Origin, kind, server, config string, duration time.Duration, failureKind string, err error) {
	e := o.event(EventOperationFailed, map[string]interface{}{
		"kind":         kind,
		"duration_ms":  duration.Milliseconds(),
		"failure_kind": failureKind,
		"error":        err.Error(),
	})
	e.Server, e.Config = server, config
	eb.Publish(e)
}

// PublishConfigCreated publishes a config created event
func (eb *EventBus) PublishConfigCreated(o Origin, config, modLoader, version string) {
	e := o.event(EventConfigCreated, map[string]interface{}{
		"mod_loader": modLoader,
		"version":    version,
	})
	e.Config = config
	eb.Publish(e)
}

// PublishConfigRemoved publishes a config removed event
func (eb *EventBus) PublishConfigRemoved(o Origin, config string) {
	e := o.event(EventConfigRemoved, nil)
	e.Config = config
	eb.Publish(e)
}

// PublishAssetAdded publishes an asset added event
func (eb *EventBus) PublishAssetAdded(o Origin, config, collection, name string, serverDefault bool) {
	e := o.event(EventAssetAdded, map[string]interface{}{
		"collection":     collection,
		"asset":          name,
		"server_default": serverDefault,
	})
	e.Config = config
	eb.Publish(e)
}

// PublishAssetRemoved publishes an asset removed event
func (eb *EventBus) PublishAssetRemoved(o Origin, config, collection, name string) {
	e := o.event(EventAssetRemoved, map[string]interface{}{
		"collection": collection,
		"asset":      name,
	})
	e.Config = config
	eb.Publish(e)
}

// PublishServerCreated publishes a server created event
func (eb *EventBus) PublishServerCreated(o Origin, server, config string) {
	e := o.event(EventServerCreated, nil)
	e.Server, e.Config = server, config
	eb.Publish(e)
}

// PublishServerStarted publishes a server started event
func (eb *EventBus) PublishServerStarted(o Origin, server string, pid, port int) {
	e := o.event(EventServerStarted, map[string]interface{}{
		"pid":  pid,
		"port": port,
	})
	e.Server = server
	eb.Publish(e)
}

// PublishServerStopped publishes a server stopped event
func (eb *EventBus) PublishServerStopped(o Origin, server string) {
	e := o.event(EventServerStopped, nil)
	e.Server = server
	eb.Publish(e)
}

// PublishServerRemoved publishes a server removed event
func (eb *EventBus) PublishServerRemoved(o Origin, server string) {
	e := o.event(EventServerRemoved, nil)
	e.Server = server
	eb.Publish(e)
}

// PublishServerChanged publishes a change to a server's files or properties
func (eb *EventBus) PublishServerChanged(o Origin, server, change string) {
	e := o.event(EventServerChanged, map[string]interface{}{
		"change": change,
	})
	e.Server = server
	eb.Publish(e)
}
