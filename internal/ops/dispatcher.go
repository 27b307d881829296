package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/events"
	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/lifecycle"
	"github.com/payperplay/easyservers/internal/monitoring"
	"github.com/payperplay/easyservers/pkg/logger"
)

// ConfigService is the configuration and asset half of the core.
type ConfigService interface {
	CreateConfig(ctx context.Context, name, modLoader, version string) error
	RemoveConfig(name string) error
	List() ([]string, error)
	Read(name string) (*assets.Descriptor, error)
	AddAsset(ctx context.Context, req assets.AddAssetRequest) error
	RemoveAsset(config string, c assets.Collection, name string) error
	ListAssets(config string, c assets.Collection) ([]assets.Asset, error)
}

// ServerService is the server half of the core.
type ServerService interface {
	Create(ctx context.Context, name, config string) error
	Up(ctx context.Context, name string, port int) (int, error)
	Down(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	Inspect(ctx context.Context, name string) (lifecycle.Info, error)
	List() ([]string, error)
	SetProperty(name, key, value string) error
	SetWorld(ctx context.Context, name, link string) error
	SetResourcePack(ctx context.Context, name, link string) error
	SendCommand(ctx context.Context, name, command string) (string, error)
	ListServerAssets(name string) ([]lifecycle.ServerAsset, error)
	RemoveServerAsset(ctx context.Context, name string, c assets.Collection, asset string) error
}

// Result is what a successful operation returns to the front-end.
type Result struct {
	Kind    Kind        `json:"kind"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ConfigView is a descriptor together with its name.
type ConfigView struct {
	Name string `json:"name"`
	*assets.Descriptor
}

// Dispatcher routes requests to the core, records metrics and publishes events.
type Dispatcher struct {
	configs ConfigService
	servers ServerService
	bus     *events.EventBus
	source  string
}

// NewDispatcher creates a dispatcher. source tags every event ("cli", "api").
func NewDispatcher(configs ConfigService, servers ServerService, bus *events.EventBus, source string) *Dispatcher {
	if bus == nil {
		bus = events.GetEventBus()
	}
	return &Dispatcher{configs: configs, servers: servers, bus: bus, source: source}
}

// Execute validates and runs one request.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (Result, error) {
	if req == nil {
		return Result{}, failure.Preconditionf("", "No operation given.")
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	origin := events.Origin{OperationID: uuid.New().String(), Source: d.source}
	server, config := targets(req)
	start := time.Now()

	logger.Info("Operation started", map[string]interface{}{
		"operation_id": origin.OperationID,
		"kind":         req.Kind(),
		"server":       server,
		"config":       config,
	})

	res, err := d.run(ctx, origin, req)
	elapsed := time.Since(start)
	monitoring.RecordOperation(string(req.Kind()), err, elapsed)

	if err != nil {
		kind := failure.KindOf(err)
		logger.Warn("Operation failed", map[string]interface{}{
			"operation_id": origin.OperationID,
			"kind":         req.Kind(),
			"failure":      kind.String(),
			"error":        err.Error(),
			"duration_ms":  elapsed.Milliseconds(),
		})
		d.bus.PublishOperationFailed(origin, string(req.Kind()), server, config, elapsed, kind.String(), err)
		return Result{}, err
	}

	logger.Info("Operation succeeded", map[string]interface{}{
		"operation_id": origin.OperationID,
		"kind":         req.Kind(),
		"duration_ms":  elapsed.Milliseconds(),
	})
	d.bus.PublishOperationSucceeded(origin, string(req.Kind()), server, config, elapsed)
	res.Kind = req.Kind()
	return res, nil
}

func (d *Dispatcher) run(ctx context.Context, o events.Origin, req Request) (Result, error) {
	switch r := req.(type) {
	case CreateConfig:
		if err := d.configs.CreateConfig(ctx, r.Name, r.ModLoader, r.Version); err != nil {
			return Result{}, err
		}
		d.bus.PublishConfigCreated(o, r.Name, r.ModLoader, r.Version)
		return Result{Message: fmt.Sprintf("Config %s created.", r.Name)}, nil

	case RemoveConfig:
		if err := d.configs.RemoveConfig(r.Name); err != nil {
			return Result{}, err
		}
		d.bus.PublishConfigRemoved(o, r.Name)
		return Result{Message: fmt.Sprintf("Config %s removed.", r.Name)}, nil

	case ListConfigs:
		names, err := d.configs.List()
		if err != nil {
			return Result{}, err
		}
		return Result{Data: names}, nil

	case ShowConfig:
		desc, err := d.configs.Read(r.Name)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: ConfigView{Name: r.Name, Descriptor: desc}}, nil

	case AddAsset:
		c, _ := assets.ParseCollection(r.Collection)
		side, _ := assets.ParseSide(r.Side)
		if c != assets.Mods {
			side = ""
		}
		err := d.configs.AddAsset(ctx, assets.AddAssetRequest{
			Config:        r.Config,
			Collection:    c,
			Name:          r.Name,
			Link:          r.Link,
			ServerDefault: r.ServerDefault,
			Side:          side,
		})
		if err != nil {
			return Result{}, err
		}
		d.bus.PublishAssetAdded(o, r.Config, string(c), r.Name, r.ServerDefault)
		return Result{Message: fmt.Sprintf("Asset %s added to %s of config %s.", r.Name, c, r.Config)}, nil

	case RemoveAsset:
		c, _ := assets.ParseCollection(r.Collection)
		if err := d.configs.RemoveAsset(r.Config, c, r.Name); err != nil {
			return Result{}, err
		}
		d.bus.PublishAssetRemoved(o, r.Config, string(c), r.Name)
		return Result{Message: fmt.Sprintf("Asset %s removed from %s of config %s.", r.Name, c, r.Config)}, nil

	case ListAssets:
		c, _ := assets.ParseCollection(r.Collection)
		list, err := d.configs.ListAssets(r.Config, c)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: list}, nil

	case CreateServer:
		if err := d.servers.Create(ctx, r.Name, r.Config); err != nil {
			return Result{}, err
		}
		d.bus.PublishServerCreated(o, r.Name, r.Config)
		return Result{Message: fmt.Sprintf("Server %s created from config %s.", r.Name, r.Config)}, nil

	case UpServer:
		pid, err := d.servers.Up(ctx, r.Name, r.Port)
		if err != nil {
			return Result{}, err
		}
		d.bus.PublishServerStarted(o, r.Name, pid, r.Port)
		return Result{
			Message: fmt.Sprintf("Server %s is up on port %d.", r.Name, r.Port),
			Data:    map[string]int{"pid": pid, "port": r.Port},
		}, nil

	case DownServer:
		if err := d.servers.Down(ctx, r.Name); err != nil {
			return Result{}, err
		}
		d.bus.PublishServerStopped(o, r.Name)
		return Result{}, nil

	case RemoveServer:
		if err := d.servers.Remove(ctx, r.Name); err != nil {
			return Result{}, err
		}
		monitoring.ForgetServer(r.Name)
		d.bus.PublishServerRemoved(o, r.Name)
		return Result{}, nil

	case ServerStatus:
		info, err := d.servers.Inspect(ctx, r.Name)
		if failure.Is(err, failure.Precondition) {
			// Status is total: an absent server is simply not running.
			info, err = lifecycle.Info{Name: r.Name, Status: lifecycle.None}, nil
		}
		if err != nil {
			return Result{}, err
		}
		return Result{Message: string(info.Status), Data: info}, nil

	case ListServers:
		names, err := d.servers.List()
		if err != nil {
			return Result{}, err
		}
		infos := make([]lifecycle.Info, 0, len(names))
		for _, name := range names {
			info, err := d.servers.Inspect(ctx, name)
			if err != nil {
				continue
			}
			infos = append(infos, info)
		}
		return Result{Data: infos}, nil

	case SetServerProperty:
		if err := d.servers.SetProperty(r.Name, r.Key, r.Value); err != nil {
			return Result{}, err
		}
		d.bus.PublishServerChanged(o, r.Name, "property "+r.Key)
		return Result{Message: fmt.Sprintf("Property %s of server %s set to %q.", r.Key, r.Name, r.Value)}, nil

	case SetServerWorld:
		if err := d.servers.SetWorld(ctx, r.Name, r.Link); err != nil {
			return Result{}, err
		}
		d.bus.PublishServerChanged(o, r.Name, "world")
		return Result{}, nil

	case SetServerResourcePack:
		if err := d.servers.SetResourcePack(ctx, r.Name, r.Link); err != nil {
			return Result{}, err
		}
		d.bus.PublishServerChanged(o, r.Name, "resource pack")
		return Result{}, nil

	case SendCommand:
		reply, err := d.servers.SendCommand(ctx, r.Name, r.Command)
		if err != nil {
			return Result{}, err
		}
		return Result{Message: reply, Data: map[string]string{"reply": reply}}, nil

	case ListServerAssets:
		list, err := d.servers.ListServerAssets(r.Name)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: list}, nil

	case RemoveServerAsset:
		c, _ := assets.ParseCollection(r.Collection)
		if err := d.servers.RemoveServerAsset(ctx, r.Name, c, r.Asset); err != nil {
			return Result{}, err
		}
		d.bus.PublishServerChanged(o, r.Name, fmt.Sprintf("removed %s %s", c, r.Asset))
		return Result{}, nil
	}
	return Result{}, fmt.Errorf("unhandled operation %s", req.Kind())
}

// targets extracts the server and config a request acts on, for logs and events.
func targets(req Request) (server, config string) {
	switch r := req.(type) {
	case CreateConfig:
		return "", r.Name
	case RemoveConfig:
		return "", r.Name
	case ShowConfig:
		return "", r.Name
	case AddAsset:
		return "", r.Config
	case RemoveAsset:
		return "", r.Config
	case ListAssets:
		return "", r.Config
	case CreateServer:
		return r.Name, r.Config
	case UpServer:
		return r.Name, ""
	case DownServer:
		return r.Name, ""
	case RemoveServer:
		return r.Name, ""
	case ServerStatus:
		return r.Name, ""
	case SetServerProperty:
		return r.Name, ""
	case SetServerWorld:
		return r.Name, ""
	case SetServerResourcePack:
		return r.Name, ""
	case SendCommand:
		return r.Name, ""
	case ListServerAssets:
		return r.Name, ""
	case RemoveServerAsset:
		return r.Name, ""
	}
	return "", ""
}
