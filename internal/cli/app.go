// Package cli wires the core to its front-ends: the cobra command tree and the HTTP
// server started by "serve".
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/events"
	"github.com/payperplay/easyservers/internal/fetch"
	"github.com/payperplay/easyservers/internal/lifecycle"
	"github.com/payperplay/easyservers/internal/ops"
	"github.com/payperplay/easyservers/internal/progress"
	"github.com/payperplay/easyservers/internal/rcon"
	"github.com/payperplay/easyservers/internal/storage"
	"github.com/payperplay/easyservers/internal/supervisor"
	"github.com/payperplay/easyservers/pkg/config"
	"github.com/payperplay/easyservers/pkg/logger"
)

// Executor runs one operation.
type Executor interface {
	Execute(ctx context.Context, req ops.Request) (ops.Result, error)
}

// App is a fully wired controller.
type App struct {
	Config  *config.Config
	Out     *progress.Sink
	Configs *assets.Manager
	Servers *lifecycle.Manager
	Bus     *events.EventBus
	Exec    Executor

	closers []func()
}

// NewApp builds the controller from cfg. Progress lines go to out; source tags events.
func NewApp(cfg *config.Config, out io.Writer, source string) (*App, error) {
	for _, dir := range []string{cfg.ServersPath, cfg.ConfigsPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	sink := progress.New(out)
	client := fetch.NewClient(sources, cfg.HTTPClientTimeout, sink)
	sup := supervisor.New(sink, supervisor.Options{
		HangMarker:   cfg.HangMarker,
		PollInterval: cfg.TailPollInterval,
	})
	prober := rcon.NewProber("", cfg.RCONTimeout)

	configs := assets.NewManager(assets.Layout{Root: cfg.ConfigsPath}, client, sup, assets.Options{
		JavaHome:               cfg.JavaHome,
		InstallerSuccessMarker: cfg.InstallerSuccessMarker,
		InstallerTimeout:       cfg.InstallerTimeout,
	}, sink)

	servers := lifecycle.NewManager(lifecycle.Options{
		Root:             cfg.ServersPath,
		JavaHome:         cfg.JavaHome,
		Xmx:              cfg.JavaXmx,
		Xms:              cfg.JavaXms,
		ReadyMarker:      cfg.ReadyMarker,
		ErrorMarker:      cfg.ErrorMarker,
		BootstrapTimeout: cfg.BootstrapTimeout,
		LaunchTimeout:    cfg.LaunchTimeout,
		StopGracePeriod:  cfg.StopGracePeriod,
		PollInterval:     cfg.TailPollInterval,
		RCONPortOffset:   cfg.RCONPortOffset,
		RCONPassword:     cfg.RCONPassword,
	}, configs, sup, prober, client, sink)

	app := &App{
		Config:  cfg,
		Out:     sink,
		Configs: configs,
		Servers: servers,
	}

	eventStorage, err := app.openEventStorage()
	if err != nil {
		return nil, err
	}
	app.Bus = events.NewEventBus(eventStorage)
	app.Exec = ops.NewDispatcher(configs, servers, app.Bus, source)
	return app, nil
}

// openEventStorage writes history to the events file, mirrored to InfluxDB when it is
// configured and reachable.
func (a *App) openEventStorage() (events.EventStorage, error) {
	cfg := a.Config
	if cfg.EventsFile == "" && cfg.InfluxDBURL == "" {
		return nil, nil
	}

	var backends []events.EventStorage
	if cfg.EventsFile != "" {
		file, err := events.NewFileEventStorage(cfg.EventsFile)
		if err != nil {
			return nil, err
		}
		backends = append(backends, file)
	}

	if cfg.InfluxDBURL != "" && cfg.InfluxDBToken != "" {
		influxClient, err := storage.NewInfluxDBClient(storage.InfluxDBConfig{
			URL:    cfg.InfluxDBURL,
			Token:  cfg.InfluxDBToken,
			Org:    cfg.InfluxDBOrg,
			Bucket: cfg.InfluxDBBucket,
		})
		if err != nil {
			logger.Warn("Failed to initialize InfluxDB, keeping file-only event history", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			a.closers = append(a.closers, influxClient.Close)
			backends = append(backends, events.NewInfluxDBEventStorage(influxClient))
		}
	}

	switch len(backends) {
	case 0:
		return nil, nil
	case 1:
		return backends[0], nil
	default:
		return events.NewMultiEventStorage(backends...), nil
	}
}

// Close releases event backends.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
