package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/payperplay/easyservers/internal/cli"
	"github.com/payperplay/easyservers/pkg/config"
	"github.com/payperplay/easyservers/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	closer := logger.Setup(logger.Options{
		Level:      cfg.LogLevel,
		JSON:       cfg.LogJSON,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer closer.Close()

	logger.Info("Starting application", map[string]interface{}{
		"app":     cfg.AppName,
		"debug":   cfg.Debug,
		"port":    cfg.Port,
		"servers": cfg.ServersPath,
		"configs": cfg.ConfigsPath,
	})

	app, err := cli.NewApp(cfg, os.Stdout, "api")
	if err != nil {
		logger.Fatal("Failed to initialize controller", err, nil)
	}
	defer app.Close()

	if app.Bus.HasStorage() {
		logger.Info("Event history enabled", map[string]interface{}{
			"events_file": cfg.EventsFile,
			"influxdb":    cfg.InfluxDBURL != "",
		})
	}

	// Graceful shutdown leaves running servers alone
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Serve(ctx, app); err != nil {
		logger.Error("Server stopped with error", err, nil)
		os.Exit(1)
	}
}
