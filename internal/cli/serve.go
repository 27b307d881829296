package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/payperplay/easyservers/internal/api"
	"github.com/payperplay/easyservers/internal/monitoring"
	"github.com/payperplay/easyservers/pkg/logger"
)

const metricsInterval = 30 * time.Second

func newServeCmd(r *runner) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operations over HTTP and WebSocket",
		Long: `Serve every operation over HTTP (POST /api/operations/<kind>) and WebSocket
(GET /api/operations/stream), together with Prometheus metrics and the event history.
Only one operation runs at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := r.get(cmd, "api")
			if err != nil {
				return err
			}
			if port != "" {
				app.Config.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, app)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8000)")
	return cmd
}

// Serve runs the HTTP front-end until ctx is done. Running servers are left alone.
func Serve(ctx context.Context, app *App) error {
	cfg := app.Config

	exporter := monitoring.NewPrometheusExporter(app.Servers)
	exporter.StartMetricsCollector(ctx, metricsInterval)

	dashboard := api.NewDashboardWebSocket(app.Bus, app.Servers, cfg.Debug)
	go dashboard.Run()
	defer dashboard.Shutdown()

	handlers := api.Handlers{
		Health:     api.NewHealthHandler(cfg.ServersPath, cfg.ConfigsPath),
		Prometheus: api.NewPrometheusHandler(nil),
		Operations: api.NewOperationsHandler(app.Exec, app.Out, cfg.Debug),
		Events:     api.NewEventsHandler(app.Bus),
		Dashboard:  dashboard,
	}
	router := api.SetupRouter(handlers, cfg.Debug)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", map[string]interface{}{
			"address":      addr,
			"api_endpoint": fmt.Sprintf("http://localhost%s/api", addr),
			"health_check": fmt.Sprintf("http://localhost%s/health", addr),
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	logger.Info("Shutdown complete", nil)
	return nil
}
