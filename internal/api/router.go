package api

import (
	"github.com/gin-gonic/gin"

	"github.com/payperplay/easyservers/internal/middleware"
)

// Handlers groups everything the router serves. Dashboard and Events may be nil.
type Handlers struct {
	Health     *HealthHandler
	Prometheus *PrometheusHandler
	Operations *OperationsHandler
	Events     *EventsHandler
	Dashboard  *DashboardWebSocket
}

func SetupRouter(h Handlers, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (in order)
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestLogger())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", h.Health.HealthCheck)
	router.HEAD("/health", h.Health.HealthCheck)
	router.GET("/ready", h.Health.ReadinessCheck)
	router.GET("/metrics", h.Health.MetricsCheck)
	router.GET("/prometheus", h.Prometheus.MetricsEndpoint)

	api := router.Group("/api")
	{
		api.GET("/operations", h.Operations.ListKinds)
		api.GET("/operations/stream", h.Operations.Stream)
		api.POST("/operations/:kind", h.Operations.Run)

		if h.Events != nil {
			api.GET("/events", h.Events.ListEvents)
		}
		if h.Dashboard != nil {
			api.GET("/events/stream", h.Dashboard.HandleConnection)
		}
	}

	return router
}
