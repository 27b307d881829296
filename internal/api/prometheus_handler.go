package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler serves the default registry
type PrometheusHandler struct {
	handler http.Handler
}

// NewPrometheusHandler creates a handler over gatherer, the default registry when nil
func NewPrometheusHandler(gatherer prometheus.Gatherer) *PrometheusHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &PrometheusHandler{
		handler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

// MetricsEndpoint handles GET /prometheus
func (h *PrometheusHandler) MetricsEndpoint(c *gin.Context) {
	h.handler.ServeHTTP(c.Writer, c.Request)
}
