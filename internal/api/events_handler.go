package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/payperplay/easyservers/internal/events"
	"github.com/payperplay/easyservers/internal/middleware"
)

// EventsHandler serves the event history.
type EventsHandler struct {
	bus *events.EventBus
}

func NewEventsHandler(bus *events.EventBus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// ListEvents handles GET /api/events?type=a,b&server=&config=&since=&until=&limit=
func (h *EventsHandler) ListEvents(c *gin.Context) {
	if !h.bus.HasStorage() {
		c.JSON(http.StatusServiceUnavailable, middleware.ErrorResponse{Error: "event history is not configured"})
		return
	}

	filters, err := parseEventFilters(c)
	if err != nil {
		middleware.RespondError(c, http.StatusBadRequest, err, nil)
		return
	}

	list, err := h.bus.Query(filters)
	if err != nil {
		middleware.RespondError(c, http.StatusInternalServerError, err, nil)
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	c.JSON(http.StatusOK, gin.H{
		"events": list,
		"count":  len(list),
	})
}

func parseEventFilters(c *gin.Context) (events.EventFilters, error) {
	f := events.EventFilters{
		Server: c.Query("server"),
		Config: c.Query("config"),
		Limit:  100,
	}
	if types := c.Query("type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			f.Types = append(f.Types, events.EventType(strings.TrimSpace(t)))
		}
	}

	var err error
	if f.StartTime, err = parseTime(c.Query("since")); err != nil {
		return f, fmt.Errorf("invalid since: %w", err)
	}
	if f.EndTime, err = parseTime(c.Query("until")); err != nil {
		return f, fmt.Errorf("invalid until: %w", err)
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit %q", limit)
		}
		f.Limit = n
	}
	return f, nil
}

// parseTime accepts RFC3339 or a duration back from now ("1h").
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}
