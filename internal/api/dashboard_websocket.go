package api

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/payperplay/easyservers/internal/events"
	"github.com/payperplay/easyservers/internal/lifecycle"
	"github.com/payperplay/easyservers/internal/monitoring"
	"github.com/payperplay/easyservers/pkg/logger"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// DashboardWebSocket pushes controller events and periodic fleet snapshots to connected
// dashboards.
type DashboardWebSocket struct {
	bus           *events.EventBus
	servers       monitoring.ServerSource
	upgrader      websocket.Upgrader
	statsInterval time.Duration

	clients      map[*dashboardClient]bool
	clientsMutex sync.RWMutex
	broadcast    chan DashboardEvent
	register     chan *dashboardClient
	unregister   chan *dashboardClient
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// DashboardEvent represents a WebSocket message sent to dashboard clients
type DashboardEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// dashboardClient owns its connection's writes through send.
type dashboardClient struct {
	conn *websocket.Conn
	send chan DashboardEvent
}

// NewDashboardWebSocket creates a new dashboard WebSocket manager
func NewDashboardWebSocket(bus *events.EventBus, servers monitoring.ServerSource, allowAllOrigins bool) *DashboardWebSocket {
	return &DashboardWebSocket{
		bus:           bus,
		servers:       servers,
		upgrader:      createUpgrader(allowAllOrigins),
		statsInterval: 5 * time.Second,
		clients:       make(map[*dashboardClient]bool),
		broadcast:     make(chan DashboardEvent, 256),
		register:      make(chan *dashboardClient),
		unregister:    make(chan *dashboardClient),
		shutdownChan:  make(chan struct{}),
	}
}

// Run starts the WebSocket manager (run in goroutine)
func (ws *DashboardWebSocket) Run() {
	unsubscribe := ws.bus.SubscribeAll(func(e events.Event) {
		ws.PublishEvent(string(e.Type), e)
	})
	defer unsubscribe()

	statsTicker := time.NewTicker(ws.statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case client := <-ws.register:
			ws.clientsMutex.Lock()
			ws.clients[client] = true
			total := len(ws.clients)
			ws.clientsMutex.Unlock()

			logger.Debug("Dashboard client connected", map[string]interface{}{
				"total_clients": total,
			})
			go ws.sendInitialState(client)

		case client := <-ws.unregister:
			ws.clientsMutex.Lock()
			if _, ok := ws.clients[client]; ok {
				delete(ws.clients, client)
				close(client.send)
			}
			total := len(ws.clients)
			ws.clientsMutex.Unlock()

			logger.Debug("Dashboard client disconnected", map[string]interface{}{
				"total_clients": total,
			})

		case event := <-ws.broadcast:
			ws.clientsMutex.RLock()
			for client := range ws.clients {
				select {
				case client.send <- event:
				default:
					// Slow client; it catches up with the next snapshot
				}
			}
			ws.clientsMutex.RUnlock()

		case <-statsTicker.C:
			if ws.ClientCount() > 0 {
				// Probing can take a while; keep the loop responsive
				go func() { ws.PublishEvent("stats.fleet", ws.fleetStats()) }()
			}

		case <-ws.shutdownChan:
			ws.clientsMutex.Lock()
			for client := range ws.clients {
				delete(ws.clients, client)
				close(client.send)
			}
			ws.clientsMutex.Unlock()
			return
		}
	}
}

// HandleConnection handles GET /api/events/stream
func (ws *DashboardWebSocket) HandleConnection(c *gin.Context) {
	conn, err := ws.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Failed to upgrade dashboard connection", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := &dashboardClient{conn: conn, send: make(chan DashboardEvent, 64)}
	select {
	case ws.register <- client:
	case <-ws.shutdownChan:
		conn.Close()
		return
	}

	go ws.writePump(client)
	go ws.readPump(client)
}

// readPump only watches for the close; dashboards never send anything meaningful.
func (ws *DashboardWebSocket) readPump(client *dashboardClient) {
	defer func() {
		select {
		case ws.unregister <- client:
		case <-ws.shutdownChan:
		}
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("Dashboard connection closed unexpectedly", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}
	}
}

func (ws *DashboardWebSocket) writePump(client *dashboardClient) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				return
			}
		case <-pingTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendInitialState replays recent history and the current fleet to a new client
func (ws *DashboardWebSocket) sendInitialState(client *dashboardClient) {
	var initial []DashboardEvent

	if ws.bus.HasStorage() {
		recent, err := ws.bus.Query(events.EventFilters{Limit: 20})
		if err != nil {
			logger.Warn("Failed to load recent events for dashboard", map[string]interface{}{
				"error": err.Error(),
			})
		}
		// Oldest first, as they happened
		for i := len(recent) - 1; i >= 0; i-- {
			initial = append(initial, DashboardEvent{Type: string(recent[i].Type), Timestamp: recent[i].Timestamp, Data: recent[i]})
		}
	}
	initial = append(initial, DashboardEvent{Type: "stats.fleet", Timestamp: time.Now(), Data: ws.fleetStats()})

	ws.clientsMutex.RLock()
	defer ws.clientsMutex.RUnlock()
	if !ws.clients[client] {
		return
	}
	for _, event := range initial {
		select {
		case client.send <- event:
		default:
			return
		}
	}
}

// FleetStats is the periodic dashboard snapshot.
type FleetStats struct {
	TotalServers   int              `json:"total_servers"`
	RunningServers int              `json:"running_servers"`
	TotalPlayers   int              `json:"total_players"`
	Servers        []lifecycle.Info `json:"servers"`
}

func (ws *DashboardWebSocket) fleetStats() FleetStats {
	stats := FleetStats{Servers: []lifecycle.Info{}}
	if ws.servers == nil {
		return stats
	}
	names, err := ws.servers.List()
	if err != nil {
		return stats
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.statsInterval)
	defer cancel()
	for _, name := range names {
		info, err := ws.servers.Inspect(ctx, name)
		if err != nil {
			continue
		}
		stats.Servers = append(stats.Servers, info)
		if info.Status != lifecycle.None {
			stats.RunningServers++
			stats.TotalPlayers += info.Players
		}
	}
	stats.TotalServers = len(stats.Servers)
	return stats
}

// PublishEvent publishes an event to all connected clients
func (ws *DashboardWebSocket) PublishEvent(eventType string, data interface{}) {
	event := DashboardEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Non-blocking send
	select {
	case ws.broadcast <- event:
	default:
		logger.Warn("Dashboard broadcast channel full, dropping event", map[string]interface{}{
			"event_type": eventType,
		})
	}
}

// ClientCount returns the number of connected dashboards
func (ws *DashboardWebSocket) ClientCount() int {
	ws.clientsMutex.RLock()
	defer ws.clientsMutex.RUnlock()
	return len(ws.clients)
}

// Shutdown stops Run and disconnects every client
func (ws *DashboardWebSocket) Shutdown() {
	ws.shutdownOnce.Do(func() { close(ws.shutdownChan) })
}
