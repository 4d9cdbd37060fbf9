package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// Hub fans cache events out to the connected websocket clients. It implements
// interfaces.IEventBroadcaster.
type Hub struct {
	Logger *logger.Logger

	clients    map[*Client]struct{}
	broadcast  chan models.MCacheEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	mu        sync.RWMutex
	count     int
	lastEvent *models.MCacheEvent
}

// -----------------------------------------------------------------------------

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewLogger(nil, "Hub")
	}
	return &Hub{
		Logger:  log,
		clients: make(map[*Client]struct{}),
		// Buffered so a refresh never waits on slow websocket writes
		broadcast:  make(chan models.MCacheEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// Run is the hub loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount(len(h.clients))

			// Replay the latest event so a new dashboard knows the cache state.
			if last := h.LastEvent(); last != nil {
				client.send <- *last
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setCount(len(h.clients))
			}

		case event := <-h.broadcast:
			h.mu.Lock()
			h.lastEvent = &event
			h.mu.Unlock()

			for client := range h.clients {
				if !client.wants(event) {
					continue
				}
				select {
				case client.send <- event:
				default:
					// Slow consumers are dropped so the loop never blocks.
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.setCount(len(h.clients))

		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.setCount(0)
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// -----------------------------------------------------------------------------

// Broadcast queues event for every client. A full queue drops the event.
func (h *Hub) Broadcast(event models.MCacheEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.Logger.Warning("Event queue full, dropped %s", event.Type)
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) LastEvent() *models.MCacheEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastEvent == nil {
		return nil
	}
	event := *h.lastEvent
	return &event
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (h *Hub) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan models.MCacheEvent, 64),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// handleClientMessage applies a subscribe command. An empty symbol list
// subscribes to everything.
func (h *Hub) handleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		h.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	switch cmd.Command {
	case "subscribe":
		client.subscribe(cmd.Symbols)
	case "unsubscribe":
		client.subscribe(nil)
	}
}
