package server

import (
	"sync"
	"time"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan models.MCacheEvent

	mu      sync.RWMutex
	symbols map[string]bool
}

// -----------------------------------------------------------------------------

func (c *Client) subscribe(symbols []string) {
	var set map[string]bool
	for _, s := range symbols {
		if sym, err := helpers.NormalizeSymbol(s); err == nil {
			if set == nil {
				set = make(map[string]bool)
			}
			set[sym] = true
		}
	}
	c.mu.Lock()
	c.symbols = set
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// wants reports whether event matches the subscription. Events without
// symbols concern the whole cache and always match.
func (c *Client) wants(event models.MCacheEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 || len(event.Symbols) == 0 {
		return true
	}
	for _, s := range event.Symbols {
		if c.symbols[s] {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.hub.Logger.Debug("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.handleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
