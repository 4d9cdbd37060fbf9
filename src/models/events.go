package models

const (
	EventRefreshStarted   = "REFRESH_STARTED"
	EventRefreshCompleted = "REFRESH_COMPLETED"
	EventPricesUpdated    = "PRICES_UPDATED"
)

// MCacheEvent is pushed to websocket clients whenever cached data changes.
type MCacheEvent struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Symbols   []string    `json:"symbols,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// MSubscribeCommand for client messages
type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}
