package interfaces

import "portfolio-dashboard/src/models"

// -----------------------------------------------------------------------------
// IEventBroadcaster pushes cache events to external listeners (websocket clients).
// -----------------------------------------------------------------------------

type IEventBroadcaster interface {
	Broadcast(event models.MCacheEvent)
}
