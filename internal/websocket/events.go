package websocket

import (
	"log"

	"github.com/church-connect/backend/internal/storage/models"
)

// EventBroadcaster pushes sync and conflict events to connected dashboard
// clients. It implements the orchestrator's Notifier interface.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// SyncCompleted sends a sync.completed event to the connection's owner.
func (b *EventBroadcaster) SyncCompleted(result models.SyncResult) {
	b.toUser(result.UserID, NewMessage(TypeSyncCompleted, syncPayload(result)))
}

// SyncError sends a sync.error event to the connection's owner.
func (b *EventBroadcaster) SyncError(result models.SyncResult) {
	b.toUser(result.UserID, NewMessage(TypeSyncError, syncPayload(result)))
}

// ConflictsDetected sends a conflicts.detected event to the affected user.
func (b *EventBroadcaster) ConflictsDetected(userID string, count int) {
	b.toUser(userID, NewMessage(TypeConflictsDetected, ConflictsPayload{
		UserID: userID,
		Count:  count,
	}))
}

// Notify sends a freeform notification to all connected clients.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

func syncPayload(result models.SyncResult) SyncPayload {
	p := SyncPayload{
		ConnectionID: result.ConnectionID,
		Provider:     result.Provider,
		UserID:       result.UserID,
		EventsSynced: result.EventsSynced,
		Status:       result.Status,
	}
	if result.Error != nil {
		p.Error = *result.Error
	}
	return p
}

func (b *EventBroadcaster) broadcast(msg Message) {
	if data, ok := encode(msg); ok {
		b.hub.Broadcast(data)
	}
}

func (b *EventBroadcaster) toUser(userID string, msg Message) {
	if data, ok := encode(msg); ok {
		b.hub.BroadcastToUser(userID, data)
	}
}

func encode(msg Message) ([]byte, bool) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return nil, false
	}
	return data, true
}
