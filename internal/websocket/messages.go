package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted     MessageType = "sync.completed"
	TypeSyncError         MessageType = "sync.error"
	TypeConflictsDetected MessageType = "conflicts.detected"
	TypeNotification      MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncPayload is the payload for sync.completed and sync.error events.
type SyncPayload struct {
	ConnectionID string `json:"connection_id"`
	Provider     string `json:"provider"`
	UserID       string `json:"user_id"`
	EventsSynced int    `json:"events_synced"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// ConflictsPayload is the payload for conflicts.detected events.
type ConflictsPayload struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level   string `json:"level"` // info, warning, error, success
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
