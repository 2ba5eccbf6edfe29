// Package websocket pushes sync and conflict events to connected dashboards.
package websocket

import (
	"log"
	"sync"
)

// targeted pairs a message with the user it concerns. An empty user means
// every client receives it.
type targeted struct {
	userID  string
	message []byte
}

// Hub maintains the set of active WebSocket clients and routes messages to
// them. Sync outcomes go only to the affected user's clients; notifications
// go to everyone.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	broadcast  chan targeted
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan targeted, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop.
// This should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client connected (total: %d)", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", h.ClientCount())

		case t := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if t.userID != "" && client.userID != "" && client.userID != t.userID {
					continue
				}
				select {
				case client.send <- t.message:
				default:
					// Client send buffer full, close connection
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message []byte) {
	h.send(targeted{message: message})
}

// BroadcastToUser sends a message to the clients of one user. Clients that
// connected without an identity receive everything.
func (h *Hub) BroadcastToUser(userID string, message []byte) {
	h.send(targeted{userID: userID, message: message})
}

func (h *Hub) send(t targeted) {
	select {
	case h.broadcast <- t:
	default:
		log.Println("Broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket client connection.
type Client struct {
	hub    *Hub
	userID string
	send   chan []byte
}

// NewClient creates a client. userID may be empty for unscoped listeners
// such as admin dashboards.
func NewClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}
