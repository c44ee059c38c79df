package pool

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event is a frame pushed to a live connection.
type Event struct {
	RequestType string `json:"requestType"`
	Data        any    `json:"data"`
}

// Conn is the part of a websocket connection the registry needs. Business
// logic never touches the raw connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Client is one live connection of a user. The underlying websocket
// allows only one concurrent writer, and deliveries from other users race
// the read loop's own confirmation frames, so every write goes through
// Send and its mutex.
type Client struct {
	ConnID string
	UserID int

	writeMu sync.Mutex
	conn    Conn
}

// Send writes one event frame to the connection.
func (c *Client) Send(requestType string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(Event{RequestType: requestType, Data: data})
}

func (c *Client) close() {
	c.conn.Close()
}

// Registry tracks which users currently hold a live connection. It is
// mutated by connect/disconnect events and read by every delivery, so all
// access goes through the mutex. An instance is injected wherever
// presence is needed; there is no package-level state.
type Registry struct {
	mu      sync.Mutex
	clients map[int]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[int]*Client),
	}
}

// Register adds the user's connection and returns its client. A newer
// connection for the same user replaces the previous one.
func (r *Registry) Register(userID int, conn Conn) *Client {
	client := &Client{
		ConnID: uuid.NewString(),
		UserID: userID,
		conn:   conn,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clients[userID]; ok {
		existing.close()
	}
	r.clients[userID] = client

	log.Printf("Client %d added to pool (conn %s)", userID, client.ConnID)
	return client
}

// Unregister drops the user's connection, but only if it is still the one
// identified by connID; a reconnect that already replaced it stays.
func (r *Registry) Unregister(userID int, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clients[userID]; ok && existing.ConnID == connID {
		delete(r.clients, userID)
		log.Printf("Client %d removed from pool (conn %s)", userID, connID)
	}
}

// IsReachable reports whether the user currently has a live connection.
func (r *Registry) IsReachable(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.clients[userID]
	return ok
}

// Push sends the event to the user's connection if one exists. Delivery
// is best-effort: an unreachable user is a no-op, and a write failure
// just evicts the dead connection.
func (r *Registry) Push(userID int, requestType string, data any) {
	r.mu.Lock()
	client, ok := r.clients[userID]
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := client.Send(requestType, data); err != nil {
		log.Printf("Error sending event %q to user %d: %v", requestType, userID, err)
		client.close()
		r.Unregister(userID, client.ConnID)
		return
	}

	log.Printf("Sent event %q to user %d", requestType, userID)
}
