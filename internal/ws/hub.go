// Package ws is the websocket transport: connection bookkeeping,
// message protocol, and the tick loops that push live game and replay
// state to clients.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hailam/kungfuchess/internal/logging"
)

var log = logging.GetLog("ws")

// Conn wraps a websocket connection with a write lock, since gorilla
// connections allow only one concurrent writer.
type Conn struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
}

// NewConn wraps an upgraded websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// SendJSON writes a JSON message to the client.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadJSON reads the next text message into a raw JSON map. Returns an
// error when the connection is gone.
func (c *Conn) ReadJSON() (map[string]any, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errInvalidJSON
	}
	return msg, nil
}

// CloseWithCode sends a close frame with an application close code and
// closes the connection.
func (c *Conn) CloseWithCode(code int, reason string) {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

// Close closes the connection.
func (c *Conn) Close() {
	_ = c.ws.Close()
}

type jsonError string

func (e jsonError) Error() string { return string(e) }

const errInvalidJSON = jsonError("invalid json")

// Hub tracks connections grouped by a scope key (a game ID or lobby
// code), with an integer identity per connection (player number or
// lobby slot; 0 for spectators).
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*Conn]int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*Conn]int)}
}

// Attach registers a connection under a scope.
func (h *Hub) Attach(scope string, c *Conn, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[scope] == nil {
		h.conns[scope] = make(map[*Conn]int)
	}
	h.conns[scope][c] = id
}

// Detach removes a connection and returns its identity, or -1 when the
// connection was not registered.
func (h *Hub) Detach(scope string, c *Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	scoped, ok := h.conns[scope]
	if !ok {
		return -1
	}
	id, ok := scoped[c]
	if !ok {
		return -1
	}
	delete(scoped, c)
	if len(scoped) == 0 {
		delete(h.conns, scope)
	}
	return id
}

func (h *Hub) snapshot(scope string) map[*Conn]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	scoped, ok := h.conns[scope]
	if !ok {
		return nil
	}
	out := make(map[*Conn]int, len(scoped))
	for c, id := range scoped {
		out[c] = id
	}
	return out
}

// Broadcast sends a message to every connection in a scope. Dead
// connections are detached.
func (h *Hub) Broadcast(scope string, v any) {
	h.broadcast(scope, nil, v)
}

// BroadcastExcept sends to every connection in a scope except one.
func (h *Hub) BroadcastExcept(scope string, except *Conn, v any) {
	h.broadcast(scope, except, v)
}

func (h *Hub) broadcast(scope string, except *Conn, v any) {
	for c := range h.snapshot(scope) {
		if c == except {
			continue
		}
		if err := c.SendJSON(v); err != nil {
			h.Detach(scope, c)
		}
	}
}

// SendTo sends a message to every connection in a scope with the given
// identity.
func (h *Hub) SendTo(scope string, id int, v any) {
	for c, connID := range h.snapshot(scope) {
		if connID != id {
			continue
		}
		if err := c.SendJSON(v); err != nil {
			h.Detach(scope, c)
		}
	}
}

// HasConnections reports whether any connection remains in a scope.
func (h *Hub) HasConnections(scope string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[scope]) > 0
}

// RemoveScope drops every connection record for a scope.
func (h *Hub) RemoveScope(scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, scope)
}
