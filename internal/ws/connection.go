// Package ws maintains the live relay connections: upgrading HTTP requests,
// the process-local registry mapping device ids to open channels, and the
// per-connection read loop feeding the relay.
package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is a single live relay channel with a write mutex serializing
// outbound frames.
type Connection struct {
	ID           string   // device identifier
	Conn         net.Conn // underlying TCP connection
	CreatedAt    time.Time
	WriteTimeout time.Duration // zero disables write deadlines
	lastActive   time.Time     // guarded by activeMu, updated on every read
	activeMu     sync.Mutex
	writeMu      sync.Mutex
}

// WriteMessage sends a WebSocket text frame on this connection. The write
// mutex keeps concurrent goroutines from interleaving frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// WritePong answers a client ping, echoing its payload.
func (c *Connection) WritePong(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	return ws.WriteFrame(c.Conn, ws.NewPongFrame(payload))
}

// setWriteDeadline bounds the next write so a stalled peer cannot wedge a
// sender goroutine forever. Must be called with writeMu held.
func (c *Connection) setWriteDeadline() {
	if c.WriteTimeout > 0 {
		c.Conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	}
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

func (c *Connection) touch() {
	c.activeMu.Lock()
	c.lastActive = time.Now()
	c.activeMu.Unlock()
}

// LastActive returns the time of the most recent successful read.
func (c *Connection) LastActive() time.Time {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	return c.lastActive
}

// Registry is the process-local map from device id to the one live channel
// for that id. It is rebuilt from nothing on process restart; nothing here
// is durable.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Connection)}
}

// Register stores the mapping for conn.ID, replacing any prior entry. The
// prior channel is not closed here: it is orphaned and will be discovered
// dead by its own reader or the next send to it.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	r.byID[conn.ID] = conn
	r.mu.Unlock()
}

// Unregister removes the mapping for id only if it still points at conn.
// This keeps a superseded connection's teardown from evicting its
// replacement. Returns true when the mapping was removed.
func (r *Registry) Unregister(id string, conn *Connection) bool {
	r.mu.Lock()
	cur, ok := r.byID[id]
	if ok && cur == conn {
		delete(r.byID, id)
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()
	return false
}

// Get returns the live connection for id, or nil.
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	conn := r.byID[id]
	r.mu.RUnlock()
	return conn
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}

// All returns a snapshot of the current connections.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}

// Send writes a payload to the connection registered for id. An absent
// mapping is not an error: the recipient may simply not be connected, so the
// send is silently dropped. A failed write means a dead channel; the stale
// mapping is removed as a cleanup side effect and the error returned.
func (r *Registry) Send(id string, payload []byte) error {
	conn := r.Get(id)
	if conn == nil {
		return nil
	}
	if err := conn.WriteMessage(payload); err != nil {
		r.Unregister(id, conn)
		conn.Close()
		return err
	}
	return nil
}
