package ws

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/veilchat/veil/internal/metrics"
)

// ServerConfig holds tunable parameters for the relay transport.
type ServerConfig struct {
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// DefaultServerConfig returns production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
	}
}

// EntryGate decides whether an identified connection attempt may proceed at
// all. A non-empty refusal message rejects the upgrade before registration.
type EntryGate func(deviceID string) (refusal string, code int)

// Server upgrades relay connection requests and runs one reader goroutine
// per live connection. Each reader blocks only on its own channel; inbound
// frames are handed to the message callback, and a reader exiting triggers
// the disconnect callback exactly once.
type Server struct {
	config       ServerConfig
	registry     *Registry
	gate         EntryGate
	onMessage    func(conn *Connection, data []byte)
	onConnect    func(deviceID string)
	onDisconnect func(deviceID string)
	done         chan struct{}
	startedAt    time.Time
}

// NewServer creates a relay transport over the given registry. The gate runs
// before any registration; onMessage receives complete text frames.
func NewServer(config ServerConfig, registry *Registry, gate EntryGate, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:    config,
		registry:  registry,
		gate:      gate,
		onMessage: onMessage,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
}

// SetOnConnect registers the callback invoked after a connection has been
// registered (used to attach per-participant fanout subscriptions).
func (s *Server) SetOnConnect(fn func(deviceID string)) {
	s.onConnect = fn
}

// SetOnDisconnect registers the callback invoked after a connection's
// registry entry has been removed.
func (s *Server) SetOnDisconnect(fn func(deviceID string)) {
	s.onDisconnect = fn
}

// Registry exposes the connection registry for the relay layer.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// HandleUpgrade upgrades an HTTP request identified by the device_id query
// parameter. Gated identifiers are refused outright, before any upgrade or
// registration happens.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return
	}

	if s.gate != nil {
		if refusal, code := s.gate(deviceID); refusal != "" {
			http.Error(w, refusal, code)
			return
		}
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed for device=%s: %v", deviceID, err)
		return
	}

	c := &Connection{
		ID:           deviceID,
		Conn:         conn,
		CreatedAt:    time.Now(),
		WriteTimeout: s.config.WriteTimeout,
	}
	c.touch()

	s.registry.Register(c)
	metrics.ConnectionsTotal.Set(float64(s.registry.Count()))
	log.Printf("ws: new connection device=%s (total=%d)", deviceID, s.registry.Count())

	if s.onConnect != nil {
		s.onConnect(deviceID)
	}

	go s.readLoop(c)
}

// readLoop reads frames until the transport dies, then runs the disconnect
// teardown. wsutil.NextReader surfaces control frames instead of swallowing
// them: a pong from an idle client must refresh the activity timestamp, or
// the heartbeat would evict live connections.
func (s *Server) readLoop(c *Connection) {
	defer s.teardown(c)

	for {
		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}

		// Any frame proves the connection is alive.
		c.touch()

		if header.OpCode.IsControl() {
			payload, err := io.ReadAll(reader)
			if err != nil {
				return
			}
			switch header.OpCode {
			case ws.OpClose:
				return
			case ws.OpPing:
				if err := c.WritePong(payload); err != nil {
					return
				}
			}
			// Pong: nothing else to do.
			continue
		}

		if header.OpCode != ws.OpText {
			if _, err := io.Copy(io.Discard, reader); err != nil {
				return
			}
			continue
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			return
		}
		if len(data) == 0 {
			continue
		}
		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// teardown removes the connection and fires the disconnect callback. The
// registry's conditional removal makes this idempotent and keeps a
// superseded connection from tearing down its replacement's session.
func (s *Server) teardown(c *Connection) {
	c.Close()
	if !s.registry.Unregister(c.ID, c) {
		return
	}
	metrics.ConnectionsTotal.Set(float64(s.registry.Count()))
	log.Printf("ws: connection closed device=%s (total=%d)", c.ID, s.registry.Count())

	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}
}

// Shutdown closes all live connections. Their readers observe the close and
// run the normal teardown path.
func (s *Server) Shutdown() {
	close(s.done)
	for _, c := range s.registry.All() {
		c.Close()
	}
	log.Printf("ws: server stopped, all connections closed")
}
