package ws

import (
	"log"
	"time"
)

// StartHeartbeat begins a background goroutine that periodically pings all
// live connections and closes those with no successful read within
// interval + timeout. A closed connection's reader exits and runs the normal
// disconnect teardown, so eviction here needs no extra bookkeeping. The
// goroutine exits when the server shuts down.
func StartHeartbeat(server *Server) {
	go func() {
		ticker := time.NewTicker(server.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case <-ticker.C:
				checkConnections(server)
			}
		}
	}()
}

func checkConnections(server *Server) {
	deadline := server.config.HeartbeatInterval + server.config.HeartbeatTimeout
	now := time.Now()

	for _, c := range server.registry.All() {
		if now.Sub(c.LastActive()) > deadline {
			log.Printf("ws: heartbeat timeout device=%s last_activity=%s ago",
				c.ID, now.Sub(c.LastActive()).Round(time.Second))
			c.Close()
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed device=%s: %v", c.ID, err)
			c.Close()
		}
	}
}
