package ws

import (
	"io"
	"net"
	"testing"
	"time"
)

// newTestConnection creates a Connection over a net.Pipe with the far end
// drained so writes succeed.
func newTestConnection(t *testing.T, id string) *Connection {
	t.Helper()

	server, client := net.Pipe()
	go io.Copy(io.Discard, client)
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})

	return &Connection{ID: id, Conn: server, CreatedAt: time.Now()}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	conn := newTestConnection(t, "dev-1")

	r.Register(conn)

	if got := r.Get("dev-1"); got != conn {
		t.Fatalf("expected registered connection, got %v", got)
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
	if got := r.Get("dev-2"); got != nil {
		t.Fatalf("expected nil for unknown id, got %v", got)
	}
}

func TestRegistry_RegisterReplacesPriorEntry(t *testing.T) {
	r := NewRegistry()
	first := newTestConnection(t, "dev-1")
	second := newTestConnection(t, "dev-1")

	r.Register(first)
	r.Register(second)

	if got := r.Get("dev-1"); got != second {
		t.Fatal("expected the replacement connection to win")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
}

func TestRegistry_UnregisterIsConditional(t *testing.T) {
	r := NewRegistry()
	first := newTestConnection(t, "dev-1")
	second := newTestConnection(t, "dev-1")

	r.Register(first)
	r.Register(second)

	// The superseded connection's teardown must not evict its replacement.
	if r.Unregister("dev-1", first) {
		t.Fatal("unregister of a superseded connection should be a no-op")
	}
	if got := r.Get("dev-1"); got != second {
		t.Fatal("replacement connection should survive the stale unregister")
	}

	if !r.Unregister("dev-1", second) {
		t.Fatal("unregister of the current connection should succeed")
	}
	if r.Get("dev-1") != nil {
		t.Fatal("expected mapping gone")
	}
}

func TestRegistry_SendToAbsentIsSilentDrop(t *testing.T) {
	r := NewRegistry()

	if err := r.Send("nobody", []byte("hello")); err != nil {
		t.Fatalf("send to an unconnected id must not error, got %v", err)
	}
}

func TestRegistry_SendDelivers(t *testing.T) {
	r := NewRegistry()
	conn := newTestConnection(t, "dev-1")
	r.Register(conn)

	if err := r.Send("dev-1", []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Get("dev-1") != conn {
		t.Fatal("successful send must keep the mapping")
	}
}

func TestRegistry_SendToDeadConnectionClearsMapping(t *testing.T) {
	r := NewRegistry()

	server, client := net.Pipe()
	conn := &Connection{ID: "dev-1", Conn: server, CreatedAt: time.Now()}
	r.Register(conn)

	server.Close()
	client.Close()

	if err := r.Send("dev-1", []byte("hello")); err == nil {
		t.Fatal("expected write error on a closed connection")
	}
	if r.Get("dev-1") != nil {
		t.Fatal("expected the stale mapping to be removed")
	}
}

func TestRegistry_All(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestConnection(t, "dev-1"))
	r.Register(newTestConnection(t, "dev-2"))

	conns := r.All()
	if len(conns) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(conns))
	}
	seen := make(map[string]bool)
	for _, c := range conns {
		seen[c.ID] = true
	}
	if !seen["dev-1"] || !seen["dev-2"] {
		t.Fatalf("snapshot missing ids: %v", seen)
	}
}
