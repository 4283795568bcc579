// Package messaging provides the optional NATS fanout that lets multiple
// relay replicas deliver envelopes to a participant regardless of which
// replica holds the live connection. Sends publish to a per-participant
// subject; each replica subscribes for the connections it holds locally.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRelay is the subject prefix for per-participant envelope delivery.
const SubjectRelay = "relay." // + <device_id>

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "veil",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Fanout wraps the NATS connection with per-participant subscriptions.
type Fanout struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription // device id -> subscription
}

// NewFanout connects to NATS and returns a ready fanout.
func NewFanout(config Config) (*Fanout, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Fanout{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Send publishes an envelope toward a participant's subject. Whichever
// replica holds the live connection delivers it; if none does, the message
// is dropped, matching the registry's silent-drop semantics. The signature
// matches the relay's Sender so a Fanout can stand in for the registry.
func (f *Fanout) Send(deviceID string, payload []byte) error {
	return f.conn.Publish(SubjectRelay+deviceID, payload)
}

// SubscribeLocal starts delivering a participant's envelopes to handler.
// Called when the participant's connection registers on this replica; a
// prior subscription for the same id is replaced.
func (f *Fanout) SubscribeLocal(deviceID string, handler func(payload []byte)) error {
	sub, err := f.conn.Subscribe(SubjectRelay+deviceID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", deviceID, err)
	}

	f.mu.Lock()
	if old, ok := f.subs[deviceID]; ok {
		_ = old.Unsubscribe()
	}
	f.subs[deviceID] = sub
	f.mu.Unlock()
	return nil
}

// UnsubscribeLocal stops local delivery for a participant.
func (f *Fanout) UnsubscribeLocal(deviceID string) error {
	f.mu.Lock()
	sub, ok := f.subs[deviceID]
	delete(f.subs, deviceID)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", deviceID, err)
	}
	return nil
}

// Close drains all subscriptions and the connection.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, sub := range f.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", id, err)
		}
	}
	f.subs = make(map[string]*nats.Subscription)

	if err := f.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] fanout closed")
}
