// Package protocol defines the message envelopes exchanged over the relay
// channel. All messages are JSON with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Client -> Server message types.
const (
	TypeChat   = "chat"
	TypeLeave  = "leave"
	TypeNext   = "next"
	TypeReport = "report"
)

// Server -> Client message types. TypeChat is reused for relayed text.
const (
	TypeDelivery = "delivery"
	TypeSystem   = "system"
	TypeEnded    = "ended"
	TypeError    = "error"
)

// Session termination reasons carried on ended envelopes.
const (
	ReasonLeave      = "leave"
	ReasonNext       = "next"
	ReasonReport     = "report"
	ReasonDisconnect = "disconnect"
)

// ErrMalformed is returned when a payload is not a JSON envelope at all.
// Callers treat such payloads as bare chat text rather than rejecting them.
var ErrMalformed = errors.New("protocol: payload is not a message envelope")

// Envelope holds the message type and the raw JSON for deferred decoding.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded into a concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// ChatIn is a text message for the current partner.
type ChatIn struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LeaveIn ends the active session. The same struct serves "next", which ends
// the session and signals intent to immediately rematch.
type LeaveIn struct {
	Type string `json:"type"`
}

// ReportIn reports the current partner. Reason is optional and defaults to
// "other" when persisted.
type ReportIn struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ChatOut is a relayed text message carrying the sender's id.
type ChatOut struct {
	Type string `json:"type"`
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// DeliveryOut acknowledges a relayed chat message to its sender.
type DeliveryOut struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// SystemOut is an informational notice (no active match, suspension, ...).
type SystemOut struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EndedOut announces session teardown with its reason.
type EndedOut struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ErrorOut communicates a recoverable protocol error; the connection
// remains open.
type ErrorOut struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw relay bytes into a typed client message.
// A payload that is not a JSON envelope at all yields ErrMalformed so the
// caller can apply the bare-text fallback; a well-formed envelope with an
// unknown type is a distinct error answered with an error envelope.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, ErrMalformed
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeChat:
		var m ChatIn
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeave, TypeNext:
		var m LeaveIn
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportIn
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage JSON-encodes a server envelope, injecting the type field.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

// Content limits for relayed chat text.
const (
	MaxMessageBytes = 4096
	MaxTextChars    = 2000
)

// ValidateText checks a chat message against the content limits. Emptiness
// is not an error here; whitespace-only messages are the caller's concern
// (they are silently dropped, not rejected).
func ValidateText(text string) error {
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
