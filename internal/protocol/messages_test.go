package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid chat message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Chat(t *testing.T) {
	input := []byte(`{"type":"chat","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChat {
		t.Fatalf("expected type %q, got %q", TypeChat, msgType)
	}

	cm, ok := msg.(ChatIn)
	if !ok {
		t.Fatalf("expected ChatIn, got %T", msg)
	}
	if cm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", cm.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: leave and next share a payload shape
// ---------------------------------------------------------------------------

func TestParseClientMessage_LeaveAndNext(t *testing.T) {
	for _, typ := range []string{TypeLeave, TypeNext} {
		msgType, msg, err := ParseClientMessage([]byte(`{"type":"` + typ + `"}`))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", typ, err)
		}
		if msgType != typ {
			t.Fatalf("expected type %q, got %q", typ, msgType)
		}
		if _, ok := msg.(LeaveIn); !ok {
			t.Fatalf("%s: expected LeaveIn, got %T", typ, msg)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: report carries an optional reason
// ---------------------------------------------------------------------------

func TestParseClientMessage_Report(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"report","reason":"spam"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeReport {
		t.Fatalf("expected type %q, got %q", TypeReport, msgType)
	}

	rm, ok := msg.(ReportIn)
	if !ok {
		t.Fatalf("expected ReportIn, got %T", msg)
	}
	if rm.Reason != "spam" {
		t.Errorf("expected reason %q, got %q", "spam", rm.Reason)
	}
}

// ---------------------------------------------------------------------------
// Test: non-envelope payloads yield ErrMalformed (bare-text fallback)
// ---------------------------------------------------------------------------

func TestParseClientMessage_Malformed(t *testing.T) {
	inputs := [][]byte{
		[]byte("just some plain text"),
		[]byte(`{"text":"no type field"}`),
		[]byte(`{broken json`),
		[]byte(""),
	}
	for _, input := range inputs {
		_, _, err := ParseClientMessage(input)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("input %q: expected ErrMalformed, got %v", input, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: an envelope with an unknown type is NOT malformed
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	msgType, _, err := ParseClientMessage([]byte(`{"type":"teleport"}`))
	if err == nil {
		t.Fatal("expected error for unknown type, got nil")
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatal("unknown type must not be reported as malformed")
	}
	if msgType != "teleport" {
		t.Errorf("expected the unknown type to be echoed back, got %q", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: NewServerMessage injects the type discriminator
// ---------------------------------------------------------------------------

func TestNewServerMessage(t *testing.T) {
	out, err := NewServerMessage(TypeEnded, EndedOut{Reason: ReasonLeave})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypeEnded {
		t.Errorf("expected type %q, got %v", TypeEnded, m["type"])
	}
	if m["reason"] != ReasonLeave {
		t.Errorf("expected reason %q, got %v", ReasonLeave, m["reason"])
	}
}

// ---------------------------------------------------------------------------
// Test: content limits
// ---------------------------------------------------------------------------

func TestValidateText(t *testing.T) {
	if err := ValidateText("hello"); err != nil {
		t.Errorf("short message should pass: %v", err)
	}
	// Emptiness is not a validation error.
	if err := ValidateText(""); err != nil {
		t.Errorf("empty message should pass validation: %v", err)
	}
	if err := ValidateText(strings.Repeat("a", MaxMessageBytes+1)); err == nil {
		t.Error("expected error for oversized message")
	}
	// Multi-byte runes: under the byte limit but over the rune limit.
	if err := ValidateText(strings.Repeat("é", MaxTextChars+1)); err == nil {
		t.Error("expected error for message over the character limit")
	}
	if err := ValidateText(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}
