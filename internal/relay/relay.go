// Package relay routes messages between paired participants: parsing inbound
// envelopes, consulting the session and moderation state, and delivering
// outbound envelopes through the connection registry (or the cross-replica
// fanout when one is configured).
package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/veilchat/veil/internal/guard"
	"github.com/veilchat/veil/internal/metrics"
	"github.com/veilchat/veil/internal/moderation"
	"github.com/veilchat/veil/internal/protocol"
	"github.com/veilchat/veil/internal/report"
	"github.com/veilchat/veil/internal/session"
)

const storeTimeout = 3 * time.Second

// Sender delivers a payload to the participant's live channel, silently
// dropping it when the participant is not connected. The process-local
// registry implements it directly; a fanout wraps it for multi-replica
// deployments.
type Sender interface {
	Send(deviceID string, payload []byte) error
}

// Relay owns the message handlers behind the persistent channel.
type Relay struct {
	sender      Sender
	pairs       *session.Store
	mod         *moderation.Store
	guard       *guard.Guard
	archive     *report.Store // nil disables the Postgres review trail
	transcripts *Transcripts
}

// New wires a Relay. archive may be nil when no Postgres DSN is configured.
func New(sender Sender, pairs *session.Store, mod *moderation.Store, g *guard.Guard, archive *report.Store) *Relay {
	return &Relay{
		sender:      sender,
		pairs:       pairs,
		mod:         mod,
		guard:       g,
		archive:     archive,
		transcripts: NewTranscripts(),
	}
}

// Gate is the connection entry gate: banned identifiers are refused before
// any registration, and connection attempts are rate limited per device.
func (r *Relay) Gate(deviceID string) (string, int) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	banned, remaining, reason, err := r.mod.IsBanned(ctx, deviceID)
	if err != nil {
		return "service unavailable", http.StatusServiceUnavailable
	}
	if banned {
		log.Printf("[relay] refused banned device=%s reason=%s remaining=%ds", deviceID, reason, remaining)
		return "account suspended: " + reason, http.StatusForbidden
	}

	if ok, _ := r.guard.Allow(ctx, deviceID, guard.RuleConnect); !ok {
		return "too many connection attempts", http.StatusTooManyRequests
	}
	return "", 0
}

// HandleMessage processes one inbound frame from deviceID. Payloads that are
// not an envelope at all are treated as a chat message whose text is the raw
// payload; well-formed envelopes of unknown type get an error envelope back
// and the connection stays open.
func (r *Relay) HandleMessage(deviceID string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	msgType, msg, err := protocol.ParseClientMessage(data)
	if errors.Is(err, protocol.ErrMalformed) {
		r.handleChat(ctx, deviceID, string(data))
		return
	}
	if err != nil {
		r.sendError(deviceID, "unsupported_type", "unsupported message type")
		return
	}

	switch msgType {
	case protocol.TypeChat:
		m := msg.(protocol.ChatIn)
		r.handleChat(ctx, deviceID, m.Text)
	case protocol.TypeLeave:
		r.handleEnd(ctx, deviceID, protocol.ReasonLeave)
	case protocol.TypeNext:
		r.handleEnd(ctx, deviceID, protocol.ReasonNext)
	case protocol.TypeReport:
		m := msg.(protocol.ReportIn)
		r.handleReport(ctx, deviceID, m.Reason)
	}
}

// HandleDisconnect runs the transport-level disconnect teardown: identical
// to an explicit leave with reason disconnect. The registry entry is already
// gone by the time this fires; idempotent session teardown makes a racing
// double-invocation harmless.
func (r *Relay) HandleDisconnect(deviceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	partner, pairID, err := r.pairs.End(ctx, deviceID)
	if err != nil {
		log.Printf("[relay] disconnect teardown %s: %v", deviceID, err)
		return
	}
	if partner == "" {
		return
	}
	r.finishTeardown(deviceID, partner, pairID, protocol.ReasonDisconnect)
}

func (r *Relay) handleChat(ctx context.Context, deviceID, text string) {
	if strings.TrimSpace(text) == "" {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}
	if err := protocol.ValidateText(text); err != nil {
		r.sendError(deviceID, "invalid_message", err.Error())
		return
	}

	if ok, _ := r.guard.Allow(ctx, deviceID, guard.RuleMessage); !ok {
		r.sendError(deviceID, "rate_limited", "slow down")
		return
	}

	pair, err := r.pairs.Get(ctx, deviceID)
	if err != nil {
		r.sendError(deviceID, "unavailable", "try again")
		return
	}
	if pair == nil {
		r.sendSystem(deviceID, "no active match")
		return
	}

	ts := time.Now().Unix()
	r.transcripts.Add(pair.PairID, TranscriptEntry{From: deviceID, Text: text, Ts: ts})

	out, err := protocol.NewServerMessage(protocol.TypeChat, protocol.ChatOut{
		From: deviceID, Text: text, Ts: ts,
	})
	if err != nil {
		log.Printf("[relay] build chat envelope: %v", err)
		return
	}
	// A dead partner channel is not the sender's problem: the registry
	// drops the stale mapping and the sender learns of it only through the
	// eventual session teardown.
	_ = r.sender.Send(pair.Partner, out)
	metrics.MessagesTotal.WithLabelValues("chat").Inc()

	ack, err := protocol.NewServerMessage(protocol.TypeDelivery, protocol.DeliveryOut{Ts: ts})
	if err == nil {
		_ = r.sender.Send(deviceID, ack)
	}
}

// handleEnd tears down the initiator's session and notifies both sides. The
// initiator always receives its ended envelope, even when no session existed.
func (r *Relay) handleEnd(ctx context.Context, deviceID, reason string) {
	partner, pairID, err := r.pairs.End(ctx, deviceID)
	if err != nil {
		r.sendError(deviceID, "unavailable", "try again")
		return
	}
	if partner != "" {
		r.finishTeardown(deviceID, partner, pairID, reason)
	}
	r.sendEnded(deviceID, reason)
}

func (r *Relay) handleReport(ctx context.Context, deviceID, reason string) {
	pair, err := r.pairs.Get(ctx, deviceID)
	if err != nil {
		r.sendError(deviceID, "unavailable", "try again")
		return
	}
	if pair == nil {
		r.sendSystem(deviceID, "no active match")
		return
	}

	banned, total, err := r.mod.Report(ctx, pair.Partner)
	if err != nil {
		r.sendError(deviceID, "unavailable", "try again")
		return
	}
	metrics.ReportsTotal.Inc()
	log.Printf("[relay] report device=%s against=%s total=%d banned=%v", deviceID, pair.Partner, total, banned)

	if r.archive != nil {
		rec := &report.Report{
			ReporterID: deviceID,
			ReportedID: pair.Partner,
			PairID:     pair.PairID,
			Reason:     report.NormalizeReason(reason),
		}
		for _, e := range r.transcripts.Snapshot(pair.PairID) {
			rec.Messages = append(rec.Messages, report.MessageEntry(e))
		}
		if err := r.archive.Create(ctx, rec); err != nil {
			log.Printf("[relay] archive report: %v", err)
		}
	}

	if banned {
		r.sendSystem(pair.Partner, "your account has been suspended for repeated reports")
	}

	// Tear down with reason report: partner gets ended(report), reporter
	// gets the same confirmation.
	if partner, pairID, err := r.pairs.End(ctx, deviceID); err == nil && partner != "" {
		r.finishTeardown(deviceID, partner, pairID, protocol.ReasonReport)
	}
	r.sendEnded(deviceID, protocol.ReasonReport)
}

// finishTeardown notifies the partner of a completed session end and clears
// per-pair state.
func (r *Relay) finishTeardown(initiator, partner, pairID, reason string) {
	r.transcripts.Remove(pairID)
	metrics.ActivePairs.Dec()
	r.sendEnded(partner, reason)
	log.Printf("[relay] session ended pair=%s by=%s reason=%s", pairID, initiator, reason)
}

func (r *Relay) sendEnded(deviceID, reason string) {
	out, err := protocol.NewServerMessage(protocol.TypeEnded, protocol.EndedOut{Reason: reason})
	if err != nil {
		return
	}
	_ = r.sender.Send(deviceID, out)
	metrics.MessagesTotal.WithLabelValues("ended").Inc()
}

func (r *Relay) sendSystem(deviceID, text string) {
	out, err := protocol.NewServerMessage(protocol.TypeSystem, protocol.SystemOut{Text: text})
	if err != nil {
		return
	}
	_ = r.sender.Send(deviceID, out)
	metrics.MessagesTotal.WithLabelValues("system").Inc()
}

func (r *Relay) sendError(deviceID, code, message string) {
	out, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorOut{Code: code, Message: message})
	if err != nil {
		return
	}
	_ = r.sender.Send(deviceID, out)
}
