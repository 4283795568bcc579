package matching

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/veilchat/veil/internal/guard"
	"github.com/veilchat/veil/internal/identity"
	"github.com/veilchat/veil/internal/metrics"
	"github.com/veilchat/veil/internal/moderation"
	"github.com/veilchat/veil/internal/session"
)

// Policy-blocked outcomes of a find-match request. These are distinct from
// rejected-input errors so the API layer can render them differently.
var (
	ErrBanned     = errors.New("matching: participant is banned")
	ErrOnCooldown = errors.New("matching: cooldown active")
	ErrDailyLimit = errors.New("matching: daily specific-filter limit reached")
	ErrUnverified = errors.New("matching: gender not verified")
)

// Result statuses of a find-match request.
const (
	StatusMatched = "matched"
	StatusQueued  = "queued"
	StatusWaiting = "waiting"
)

// Result is the outcome of a find-match or match-status request.
type Result struct {
	Status    string
	PartnerID string
	PairID    string
}

// Service orchestrates a find-match request: moderation gate, cooldown and
// quota gates, then the pairing attempt and session/cooldown bookkeeping.
type Service struct {
	queue *Queue
	pairs *session.Store
	guard *guard.Guard
	mod   *moderation.Store
}

// NewService wires the matching orchestrator.
func NewService(queue *Queue, pairs *session.Store, g *guard.Guard, mod *moderation.Store) *Service {
	return &Service{queue: queue, pairs: pairs, guard: g, mod: mod}
}

// FindMatch runs the full gated match attempt for a participant.
// continuation marks the "next" fast path after ending a chat: it bypasses
// the cooldown gate but no other gate. A requester who already holds an
// active pairing gets that pairing back instead of a new attempt, so a
// participant can never hold two partners. On success both sides hold linked
// session records and fresh cooldown marks; a specific-preference success
// additionally consumes one unit of the requester's daily filter quota.
func (s *Service) FindMatch(ctx context.Context, deviceID string, pref identity.Preference, continuation bool) (Result, error) {
	banned, _, _, err := s.mod.IsBanned(ctx, deviceID)
	if err != nil {
		return Result{}, err
	}
	if banned {
		metrics.MatchAttempts.WithLabelValues("banned").Inc()
		return Result{}, ErrBanned
	}

	// Re-matching while paired would overwrite one side's session record
	// and strand the abandoned partner. The existing pairing wins; it must
	// be ended through the relay before a fresh attempt is allowed.
	existing, err := s.pairs.Get(ctx, deviceID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		metrics.MatchAttempts.WithLabelValues("already_paired").Inc()
		return Result{Status: StatusMatched, PartnerID: existing.Partner, PairID: existing.PairID}, nil
	}

	if !continuation {
		cooling, err := s.guard.OnCooldown(ctx, deviceID)
		if err != nil {
			return Result{}, err
		}
		if cooling {
			metrics.MatchAttempts.WithLabelValues("cooldown").Inc()
			return Result{}, ErrOnCooldown
		}
	}

	gender, err := s.queue.users.Gender(ctx, deviceID)
	if err != nil {
		return Result{}, err
	}
	if !gender.Known() {
		metrics.MatchAttempts.WithLabelValues("unverified").Inc()
		return Result{}, ErrUnverified
	}

	allowed, err := s.guard.FilterAllowed(ctx, deviceID, pref)
	if err != nil {
		return Result{}, err
	}
	if !allowed {
		metrics.MatchAttempts.WithLabelValues("daily_limit").Inc()
		return Result{}, ErrDailyLimit
	}

	// Drop any stale queue membership before the fresh attempt.
	if err := s.queue.LeaveAll(ctx, deviceID); err != nil {
		return Result{}, err
	}

	partner, err := s.queue.TryMatch(ctx, deviceID, pref)
	if err != nil {
		return Result{}, err
	}

	if partner == "" {
		if _, err := s.queue.Join(ctx, deviceID, pref); err != nil {
			return Result{}, err
		}
		metrics.MatchAttempts.WithLabelValues("queued").Inc()
		return Result{Status: StatusQueued}, nil
	}

	pairID := uuid.New().String()
	if err := s.pairs.Create(ctx, pairID, deviceID, partner); err != nil {
		return Result{}, err
	}

	// Cooldown both sides; the partner did not initiate but was paired all
	// the same. Failures here are logged, not fatal: the pairing stands.
	if err := s.guard.SetCooldown(ctx, deviceID); err != nil {
		log.Printf("[matcher] set cooldown %s: %v", deviceID, err)
	}
	if err := s.guard.SetCooldown(ctx, partner); err != nil {
		log.Printf("[matcher] set cooldown %s: %v", partner, err)
	}

	if pref.Specific() {
		if err := s.guard.RecordFilterUse(ctx, deviceID); err != nil {
			log.Printf("[matcher] record filter use %s: %v", deviceID, err)
		}
	}

	metrics.MatchAttempts.WithLabelValues("matched").Inc()
	metrics.ActivePairs.Inc()
	log.Printf("[matcher] paired %s with %s pair=%s", deviceID, partner, pairID)
	return Result{Status: StatusMatched, PartnerID: partner, PairID: pairID}, nil
}

// Status answers a match-status poll: matched with a partner id, or waiting.
func (s *Service) Status(ctx context.Context, deviceID string) (Result, error) {
	p, err := s.pairs.Get(ctx, deviceID)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{Status: StatusWaiting}, nil
	}
	return Result{Status: StatusMatched, PartnerID: p.Partner, PairID: p.PairID}, nil
}
