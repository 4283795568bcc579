// Package session tracks the single active pairing per participant. A pairing
// is two linked Redis records, each naming the other side, created atomically
// by the matcher and destroyed by leave/next/report/disconnect.
package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PairPrefix is the Redis key prefix for active-pair hashes.
	PairPrefix = "pair:"

	// PairTTL is a safety expiry so abandoned pairs cannot outlive their
	// participants forever. Normal teardown deletes both records long
	// before this fires.
	PairTTL = 2 * time.Hour
)

// Pair is one side's view of an active pairing.
type Pair struct {
	PairID  string
	Partner string
}

// Store manages active-pair records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a pair store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create records an active pairing between a and b under the given pair ID.
// Both sides are written in one pipeline so a reader never observes only one
// half for longer than a single round trip.
func (s *Store) Create(ctx context.Context, pairID, a, b string) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, PairPrefix+a, "partner", b, "pair_id", pairID)
	pipe.Expire(ctx, PairPrefix+a, PairTTL)
	pipe.HSet(ctx, PairPrefix+b, "partner", a, "pair_id", pairID)
	pipe.Expire(ctx, PairPrefix+b, PairTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Partner returns the partner of deviceID, or "" if no pairing is active.
func (s *Store) Partner(ctx context.Context, deviceID string) (string, error) {
	p, err := s.Get(ctx, deviceID)
	if err != nil || p == nil {
		return "", err
	}
	return p.Partner, nil
}

// Get returns the pairing record for deviceID, or nil if none exists.
func (s *Store) Get(ctx context.Context, deviceID string) (*Pair, error) {
	vals, err := s.client.HGetAll(ctx, PairPrefix+deviceID).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 || vals["partner"] == "" {
		return nil, nil
	}
	return &Pair{PairID: vals["pair_id"], Partner: vals["partner"]}, nil
}

// End tears down the pairing that deviceID belongs to and returns the former
// partner and pair ID so the caller can notify the other side. Ending when no
// pairing exists is a no-op returning an empty partner; calling End twice
// therefore produces exactly one teardown.
func (s *Store) End(ctx context.Context, deviceID string) (partner, pairID string, err error) {
	p, err := s.Get(ctx, deviceID)
	if err != nil || p == nil {
		return "", "", err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, PairPrefix+deviceID)
	pipe.Del(ctx, PairPrefix+p.Partner)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", "", err
	}
	return p.Partner, p.PairID, nil
}
