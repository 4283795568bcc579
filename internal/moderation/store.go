// Package moderation provides ban and report management backed by Redis.
// Ban records are simple key-value pairs with TTL-based expiry:
//
//	Key:   ban:<device_id>
//	Value: <reason>
//	TTL:   ban duration
//
// Report counters are plain INCR keys with no expiry: reports accumulate for
// the lifetime of the identifier and are not reset when a ban lapses.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BanPrefix is the Redis key prefix for ban records.
	BanPrefix = "ban:"

	// ReportsPrefix is the Redis key prefix for report counters.
	ReportsPrefix = "reports:"

	// ReasonReported is the reason recorded on threshold-triggered bans.
	ReasonReported = "report_threshold"
)

// Config holds the auto-ban policy.
type Config struct {
	ReportThreshold int           // reports that trigger an automatic ban
	BanDuration     time.Duration // duration of automatic bans
}

// Store manages ban records and report counters in Redis.
type Store struct {
	client *redis.Client
	cfg    Config
}

// NewStore creates a moderation store using the provided Redis client.
func NewStore(client *redis.Client, cfg Config) *Store {
	return &Store{client: client, cfg: cfg}
}

// IsBanned checks whether a participant is currently banned.
// Returns (isBanned, remainingSeconds, reason, error). Redis errors are
// returned so callers can surface service-unavailable rather than guessing.
func (s *Store) IsBanned(ctx context.Context, deviceID string) (bool, int, string, error) {
	key := BanPrefix + deviceID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The ban exists but the TTL read failed. Report banned with zero
		// remaining rather than swallowing the ban.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}
	return true, remaining, reason, nil
}

// Ban suspends a participant for the given duration. The record expires on
// its own after the duration elapses.
func (s *Store) Ban(ctx context.Context, deviceID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, BanPrefix+deviceID, reason, duration).Err()
}

// Unban lifts a ban immediately.
func (s *Store) Unban(ctx context.Context, deviceID string) error {
	return s.client.Del(ctx, BanPrefix+deviceID).Err()
}

// ReportCount returns the lifetime report counter for a participant.
func (s *Store) ReportCount(ctx context.Context, deviceID string) (int, error) {
	val, err := s.client.Get(ctx, ReportsPrefix+deviceID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Report increments the report counter against a participant and applies an
// automatic ban once the counter reaches the configured threshold. The
// counter keeps counting past the threshold and is never reset.
// Returns (banned, totalReports, error).
func (s *Store) Report(ctx context.Context, deviceID string) (bool, int, error) {
	count, err := s.client.Incr(ctx, ReportsPrefix+deviceID).Result()
	if err != nil {
		return false, 0, fmt.Errorf("moderation: report incr: %w", err)
	}

	if int(count) >= s.cfg.ReportThreshold {
		if err := s.Ban(ctx, deviceID, s.cfg.BanDuration, ReasonReported); err != nil {
			return false, int(count), fmt.Errorf("moderation: auto ban: %w", err)
		}
		return true, int(count), nil
	}
	return false, int(count), nil
}
