// Package guard enforces the entry gates in front of matchmaking: the
// per-participant re-queue cooldown, the daily cap on specific-gender
// filtering, and generic INCR+EXPIRE rate windows for relay traffic.
// Everything is backed by Redis keys with TTL-based expiry.
package guard

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/veil/internal/identity"
)

const (
	// CooldownPrefix is the Redis key prefix for cooldown marks.
	CooldownPrefix = "cooldown:"

	// FilterQuotaPrefix is the Redis key prefix for daily specific-filter
	// counters. The full key carries the UTC date so a counter can never
	// leak into the next day even if its expiry is missed.
	FilterQuotaPrefix = "quota:filter:"
)

// Rule defines a rate window: key prefix, max count, and window duration.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Rate windows applied on the relay path.
var (
	// RuleMessage allows 5 chat messages per 10 seconds per participant.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 5, Window: 10 * time.Second}

	// RuleConnect allows 5 relay connections per minute per participant.
	RuleConnect = Rule{Key: "rl:conn:", Limit: 5, Window: time.Minute}
)

// Config holds the guard tunables.
type Config struct {
	Cooldown         time.Duration // duration of the re-queue cooldown mark
	DailyFilterLimit int           // specific-gender pairings allowed per UTC day
}

// Guard performs gate checks against Redis.
type Guard struct {
	client *redis.Client
	cfg    Config
}

// New creates a Guard with the given configuration.
func New(client *redis.Client, cfg Config) *Guard {
	return &Guard{client: client, cfg: cfg}
}

// OnCooldown reports whether the participant currently holds a cooldown mark.
func (g *Guard) OnCooldown(ctx context.Context, deviceID string) (bool, error) {
	n, err := g.client.Exists(ctx, CooldownPrefix+deviceID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetCooldown marks the participant for the configured cooldown duration.
// The mark expires on its own; there is no explicit clear.
func (g *Guard) SetCooldown(ctx context.Context, deviceID string) error {
	return g.client.Set(ctx, CooldownPrefix+deviceID, "1", g.cfg.Cooldown).Err()
}

// FilterAllowed reports whether the participant may attempt a pairing with
// the given preference today. Preference any is always allowed; a specific
// preference is allowed until the day's counter reaches the configured limit.
func (g *Guard) FilterAllowed(ctx context.Context, deviceID string, pref identity.Preference) (bool, error) {
	if !pref.Specific() {
		return true, nil
	}
	count, err := g.client.Get(ctx, g.filterKey(deviceID, time.Now())).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return count < g.cfg.DailyFilterLimit, nil
}

// RecordFilterUse increments the participant's daily specific-filter counter.
// Called only after a successful specific-gender pairing. The first increment
// of the day pins the key's expiry to the next UTC midnight.
func (g *Guard) RecordFilterUse(ctx context.Context, deviceID string) error {
	now := time.Now()
	key := g.filterKey(deviceID, now)

	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		if err := g.client.ExpireAt(ctx, key, nextUTCMidnight(now)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// FilterUsage returns today's specific-filter counter for the participant.
func (g *Guard) FilterUsage(ctx context.Context, deviceID string) (int, error) {
	count, err := g.client.Get(ctx, g.filterKey(deviceID, time.Now())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

// Allow checks a generic rate window for the participant. On Redis errors it
// fails open so a store outage does not block legitimate traffic.
func (g *Guard) Allow(ctx context.Context, deviceID string, rule Rule) (bool, error) {
	key := rule.Key + deviceID

	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[guard] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// First increment defines the window boundary.
	if count == 1 {
		if err := g.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[guard] redis EXPIRE error key=%s: %v (failing open)", key, err)
			g.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

func (g *Guard) filterKey(deviceID string, now time.Time) string {
	return FilterQuotaPrefix + deviceID + ":" + now.UTC().Format("20060102")
}

// nextUTCMidnight returns the first instant of the next UTC calendar day.
func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}
