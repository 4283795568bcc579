// Package matching implements the waiting pools and the pairing algorithm.
// Participants wait in one of two Redis sets partitioned by their own
// verified gender; a match attempt scans the candidate pools selected by the
// requester's preference and claims the first compatible member.
package matching

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/veil/internal/identity"
	"github.com/veilchat/veil/internal/metrics"
	"github.com/veilchat/veil/internal/session"
)

const (
	// QueueMaleKey and QueueFemaleKey are the two gender-partitioned
	// waiting pools. Membership order within a set is unspecified.
	QueueMaleKey   = "queue:male"
	QueueFemaleKey = "queue:female"
)

// PoolKey returns the Redis set holding participants of the given gender.
func PoolKey(g identity.Gender) string {
	if g == identity.GenderFemale {
		return QueueFemaleKey
	}
	return QueueMaleKey
}

// Queue manages the gender-partitioned waiting pools.
type Queue struct {
	client *redis.Client
	users  *identity.Store
	pairs  *session.Store
}

// NewQueue creates a matching queue backed by Redis.
func NewQueue(client *redis.Client, users *identity.Store, pairs *session.Store) *Queue {
	return &Queue{client: client, users: users, pairs: pairs}
}

// Join adds the participant to the pool matching their own verified gender
// and records the stated preference. Returns false without error when the
// gender is unverified; already-queued participants are simply re-added.
func (q *Queue) Join(ctx context.Context, deviceID string, pref identity.Preference) (bool, error) {
	gender, err := q.users.Gender(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if !gender.Known() {
		return false, nil
	}

	if err := q.users.SetPreference(ctx, deviceID, pref); err != nil {
		return false, err
	}
	if err := q.client.SAdd(ctx, PoolKey(gender), deviceID).Err(); err != nil {
		return false, fmt.Errorf("matching: join pool: %w", err)
	}
	q.publishPoolSizes(ctx)
	return true, nil
}

// LeaveAll removes the participant from both pools unconditionally. It runs
// before every fresh match attempt so stale duplicate membership cannot
// accumulate.
func (q *Queue) LeaveAll(ctx context.Context, deviceID string) error {
	pipe := q.client.Pipeline()
	pipe.SRem(ctx, QueueMaleKey, deviceID)
	pipe.SRem(ctx, QueueFemaleKey, deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	q.publishPoolSizes(ctx)
	return nil
}

// InPool reports whether the participant is currently a member of the pool
// for the given gender.
func (q *Queue) InPool(ctx context.Context, deviceID string, g identity.Gender) (bool, error) {
	return q.client.SIsMember(ctx, PoolKey(g), deviceID).Result()
}

// PoolSize returns the current membership count of a gender pool.
func (q *Queue) PoolSize(ctx context.Context, g identity.Gender) (int64, error) {
	return q.client.SCard(ctx, PoolKey(g)).Result()
}

// TryMatch attempts to pair the requester with a waiting participant.
// It persists pref as the requester's current preference, then scans the
// candidate pools in preference order: a specific preference searches only
// that gender's pool, any searches the male pool then the female pool.
//
// A pool member is eligible when it is not the requester, holds no active
// pairing (stale members are removed from the pool as a cleanup side effect),
// and its own stored preference admits the requester's gender. The check is
// deliberately directional: the requester's preference already chose which
// pools to scan, so only the candidate's stored preference is consulted here.
//
// The SREM on the chosen candidate is the claim. Two racing TryMatch calls
// can scan the same member, but at most one SREM observes the removal; the
// loser just moves on to the next candidate.
//
// Returns the claimed partner's id, or "" when no pool holds a compatible
// candidate (the caller is then responsible for enqueuing the requester).
func (q *Queue) TryMatch(ctx context.Context, deviceID string, pref identity.Preference) (string, error) {
	gender, err := q.users.Gender(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if !gender.Known() {
		return "", nil
	}

	if err := q.users.SetPreference(ctx, deviceID, pref); err != nil {
		return "", err
	}

	var pools []string
	switch pref {
	case identity.PrefMale:
		pools = []string{QueueMaleKey}
	case identity.PrefFemale:
		pools = []string{QueueFemaleKey}
	default:
		pools = []string{QueueMaleKey, QueueFemaleKey}
	}

	for _, pool := range pools {
		members, err := q.client.SMembers(ctx, pool).Result()
		if err != nil {
			return "", fmt.Errorf("matching: scan %s: %w", pool, err)
		}

		for _, candidate := range members {
			if candidate == deviceID {
				continue
			}

			partner, err := q.pairs.Partner(ctx, candidate)
			if err != nil {
				return "", err
			}
			if partner != "" {
				// Stale entry: still queued while holding a pairing.
				q.client.SRem(ctx, pool, candidate)
				continue
			}

			candPref, err := q.users.Preference(ctx, candidate)
			if err != nil {
				return "", err
			}
			if !candPref.Admits(gender) {
				continue
			}

			claimed, err := q.client.SRem(ctx, pool, candidate).Result()
			if err != nil {
				return "", fmt.Errorf("matching: claim %s: %w", candidate, err)
			}
			if claimed == 0 {
				continue // lost the race, try the next candidate
			}
			q.publishPoolSizes(ctx)
			return candidate, nil
		}
	}

	return "", nil
}

// publishPoolSizes refreshes the per-pool queue-size gauges. Best effort: a
// failed read just leaves the gauge at its previous value.
func (q *Queue) publishPoolSizes(ctx context.Context) {
	for _, g := range []identity.Gender{identity.GenderMale, identity.GenderFemale} {
		if n, err := q.client.SCard(ctx, PoolKey(g)).Result(); err == nil {
			metrics.QueueSize.WithLabelValues(string(g)).Set(float64(n))
		}
	}
}
