package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	// UserPrefix is the Redis key prefix for participant profile hashes.
	UserPrefix = "user:"

	// PrefPrefix is the Redis key prefix for stated preference values.
	PrefPrefix = "pref:"
)

// Store persists participant identity state in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates an identity store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// SaveGender records the participant's verified gender. Values outside
// male/female are stored as unknown so a failed verification never grants
// queue access.
func (s *Store) SaveGender(ctx context.Context, deviceID string, gender Gender) error {
	if !gender.Known() {
		gender = GenderUnknown
	}
	return s.client.HSet(ctx, UserPrefix+deviceID, "gender", string(gender)).Err()
}

// Gender returns the participant's verified gender, or GenderUnknown if the
// participant has never verified.
func (s *Store) Gender(ctx context.Context, deviceID string) (Gender, error) {
	val, err := s.client.HGet(ctx, UserPrefix+deviceID, "gender").Result()
	if errors.Is(err, redis.Nil) {
		return GenderUnknown, nil
	}
	if err != nil {
		return GenderUnknown, err
	}
	return ParseGender(val), nil
}

// SetPreference stores the participant's stated preference. Invalid values
// collapse to any rather than failing, matching the forgiving onboarding flow.
func (s *Store) SetPreference(ctx context.Context, deviceID string, pref Preference) error {
	p, ok := ParsePreference(string(pref))
	if !ok {
		p = PrefAny
	}
	return s.client.Set(ctx, PrefPrefix+deviceID, string(p), 0).Err()
}

// Preference returns the participant's stated preference, defaulting to any.
func (s *Store) Preference(ctx context.Context, deviceID string) (Preference, error) {
	val, err := s.client.Get(ctx, PrefPrefix+deviceID).Result()
	if errors.Is(err, redis.Nil) {
		return PrefAny, nil
	}
	if err != nil {
		return PrefAny, err
	}
	p, _ := ParsePreference(val)
	return p, nil
}

// SaveProfile stores the display profile set during onboarding.
func (s *Store) SaveProfile(ctx context.Context, deviceID, nickname, bio string) error {
	return s.client.HSet(ctx, UserPrefix+deviceID,
		"nickname", strings.TrimSpace(nickname),
		"bio", strings.TrimSpace(bio),
	).Err()
}

// Profile returns the stored nickname and bio. Missing fields come back empty.
func (s *Store) Profile(ctx context.Context, deviceID string) (nickname, bio string, err error) {
	vals, err := s.client.HMGet(ctx, UserPrefix+deviceID, "nickname", "bio").Result()
	if err != nil {
		return "", "", err
	}
	if v, ok := vals[0].(string); ok {
		nickname = v
	}
	if v, ok := vals[1].(string); ok {
		bio = v
	}
	return nickname, bio, nil
}
