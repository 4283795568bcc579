package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore() (*Store, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	s := NewStore(db, Config{
		ReportThreshold: 3,
		BanDuration:     24 * time.Hour,
	})
	return s, mock
}

func TestIsBanned_NotBanned(t *testing.T) {
	s, mock := setupTestStore()
	defer mock.ClearExpect()

	mock.ExpectGet("ban:dev-1").RedisNil()

	banned, remaining, reason, err := s.IsBanned(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.False(t, banned)
	assert.Zero(t, remaining)
	assert.Empty(t, reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsBanned_ActiveBan(t *testing.T) {
	s, mock := setupTestStore()
	defer mock.ClearExpect()

	mock.ExpectGet("ban:dev-1").SetVal(ReasonReported)
	mock.ExpectTTL("ban:dev-1").SetVal(2 * time.Hour)

	banned, remaining, reason, err := s.IsBanned(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, banned)
	assert.Equal(t, int((2 * time.Hour).Seconds()), remaining)
	assert.Equal(t, ReasonReported, reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBanAndUnban(t *testing.T) {
	s, mock := setupTestStore()
	defer mock.ClearExpect()
	ctx := context.Background()

	mock.ExpectSet("ban:dev-1", "manual", time.Hour).SetVal("OK")
	require.NoError(t, s.Ban(ctx, "dev-1", time.Hour, "manual"))

	mock.ExpectDel("ban:dev-1").SetVal(1)
	require.NoError(t, s.Unban(ctx, "dev-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReport_BelowThreshold(t *testing.T) {
	s, mock := setupTestStore()
	defer mock.ClearExpect()

	mock.ExpectIncr("reports:dev-1").SetVal(1)

	banned, total, err := s.Report(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.False(t, banned)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReport_ThresholdTriggersBan(t *testing.T) {
	s, mock := setupTestStore()
	defer mock.ClearExpect()

	mock.ExpectIncr("reports:dev-1").SetVal(3)
	mock.ExpectSet("ban:dev-1", ReasonReported, 24*time.Hour).SetVal("OK")

	banned, total, err := s.Report(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, banned)
	assert.Equal(t, 3, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReport_CounterKeepsCountingPastThreshold(t *testing.T) {
	s, mock := setupTestStore()
	defer mock.ClearExpect()

	// The counter never resets; every report past the threshold re-applies
	// the ban with a fresh TTL.
	mock.ExpectIncr("reports:dev-1").SetVal(7)
	mock.ExpectSet("ban:dev-1", ReasonReported, 24*time.Hour).SetVal("OK")

	banned, total, err := s.Report(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, banned)
	assert.Equal(t, 7, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportCount(t *testing.T) {
	s, mock := setupTestStore()
	defer mock.ClearExpect()
	ctx := context.Background()

	mock.ExpectGet("reports:dev-1").RedisNil()
	count, err := s.ReportCount(ctx, "dev-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	mock.ExpectGet("reports:dev-2").SetVal("5")
	count, err = s.ReportCount(ctx, "dev-2")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}
