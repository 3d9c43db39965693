package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisLog, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	log, err := NewRedisLog("redis://"+s.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log, s
}

func outcome(id string) *models.BatchOutcome {
	return &models.BatchOutcome{
		RequestID:  id,
		NodeCount:  3,
		Counts:     models.BatchCounts{Inserted: 2, LabelsAdded: 1},
		Status:     models.BatchCommitted,
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewRedisLog(t *testing.T) {
	log, _ := setupTestRedis(t, 0)
	assert.NoError(t, log.Ping(context.Background()))
	assert.Equal(t, DefaultTTL, log.ttl)
}

func TestNewRedisLogBadURL(t *testing.T) {
	_, err := NewRedisLog("not a url", time.Minute)
	assert.Error(t, err)
}

func TestRecordAndLookup(t *testing.T) {
	log, s := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	want := outcome("req-1")
	require.NoError(t, log.Record(ctx, want))

	got, err := log.Lookup(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.True(t, s.Exists("batch:req-1"))
	assert.Equal(t, time.Hour, s.TTL("batch:req-1"))
}

func TestRecordFailedOutcome(t *testing.T) {
	log, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	failed := outcome("req-2")
	failed.Status = models.BatchFailed
	failed.Error = "attachment storage is not supported"
	failed.FailedNode = "att-1"
	require.NoError(t, log.Record(ctx, failed))

	got, err := log.Lookup(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, got.Status)
	assert.Equal(t, models.NodeID("att-1"), got.FailedNode)
	assert.Equal(t, failed.Error, got.Error)
}

func TestRecordRequiresRequestID(t *testing.T) {
	log, _ := setupTestRedis(t, time.Hour)
	assert.Error(t, log.Record(context.Background(), outcome("")))
}

func TestLookupUnknown(t *testing.T) {
	log, _ := setupTestRedis(t, time.Hour)

	_, err := log.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupExpired(t *testing.T) {
	log, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, outcome("short-lived")))
	s.FastForward(2 * time.Minute)

	_, err := log.Lookup(ctx, "short-lived")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupCorruptValue(t *testing.T) {
	log, s := setupTestRedis(t, time.Minute)
	require.NoError(t, s.Set("batch:garbled", "{not json"))

	_, err := log.Lookup(context.Background(), "garbled")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestLookupServerDown(t *testing.T) {
	s := miniredis.RunT(t)
	log := NewRedisLogWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}), time.Minute)
	defer log.Close()
	s.Close()

	_, err := log.Lookup(context.Background(), "any")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
