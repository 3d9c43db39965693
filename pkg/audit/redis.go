// Package audit keeps a short-lived record of every change request the
// server has processed, so a client can ask what became of a batch it sent.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/models"
)

// DefaultTTL is how long an outcome stays retrievable.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by Lookup for unknown or expired request IDs.
var ErrNotFound = errors.New("batch outcome not found or expired")

// RedisLog stores batch outcomes as JSON values under batch:<request id>.
type RedisLog struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLog connects to the Redis server at redisURL and checks that it
// answers. A non-positive ttl selects DefaultTTL.
func NewRedisLog(redisURL string, ttl time.Duration) (*RedisLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLogWithClient(client, ttl), nil
}

// NewRedisLogWithClient creates a log from an existing Redis client.
func NewRedisLogWithClient(client *redis.Client, ttl time.Duration) *RedisLog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLog{
		client: client,
		prefix: "batch:",
		ttl:    ttl,
	}
}

func (l *RedisLog) key(requestID string) string {
	return l.prefix + requestID
}

// Record stores the outcome, replacing any earlier record for the same
// request ID and restarting its TTL.
func (l *RedisLog) Record(ctx context.Context, outcome *models.BatchOutcome) error {
	if outcome.RequestID == "" {
		return fmt.Errorf("record batch outcome: request ID is required")
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal batch outcome: %w", err)
	}

	if err := l.client.Set(ctx, l.key(outcome.RequestID), data, l.ttl).Err(); err != nil {
		return fmt.Errorf("save batch outcome %s: %w", outcome.RequestID, err)
	}
	return nil
}

// Lookup returns the recorded outcome of a request.
func (l *RedisLog) Lookup(ctx context.Context, requestID string) (*models.BatchOutcome, error) {
	data, err := l.client.Get(ctx, l.key(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup batch outcome %s: %w", requestID, err)
	}

	var outcome models.BatchOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("unmarshal batch outcome %s: %w", requestID, err)
	}
	return &outcome, nil
}

// Ping checks if Redis is reachable
func (l *RedisLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisLog) Close() error {
	return l.client.Close()
}
