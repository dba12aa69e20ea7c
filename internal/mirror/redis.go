// Package mirror publishes lane task state to redis so external tools can
// watch progress without polling the app.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"audio-workbench/internal/domain"
)

// KeyPrefix prefixes the per-lane hash keys.
const KeyPrefix = "awb:lane:"

// hashWriter is the subset of the redis client used by RedisMirror.
type hashWriter interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL expires a lane hash after the last write; zero keeps it.
	TTL time.Duration
}

// RedisMirror writes one hash per lane.
type RedisMirror struct {
	client hashWriter
	closer func() error
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[domain.Lane]domain.Task
}

// New connects to redis and verifies the connection with PING.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	m := newMirror(client, opts.TTL, logger)
	m.closer = client.Close
	return m, nil
}

func newMirror(client hashWriter, ttl time.Duration, logger *slog.Logger) *RedisMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisMirror{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "mirror"),
		now:    time.Now,
		last:   make(map[domain.Lane]domain.Task),
	}
}

// Key returns the hash key of lane.
func Key(lane domain.Lane) string {
	return KeyPrefix + string(lane)
}

// Publish writes task to its lane hash. Writes identical to the previous
// one for the lane are skipped.
func (m *RedisMirror) Publish(ctx context.Context, task domain.Task) error {
	m.mu.Lock()
	prev, seen := m.last[task.Lane]
	if seen && prev == task {
		m.mu.Unlock()
		return nil
	}
	m.last[task.Lane] = task
	m.mu.Unlock()

	fields := map[string]interface{}{
		"task_id":          task.ID,
		"status":           string(task.Status),
		"progress":         task.Percent,
		"message":          task.Message,
		"cancel_requested": task.CancelRequested,
		"updated_at":       m.now().UTC().Format(time.RFC3339Nano),
	}
	if !task.StartedAt.IsZero() {
		fields["started_at"] = task.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !task.FinishedAt.IsZero() {
		fields["finished_at"] = task.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	key := Key(task.Lane)
	if err := m.client.HSet(ctx, key, fields).Err(); err != nil {
		m.logger.Warn("mirror write failed", "key", key, "error", err)
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if m.ttl > 0 {
		if err := m.client.Expire(ctx, key, m.ttl).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the redis connection.
func (m *RedisMirror) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
