package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusKey is the Redis hash holding the scheduler's status record.
const StatusKey = "lead-engine:scheduler"

// Scheduler states as written to the status record.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Status is the externally observable scheduler record.
type Status struct {
	State          string    `json:"state"`
	Instance       string    `json:"instance,omitempty"`
	StartedAt      time.Time `json:"startedAt,omitzero"`
	LastTick       time.Time `json:"lastTick,omitzero"`
	LastDispatched int       `json:"lastDispatched"`
	Heartbeat      time.Time `json:"heartbeat,omitzero"`
}

// StatusRecorder persists the scheduler's lifecycle.
type StatusRecorder interface {
	Started(ctx context.Context, instance string, at time.Time) error
	Ticked(ctx context.Context, at time.Time, dispatched int) error
	// Alive refreshes the record while a tick is still running.
	Alive(ctx context.Context, at time.Time) error
	Stopped(ctx context.Context, at time.Time) error
	Read(ctx context.Context) (Status, error)
}

// RedisStatus keeps the record in a Redis hash that expires after three
// missed heartbeats, so a crashed process reads as stopped.
type RedisStatus struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStatus returns a recorder for a scheduler ticking every tick.
func NewRedisStatus(rdb *redis.Client, tick time.Duration) *RedisStatus {
	return &RedisStatus{rdb: rdb, ttl: 3 * tick}
}

func (r *RedisStatus) write(ctx context.Context, fields map[string]any) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, StatusKey, fields)
	pipe.Expire(ctx, StatusKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write scheduler status: %w", err)
	}
	return nil
}

func (r *RedisStatus) Started(ctx context.Context, instance string, at time.Time) error {
	return r.write(ctx, map[string]any{
		"state":           StateRunning,
		"instance":        instance,
		"started_at":      at.UTC().Format(time.RFC3339),
		"heartbeat":       at.UTC().Format(time.RFC3339),
		"last_tick":       "",
		"last_dispatched": 0,
	})
}

func (r *RedisStatus) Ticked(ctx context.Context, at time.Time, dispatched int) error {
	return r.write(ctx, map[string]any{
		"state":           StateRunning,
		"last_tick":       at.UTC().Format(time.RFC3339),
		"heartbeat":       at.UTC().Format(time.RFC3339),
		"last_dispatched": dispatched,
	})
}

func (r *RedisStatus) Alive(ctx context.Context, at time.Time) error {
	return r.write(ctx, map[string]any{
		"state":     StateRunning,
		"heartbeat": at.UTC().Format(time.RFC3339),
	})
}

func (r *RedisStatus) Stopped(ctx context.Context, at time.Time) error {
	return r.write(ctx, map[string]any{
		"state":     StateStopped,
		"last_tick": at.UTC().Format(time.RFC3339),
	})
}

// Read returns the current record. A missing key reads as stopped.
func (r *RedisStatus) Read(ctx context.Context) (Status, error) {
	m, err := r.rdb.HGetAll(ctx, StatusKey).Result()
	if err != nil {
		return Status{}, fmt.Errorf("read scheduler status: %w", err)
	}
	return statusFromHash(m), nil
}

func statusFromHash(m map[string]string) Status {
	st := Status{State: m["state"], Instance: m["instance"]}
	if st.State == "" {
		st.State = StateStopped
	}
	st.StartedAt, _ = time.Parse(time.RFC3339, m["started_at"])
	st.LastTick, _ = time.Parse(time.RFC3339, m["last_tick"])
	st.Heartbeat, _ = time.Parse(time.RFC3339, m["heartbeat"])
	st.LastDispatched, _ = strconv.Atoi(m["last_dispatched"])
	return st
}
