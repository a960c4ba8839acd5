// Package events publishes job lifecycle notifications on Redis pub/sub for
// the notification and SSE services.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel names. Each event type is published on the channel of the same
// name.
const (
	TypeLeadsDiscovered = "EVENT_LEADS_DISCOVERED"
	TypeJobFailed       = "EVENT_JOB_FAILED"
)

// Event is the payload of every job notification.
type Event struct {
	Type        string    `json:"type"`
	JobID       string    `json:"jobId"`
	UserID      string    `json:"userId"`
	ProductID   string    `json:"productId"`
	LeadsNew    int       `json:"leadsNew"`
	Duplicates  int       `json:"duplicates"`
	FailedPairs int       `json:"failedPairs"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher delivers events. Delivery is best effort: implementations log
// and swallow failures.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// RedisPublisher publishes JSON events on Redis channels.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher returns a publisher on rdb.
func NewRedisPublisher(rdb *redis.Client, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{rdb: rdb, logger: logger}
}

// Publish sends e on the channel named by its type (non-fatal).
func (p *RedisPublisher) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("marshal event failed", "type", e.Type, "err", err)
		return
	}
	if err := p.rdb.Publish(ctx, e.Type, payload).Err(); err != nil {
		p.logger.Warn("publish event failed", "type", e.Type, "jobId", e.JobID, "err", err)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
