package adhoc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrQuotaExceeded is returned before any external call when the owner has
// used up the period's ad-hoc searches.
var ErrQuotaExceeded = errors.New("ad-hoc search quota exceeded")

// Usage is the owner's counter after a successful check-and-increment.
type Usage struct {
	Period string `json:"period"`
	Count  int    `json:"count"`
	Limit  int    `json:"limit"`
}

// Quota atomically checks and increments a per-owner counter.
type Quota interface {
	Consume(ctx context.Context, userID string, now time.Time) (Usage, error)
}

// Period returns the monthly quota period containing t.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PostgresQuota keeps counters in usage_counters. The conditional upsert
// makes check and increment a single statement, so count never exceeds the
// limit under concurrency.
type PostgresQuota struct {
	pool  *pgxpool.Pool
	limit int
}

// NewPostgresQuota returns a quota allowing limit searches per period for
// owners without a stored limit.
func NewPostgresQuota(pool *pgxpool.Pool, limit int) *PostgresQuota {
	return &PostgresQuota{pool: pool, limit: limit}
}

func (q *PostgresQuota) Consume(ctx context.Context, userID string, now time.Time) (Usage, error) {
	u := Usage{Period: Period(now)}
	err := q.pool.QueryRow(ctx,
		`INSERT INTO usage_counters (user_id, period, count, usage_limit)
		 SELECT $1, $2, 1, $3 WHERE $3 > 0
		 ON CONFLICT (user_id, period) DO UPDATE
		   SET count = usage_counters.count + 1, updated_at = NOW()
		   WHERE usage_counters.count < usage_counters.usage_limit
		 RETURNING count, usage_limit`,
		userID, u.Period, q.limit,
	).Scan(&u.Count, &u.Limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Usage{}, ErrQuotaExceeded
	}
	if err != nil {
		return Usage{}, fmt.Errorf("consume quota: %w", err)
	}
	return u, nil
}
