package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truleado/truleado-sub002/internal/model"
)

// Store persists monitoring jobs. A claim is a lease: locked_until marks the
// job as owned by one execution until the lease expires or Complete runs.
type Store interface {
	// ClaimDue leases up to limit jobs whose next_run has passed and whose
	// status is schedulable, oldest first.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.Job, error)
	// Claim leases one job regardless of next_run. An empty userID skips the
	// ownership check.
	Claim(ctx context.Context, jobID, userID string, now time.Time, lease time.Duration) (model.Job, error)
	// Complete records an execution and releases the lease. A job paused
	// while it ran stays paused.
	Complete(ctx context.Context, jobID string, c Completion) error
	// Ensure creates the job for (user, product) or reactivates a paused one.
	Ensure(ctx context.Context, userID, productID string, intervalMinutes int, now time.Time) (job model.Job, created bool, err error)
	// SetStatus applies a user-driven transition.
	SetStatus(ctx context.Context, userID, jobID string, to model.JobStatus, now time.Time) (model.Job, error)
	List(ctx context.Context, userID string) ([]model.Job, error)
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

// ─── PostgreSQL ──────────────────────────────────────────────────────────────

const jobColumns = `id, user_id, product_id, job_type, status, interval_minutes,
	next_run, last_run, run_count, COALESCE(error_message, '')`

// PostgresStore implements Store on the monitoring_jobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanJob(row pgx.Row) (model.Job, error) {
	var (
		j      model.Job
		status string
	)
	err := row.Scan(
		&j.ID, &j.UserID, &j.ProductID, &j.Kind, &status, &j.IntervalMinutes,
		&j.NextRun, &j.LastRun, &j.RunCount, &j.ErrorMessage,
	)
	j.Status = model.JobStatus(status)
	return j, err
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`WITH due AS (
		   SELECT id FROM monitoring_jobs
		   WHERE status IN ('active', 'error')
		     AND next_run <= $1
		     AND (locked_until IS NULL OR locked_until < $1)
		   ORDER BY next_run
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE monitoring_jobs j
		 SET locked_until = $2, updated_at = NOW()
		 FROM due
		 WHERE j.id = due.id
		 RETURNING j.id, j.user_id, j.product_id, j.job_type, j.status, j.interval_minutes,
		           j.next_run, j.last_run, j.run_count, COALESCE(j.error_message, '')`,
		now, now.Add(lease), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claimDue query: %w", err)
	}
	defer rows.Close()

	claimed := make([]model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("claimDue scan: %w", err)
		}
		claimed = append(claimed, j)
	}
	return claimed, rows.Err()
}

func (s *PostgresStore) Claim(ctx context.Context, jobID, userID string, now time.Time, lease time.Duration) (model.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE monitoring_jobs
		 SET locked_until = $3, updated_at = NOW()
		 WHERE id = $1
		   AND ($4 = '' OR user_id = $4)
		   AND status <> 'paused'
		   AND (locked_until IS NULL OR locked_until < $2)
		 RETURNING `+jobColumns,
		jobID, now, now.Add(lease), userID,
	))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, fmt.Errorf("claim: %w", err)
	}

	// Nothing updated: find out why.
	var status string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM monitoring_jobs WHERE id = $1 AND ($2 = '' OR user_id = $2)`,
		jobID, userID,
	).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.Job{}, ErrNotFound
	case err != nil:
		return model.Job{}, fmt.Errorf("claim lookup: %w", err)
	case model.JobStatus(status) == model.JobPaused:
		return model.Job{}, ErrJobPaused
	}
	return model.Job{}, ErrAlreadyClaimed
}

func (s *PostgresStore) Complete(ctx context.Context, jobID string, c Completion) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitoring_jobs
		 SET status        = CASE WHEN status = 'paused' THEN status ELSE $2 END,
		     last_run      = $3,
		     next_run      = $4,
		     run_count     = run_count + 1,
		     error_message = NULLIF($5, ''),
		     locked_until  = NULL,
		     updated_at    = NOW()
		 WHERE id = $1`,
		jobID, string(c.Status), c.LastRun, c.NextRun, c.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ensure(ctx context.Context, userID, productID string, intervalMinutes int, now time.Time) (model.Job, bool, error) {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	var (
		j       model.Job
		status  string
		created bool
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO monitoring_jobs (id, user_id, product_id, job_type, status, interval_minutes, next_run)
		 VALUES ($1, $2, $3, $4, 'active', $5, $6)
		 ON CONFLICT (user_id, product_id, job_type) DO UPDATE
		   SET status = 'active', next_run = EXCLUDED.next_run,
		       error_message = NULL, updated_at = NOW()
		   WHERE monitoring_jobs.status = 'paused'
		 RETURNING `+jobColumns+`, (xmax = 0)`,
		uuid.NewString(), userID, productID, model.JobKindCommunityMonitoring, intervalMinutes, now,
	).Scan(
		&j.ID, &j.UserID, &j.ProductID, &j.Kind, &status, &j.IntervalMinutes,
		&j.NextRun, &j.LastRun, &j.RunCount, &j.ErrorMessage, &created,
	)
	if err == nil {
		j.Status = model.JobStatus(status)
		return j, created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, false, fmt.Errorf("ensure job: %w", err)
	}

	// Conflict with a job that is already active or in error: leave it alone.
	j, err = scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM monitoring_jobs
		 WHERE user_id = $1 AND product_id = $2 AND job_type = $3`,
		userID, productID, model.JobKindCommunityMonitoring,
	))
	if err != nil {
		return model.Job{}, false, fmt.Errorf("ensure lookup: %w", err)
	}
	return j, false, nil
}

// SetStatus validates the transition against the current row inside a
// transaction so a concurrent pause/resume cannot interleave.
func (s *PostgresStore) SetStatus(ctx context.Context, userID, jobID string, to model.JobStatus, now time.Time) (model.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Job{}, fmt.Errorf("setStatus begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM monitoring_jobs WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		jobID, userID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("setStatus lookup: %w", err)
	}

	from := model.JobStatus(current)
	if !IsUserTransitionAllowed(from, to) {
		return model.Job{}, &ValidationError{
			Msg: fmt.Sprintf("transition %s → %s is not allowed", from, to),
		}
	}

	// Resuming makes the job due immediately.
	j, err := scanJob(tx.QueryRow(ctx,
		`UPDATE monitoring_jobs
		 SET status        = $3,
		     next_run      = CASE WHEN $3 = 'active' THEN $4 ELSE next_run END,
		     error_message = CASE WHEN $3 = 'active' THEN NULL ELSE error_message END,
		     updated_at    = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+jobColumns,
		jobID, userID, string(to), now,
	))
	if err != nil {
		return model.Job{}, fmt.Errorf("setStatus update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Job{}, fmt.Errorf("setStatus commit: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM monitoring_jobs
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listJobs query: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("listJobs scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM monitoring_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("countByStatus query: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("countByStatus scan: %w", err)
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, rows.Err()
}
