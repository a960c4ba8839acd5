package jobs_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truleado/truleado-sub002/internal/db"
	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/model"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration test")
	}
	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, url, 8)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.ApplySchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, userID string) string {
	t.Helper()
	id := "product-" + uuid.NewString()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO products (id, user_id, name, subreddits) VALUES ($1, $2, 'Billr', '{smallbusiness}')`,
		id, userID)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	pool := testPool(t)
	store := jobs.NewPostgresStore(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	productID := seedProduct(t, pool, userID)
	now := time.Now().UTC().Truncate(time.Microsecond)

	job, created, err := store.Ensure(ctx, userID, productID, 30, now)
	if err != nil || !created {
		t.Fatalf("Ensure() = created %v, err %v; want created", created, err)
	}
	again, created, err := store.Ensure(ctx, userID, productID, 30, now)
	if err != nil || created || again.ID != job.ID {
		t.Fatalf("second Ensure() = %s created %v err %v; want existing job %s", again.ID, created, err, job.ID)
	}

	claimed, err := store.Claim(ctx, job.ID, userID, now, time.Minute)
	if err != nil {
		t.Fatalf("Claim() unexpected error: %v", err)
	}
	if claimed.ID != job.ID {
		t.Errorf("Claim() id = %s, want %s", claimed.ID, job.ID)
	}
	if _, err := store.Claim(ctx, job.ID, userID, now, time.Minute); !errors.Is(err, jobs.ErrAlreadyClaimed) {
		t.Errorf("second Claim() error = %v, want ErrAlreadyClaimed", err)
	}
	if _, err := store.Claim(ctx, job.ID, "someone-else", now, time.Minute); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("foreign Claim() error = %v, want ErrNotFound", err)
	}

	// Paused mid-run: completion must not resurrect it.
	if _, err := store.SetStatus(ctx, userID, job.ID, model.JobPaused, now); err != nil {
		t.Fatalf("SetStatus(paused) unexpected error: %v", err)
	}
	c := jobs.Apply(claimed, jobs.Outcome{Kind: jobs.Succeeded}, now)
	if err := store.Complete(ctx, job.ID, c); err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}

	list, err := store.List(ctx, userID)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %d jobs, err %v; want 1", len(list), err)
	}
	got := list[0]
	if got.Status != model.JobPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}
	if got.RunCount != 1 {
		t.Errorf("run count = %d, want 1", got.RunCount)
	}
	if !got.NextRun.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("next run = %s, want %s", got.NextRun, now.Add(30*time.Minute))
	}

	if _, err := store.Claim(ctx, job.ID, userID, now, time.Minute); !errors.Is(err, jobs.ErrJobPaused) {
		t.Errorf("Claim() on paused job error = %v, want ErrJobPaused", err)
	}
	if _, err := store.SetStatus(ctx, userID, job.ID, model.JobPaused, now); err == nil {
		t.Error("SetStatus(paused → paused) expected validation error, got nil")
	}

	// Monitoring a paused product's job again reactivates it.
	again, created, err = store.Ensure(ctx, userID, productID, 30, now)
	if err != nil || created || again.Status != model.JobActive {
		t.Errorf("reactivating Ensure() = %s created %v err %v; want active", again.Status, created, err)
	}
}

func TestPostgresStore_ClaimDueSkipsLeased(t *testing.T) {
	pool := testPool(t)
	store := jobs.NewPostgresStore(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	past := time.Now().Add(-time.Hour)

	var ids []string
	for i := 0; i < 3; i++ {
		j, _, err := store.Ensure(ctx, userID, seedProduct(t, pool, userID), 60, past)
		if err != nil {
			t.Fatalf("Ensure() unexpected error: %v", err)
		}
		ids = append(ids, j.ID)
	}
	if _, err := store.Claim(ctx, ids[0], userID, time.Now(), time.Hour); err != nil {
		t.Fatalf("Claim() unexpected error: %v", err)
	}

	due, err := store.ClaimDue(ctx, time.Now(), time.Hour, 10000)
	if err != nil {
		t.Fatalf("ClaimDue() unexpected error: %v", err)
	}
	mine := map[string]bool{}
	for _, j := range due {
		if j.UserID == userID {
			mine[j.ID] = true
		}
	}
	if mine[ids[0]] || !mine[ids[1]] || !mine[ids[2]] {
		t.Errorf("ClaimDue() claimed %v, want %v without the leased %s", mine, ids[1:], ids[0])
	}

	again, err := store.ClaimDue(ctx, time.Now(), time.Hour, 10000)
	if err != nil {
		t.Fatalf("second ClaimDue() unexpected error: %v", err)
	}
	for _, j := range again {
		if j.UserID == userID {
			t.Errorf("second ClaimDue() re-claimed %s while leased", j.ID)
		}
	}
}
