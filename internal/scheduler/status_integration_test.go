package scheduler_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/truleado/truleado-sub002/internal/db"
	"github.com/truleado/truleado-sub002/internal/scheduler"
)

func TestRedisStatus_Lifecycle(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis integration test")
	}
	ctx := context.Background()
	rdb, err := db.NewRedisClient(ctx, url, "lead-engine-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	rdb.Del(ctx, scheduler.StatusKey)

	rs := scheduler.NewRedisStatus(rdb, time.Minute)
	if st, err := rs.Read(ctx); err != nil || st.State != scheduler.StateStopped {
		t.Fatalf("Read() on empty key = %+v, %v; want stopped", st, err)
	}

	started := time.Now().Truncate(time.Second)
	if err := rs.Started(ctx, "inst-1", started); err != nil {
		t.Fatal(err)
	}
	if err := rs.Ticked(ctx, started.Add(time.Minute), 4); err != nil {
		t.Fatal(err)
	}
	st, err := rs.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != scheduler.StateRunning || st.Instance != "inst-1" || st.LastDispatched != 4 || !st.StartedAt.Equal(started) {
		t.Errorf("Read() = %+v", st)
	}
	if ttl := rdb.TTL(ctx, scheduler.StatusKey).Val(); ttl <= 0 || ttl > 3*time.Minute {
		t.Errorf("TTL = %v, want (0, 3m]", ttl)
	}

	beat := started.Add(90 * time.Second)
	if err := rs.Alive(ctx, beat); err != nil {
		t.Fatal(err)
	}
	if st, _ := rs.Read(ctx); !st.Heartbeat.Equal(beat) || st.LastDispatched != 4 {
		t.Errorf("Read() after Alive = %+v, want heartbeat %s with the tick kept", st, beat)
	}

	if err := rs.Stopped(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if st, _ := rs.Read(ctx); st.State != scheduler.StateStopped {
		t.Errorf("state after Stopped = %s", st.State)
	}
}
