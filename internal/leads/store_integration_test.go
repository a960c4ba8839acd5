package leads_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truleado/truleado-sub002/internal/db"
	"github.com/truleado/truleado-sub002/internal/leads"
	"github.com/truleado/truleado-sub002/internal/model"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration test")
	}
	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, url, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.ApplySchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return pool
}

func TestPostgresStore_InsertIfAbsent(t *testing.T) {
	pool := testPool(t)
	store := leads.NewPostgresStore(pool)
	ctx := context.Background()

	userID := "user-" + uuid.NewString()
	lead := model.Lead{
		ID:             uuid.NewString(),
		UserID:         userID,
		ProductID:      "product-1",
		ExternalID:     "post-1",
		Title:          "Looking for a CRM?",
		Community:      "entrepreneur",
		RelevanceScore: 8,
		AI:             &model.AIAnalysis{QualityScore: 7, Confidence: 0.8, Reasons: []string{"fit"}},
		Status:         model.LeadNew,
		PostedAt:       time.Now().Add(-time.Hour),
		CreatedAt:      time.Now(),
	}

	outcome, err := store.InsertIfAbsent(ctx, lead)
	if err != nil || outcome != leads.Inserted {
		t.Fatalf("first insert = %v, %v; want Inserted", outcome, err)
	}

	lead.ID = uuid.NewString()
	outcome, err = store.InsertIfAbsent(ctx, lead)
	if err != nil || outcome != leads.Conflict {
		t.Fatalf("second insert = %v, %v; want Conflict", outcome, err)
	}

	known, err := store.KnownIDs(ctx, userID, []string{"post-1", "post-2"})
	if err != nil {
		t.Fatalf("KnownIDs: %v", err)
	}
	if !known["post-1"] || known["post-2"] {
		t.Errorf("KnownIDs = %v", known)
	}
}
