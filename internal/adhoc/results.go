package adhoc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truleado/truleado-sub002/internal/model"
)

// ResultStore records ad-hoc results. Rows are keyed by search id, not by
// post id: repeat searches may surface the same post again.
type ResultStore interface {
	Save(ctx context.Context, searchID string, req Request, results []model.ScoredCandidate) error
}

// PostgresResultStore writes adhoc_results.
type PostgresResultStore struct {
	pool *pgxpool.Pool
}

// NewPostgresResultStore returns a store backed by pool.
func NewPostgresResultStore(pool *pgxpool.Pool) *PostgresResultStore {
	return &PostgresResultStore{pool: pool}
}

// Save inserts every result in one batch.
func (s *PostgresResultStore) Save(ctx context.Context, searchID string, req Request, results []model.ScoredCandidate) error {
	if len(results) == 0 {
		return nil
	}
	var productID *string
	if req.ProductID != "" {
		productID = &req.ProductID
	}
	now := time.Now()

	batch := &pgx.Batch{}
	for _, r := range results {
		var (
			quality *int
			reply   *string
		)
		if r.AI != nil {
			quality = &r.AI.QualityScore
			reply = &r.AI.SampleReply
		}
		batch.Queue(
			`INSERT INTO adhoc_results (id, search_id, user_id, product_id, query, reddit_post_id,
			                            title, content, subreddit, author, url, relevance_score,
			                            ai_quality_score, ai_sample_reply, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			uuid.NewString(), searchID, req.UserID, productID, req.Query, r.ExternalID,
			r.Title, r.Body, r.Community, r.Author, r.URL, r.HeuristicScore,
			quality, reply, now,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert adhoc result: %w", err)
		}
	}
	return nil
}
