package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truleado/truleado-sub002/internal/model"
)

// PostgresStore implements Store on the leads table. The unique constraint
// on (user_id, reddit_post_id) makes InsertIfAbsent atomic.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, l model.Lead) (InsertOutcome, error) {
	var (
		aiQuality    *int
		aiConfidence *float64
		aiReasons    []string
		aiReply      *string
		postedAt     *time.Time
	)
	if l.AI != nil {
		aiQuality = &l.AI.QualityScore
		aiConfidence = &l.AI.Confidence
		aiReasons = l.AI.Reasons
		if aiReasons == nil {
			aiReasons = []string{}
		}
		aiReply = &l.AI.SampleReply
	}
	if !l.PostedAt.IsZero() {
		postedAt = &l.PostedAt
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, user_id, product_id, reddit_post_id, title, content,
		                    subreddit, author, url, score, num_comments, relevance_score,
		                    search_term, ai_quality_score, ai_confidence, ai_reasons,
		                    ai_sample_reply, status, posted_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         $13, $14, $15, $16, $17, $18, $19, $20)
		 ON CONFLICT (user_id, reddit_post_id) DO NOTHING`,
		l.ID, l.UserID, l.ProductID, l.ExternalID, l.Title, l.Body,
		l.Community, l.Author, l.URL, l.Score, l.NumComments, l.RelevanceScore,
		l.SearchTerm, aiQuality, aiConfidence, aiReasons,
		aiReply, string(l.Status), postedAt, l.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Conflict, nil
	}
	return Inserted, nil
}

func (s *PostgresStore) KnownIDs(ctx context.Context, userID string, externalIDs []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(externalIDs) == 0 {
		return known, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT reddit_post_id FROM leads
		 WHERE user_id = $1 AND reddit_post_id = ANY($2)`,
		userID, externalIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query known leads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		known[id] = true
	}
	return known, rows.Err()
}

// CountSince returns how many leads were created at or after since.
func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE created_at >= $1`, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}
