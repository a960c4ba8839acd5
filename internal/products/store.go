// Package products reads the product definitions that drive discovery. The
// main application owns the table; the engine never writes it.
package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truleado/truleado-sub002/internal/model"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// PostgresStore reads the products table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get loads one product by ID.
func (s *PostgresStore) Get(ctx context.Context, productID string) (model.Product, error) {
	var (
		p      model.Product
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, description, features, benefits,
		        pain_points, subreddits, status
		 FROM products WHERE id = $1`,
		productID,
	).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.Features, &p.Benefits,
		&p.PainPoints, &p.Communities, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product: %w", err)
	}
	p.Status = model.ProductStatus(status)
	p.Communities = Normalize(p.Communities)
	return p, nil
}
