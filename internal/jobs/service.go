package jobs

import (
	"context"
	"time"

	"github.com/truleado/truleado-sub002/internal/model"
)

// ProductReader loads the product a job monitors.
type ProductReader interface {
	Get(ctx context.Context, productID string) (model.Product, error)
}

// Service holds the user-facing job operations. It is transport-agnostic:
// used by the httpapi package.
type Service struct {
	store           Store
	products        ProductReader
	intervalMinutes int
	now             func() time.Time
}

// NewService returns a configured Service. New jobs run every
// intervalMinutes.
func NewService(store Store, products ProductReader, intervalMinutes int) *Service {
	return &Service{store: store, products: products, intervalMinutes: intervalMinutes, now: time.Now}
}

// Monitor ensures an active job exists for the user's product. The job is
// due immediately after creation or reactivation.
func (s *Service) Monitor(ctx context.Context, userID, productID string) (model.Job, bool, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return model.Job{}, false, err
	}
	if p.UserID != userID {
		return model.Job{}, false, ErrNotFound
	}
	if p.Status != model.ProductActive {
		return model.Job{}, false, ErrProductInactive
	}
	return s.store.Ensure(ctx, userID, productID, s.intervalMinutes, s.now())
}

// Pause stops scheduling a job without deleting it.
func (s *Service) Pause(ctx context.Context, userID, jobID string) (model.Job, error) {
	return s.store.SetStatus(ctx, userID, jobID, model.JobPaused, s.now())
}

// Resume reactivates a paused job and makes it due now.
func (s *Service) Resume(ctx context.Context, userID, jobID string) (model.Job, error) {
	return s.store.SetStatus(ctx, userID, jobID, model.JobActive, s.now())
}

// List returns the user's jobs, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]model.Job, error) {
	return s.store.List(ctx, userID)
}
