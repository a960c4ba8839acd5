package platform

import (
	"context"

	"github.com/truleado/truleado-sub002/internal/model"
)

// Query is one (community, term) search request.
type Query struct {
	Community string
	Term      string
	Sort      string // relevance | new | hot | top | comments
	Window    string // hour | day | week | month | year | all
	Limit     int
}

// Searcher returns one page of candidate posts for q on behalf of ownerID.
//
// Errors are ErrCredentialExpired (fatal for the owner's job), a
// *RetryableError (treat as zero results for this pair), or the caller's
// own context error.
type Searcher interface {
	Search(ctx context.Context, ownerID string, q Query) ([]model.Candidate, error)
}
