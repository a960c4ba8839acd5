package discovery

import (
	"context"
	"errors"

	"github.com/truleado/truleado-sub002/internal/model"
	"github.com/truleado/truleado-sub002/internal/platform"
)

// Pair is one (community, term) search.
type Pair struct {
	Community string
	Term      string
}

// Plan returns every community × term pair, community-major.
func Plan(communities, terms []string) []Pair {
	pairs := make([]Pair, 0, len(communities)*len(terms))
	for _, c := range communities {
		for _, t := range terms {
			pairs = append(pairs, Pair{Community: c, Term: t})
		}
	}
	return pairs
}

// FanOutResult aggregates the per-pair searches of one execution.
type FanOutResult struct {
	Candidates  []model.Candidate
	Pairs       int
	FailedPairs int
	Excluded    int
	// LastErr is the most recent per-pair failure, kept for the job summary.
	LastErr error
	// Fatal stops the fan-out: an expired credential or the caller's
	// context ending.
	Fatal error
}

// FanOut runs each pair through the searcher in order. A retryable (or
// otherwise unclassified) failure counts as zero results for that pair.
// Pairs for one owner are serialized by the searcher itself.
func (p *Pipeline) FanOut(ctx context.Context, ownerID string, pairs []Pair, limit int) FanOutResult {
	res := FanOutResult{Pairs: len(pairs)}
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			res.Fatal = err
			res.FailedPairs += len(pairs) - i
			break
		}

		found, err := p.searcher.Search(ctx, ownerID, platform.Query{
			Community: pair.Community,
			Term:      pair.Term,
			Sort:      p.opts.Sort,
			Window:    p.opts.Window,
			Limit:     limit,
		})
		if err != nil {
			res.FailedPairs++
			res.LastErr = err
			if errors.Is(err, platform.ErrCredentialExpired) || ctx.Err() != nil {
				res.Fatal = err
				res.FailedPairs += len(pairs) - i - 1
				break
			}
			p.logger.Warn("search failed, continuing",
				"userId", ownerID, "community", pair.Community, "term", pair.Term,
				"retryable", platform.IsRetryable(err), "err", err)
			continue
		}

		for _, c := range found {
			if ContainsExcluded(c.Title, c.Body, p.opts.ExcludeFlags) {
				res.Excluded++
				continue
			}
			if c.Community == "" {
				c.Community = pair.Community
			}
			c.SearchTerm = pair.Term
			res.Candidates = append(res.Candidates, c)
		}
	}
	return res
}
