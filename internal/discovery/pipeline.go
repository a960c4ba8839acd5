// Package discovery is the reusable lead-discovery pipeline: term
// generation, per-pair platform fan-out, two-stage scoring and the lead
// write batch. The scheduler, the force-run trigger and the ad-hoc path all
// drive it with their own policy.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/leads"
	"github.com/truleado/truleado-sub002/internal/model"
	"github.com/truleado/truleado-sub002/internal/platform"
	"github.com/truleado/truleado-sub002/internal/scoring"
	"github.com/truleado/truleado-sub002/internal/terms"
)

var (
	// ErrNoCommunities means the product lists no target communities.
	ErrNoCommunities = errors.New("no communities configured")
	// ErrNoTerms means neither terms nor a product name are available.
	ErrNoTerms = errors.New("no search terms available")
)

// Options are the per-call search parameters.
type Options struct {
	Sort         string
	Window       string
	Limit        int
	ExcludeFlags []string
}

// Pipeline runs one discovery execution for one product.
type Pipeline struct {
	searcher platform.Searcher
	scorer   *scoring.Scorer
	store    leads.Store
	writer   *leads.Writer
	opts     Options
	logger   *slog.Logger
}

// NewPipeline wires a Pipeline. store backs both the pre-AI known-lead
// filter and the insert-if-absent writes.
func NewPipeline(searcher platform.Searcher, scorer *scoring.Scorer, store leads.Store, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		searcher: searcher,
		scorer:   scorer,
		store:    store,
		writer:   leads.NewWriter(store, logger),
		opts:     opts,
		logger:   logger,
	}
}

// Scorer exposes the pipeline's scorer to other trigger surfaces.
func (p *Pipeline) Scorer() *scoring.Scorer { return p.scorer }

// Result summarizes one execution.
type Result struct {
	Terms       []string     `json:"terms"`
	Pairs       int          `json:"pairs"`
	FailedPairs int          `json:"failedPairs"`
	Fetched     int          `json:"candidatesFetched"`
	Excluded    int          `json:"candidatesExcluded"`
	BelowGate   int          `json:"belowGate"`
	AIAnalyzed  int          `json:"aiAnalyzed"`
	AIFailed    int          `json:"aiFailed"`
	Leads       leads.Counts `json:"leads"`
	Message     string       `json:"message,omitempty"`

	// Err is the execution-level failure, if any.
	Err     error `json:"-"`
	lastErr error
}

// Outcome classifies r for the job state machine.
func (r Result) Outcome() jobs.Outcome {
	switch {
	case errors.Is(r.Err, platform.ErrCredentialExpired):
		return jobs.Outcome{Kind: jobs.Failed, Message: "platform credential expired: reconnect the account"}
	case errors.Is(r.Err, context.DeadlineExceeded):
		return jobs.Outcome{Kind: jobs.Failed, Message: "timeout: execution exceeded its budget"}
	case r.Err != nil:
		return jobs.Outcome{Kind: jobs.Failed, Message: r.Err.Error()}
	case r.Pairs > 0 && r.FailedPairs == r.Pairs:
		return jobs.Outcome{Kind: jobs.Failed, Message: fmt.Sprintf("all %d searches failed: %v", r.Pairs, r.lastErr)}
	case r.FailedPairs > 0 || r.Leads.WriteErrors > 0:
		return jobs.Outcome{Kind: jobs.Partial, Message: r.partialSummary()}
	}
	return jobs.Outcome{Kind: jobs.Succeeded}
}

func (r Result) partialSummary() string {
	switch {
	case r.FailedPairs > 0 && r.Leads.WriteErrors > 0:
		return fmt.Sprintf("%d of %d searches failed; %d lead writes failed", r.FailedPairs, r.Pairs, r.Leads.WriteErrors)
	case r.FailedPairs > 0:
		return fmt.Sprintf("%d of %d searches failed: %v", r.FailedPairs, r.Pairs, r.lastErr)
	}
	return fmt.Sprintf("%d lead writes failed", r.Leads.WriteErrors)
}

// Run executes the full pipeline for product. Per-pair and per-candidate
// failures are aggregated into the result; they never abort the run.
func (p *Pipeline) Run(ctx context.Context, product model.Product) Result {
	log := p.logger.With("productId", product.ID, "userId", product.UserID)

	var res Result
	if len(product.Communities) == 0 {
		res.Err = ErrNoCommunities
		return res
	}
	res.Terms = TermsFor(product)
	if len(res.Terms) == 0 {
		res.Err = ErrNoTerms
		return res
	}

	pairs := Plan(product.Communities, res.Terms)
	fo := p.FanOut(ctx, product.UserID, pairs, p.opts.Limit)
	res.Pairs, res.FailedPairs = fo.Pairs, fo.FailedPairs
	res.Fetched, res.Excluded = len(fo.Candidates)+fo.Excluded, fo.Excluded
	res.lastErr = fo.LastErr
	res.Err = fo.Fatal

	if ctx.Err() == nil {
		p.score(ctx, product, fo.Candidates, &res)
	}
	if res.Err == nil && ctx.Err() != nil {
		res.Err = fmt.Errorf("execution interrupted: %w", ctx.Err())
	}

	res.Message = res.Outcome().Message
	log.Info("discovery run finished",
		"pairs", res.Pairs, "failedPairs", res.FailedPairs,
		"fetched", res.Fetched, "belowGate", res.BelowGate,
		"written", res.Leads.Written, "duplicates", res.Leads.Duplicates,
		"writeErrors", res.Leads.WriteErrors, "err", res.Err)
	return res
}

// score runs stage 1, de-duplicates, drops posts that are already leads,
// runs stage 2 on the rest and writes them.
func (p *Pipeline) score(ctx context.Context, product model.Product, cands []model.Candidate, res *Result) {
	accepted, rejected := p.scorer.Rank(product, res.Terms, cands)
	res.BelowGate = rejected

	unique := leads.Dedupe(accepted)
	fresh := p.dropKnown(ctx, product.UserID, unique)

	stats := p.scorer.Enrich(ctx, product, fresh)
	res.AIAnalyzed, res.AIFailed = stats.Analyzed, stats.Failed

	written := p.writer.Write(ctx, product.UserID, product.ID, fresh)
	res.Leads = leads.Counts{
		Considered:  len(accepted),
		Written:     written.Written,
		Duplicates:  len(accepted) - len(fresh) + written.Duplicates,
		WriteErrors: written.WriteErrors,
	}
}

// dropKnown removes candidates already stored as leads so the oracle is not
// paid for them. A lookup failure keeps every candidate; the insert-if-absent
// write still guarantees uniqueness.
func (p *Pipeline) dropKnown(ctx context.Context, userID string, scored []model.ScoredCandidate) []model.ScoredCandidate {
	if len(scored) == 0 {
		return scored
	}
	ids := make([]string, len(scored))
	for i, sc := range scored {
		ids[i] = sc.ExternalID
	}
	known, err := p.store.KnownIDs(ctx, userID, ids)
	if err != nil {
		p.logger.Warn("known-lead lookup failed, relying on insert conflicts", "userId", userID, "err", err)
		return scored
	}
	fresh := make([]model.ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		if !known[sc.ExternalID] {
			fresh = append(fresh, sc)
		}
	}
	return fresh
}

// TermsFor generates the product's search terms, falling back to the
// product name alone.
func TermsFor(product model.Product) []string {
	ts := terms.Generate(product)
	if len(ts) == 0 && product.Name != "" {
		ts = []string{product.Name}
	}
	return ts
}
