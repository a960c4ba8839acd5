package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/truleado/truleado-sub002/internal/model"
)

// Scorer runs both stages with a single configurable gate.
type Scorer struct {
	oracle Oracle
	gate   int
	now    func() time.Time
	logger *slog.Logger
}

// NewScorer returns a Scorer. A nil oracle disables the AI stage; every
// candidate that clears the gate is then accepted heuristic-only.
func NewScorer(oracle Oracle, gate int, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{oracle: oracle, gate: gate, now: time.Now, logger: logger}
}

// WithClock replaces the clock used for the recency signal.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Gate returns the minimum heuristic score for acceptance.
func (s *Scorer) Gate() int { return s.gate }

// Rank applies stage 1 and returns the candidates at or above the gate, in
// input order, plus the number rejected.
func (s *Scorer) Rank(p model.Product, terms []string, cands []model.Candidate) (accepted []model.ScoredCandidate, rejected int) {
	now := s.now()
	for _, c := range cands {
		h := Heuristic(c, p.Name, terms, now)
		if h < s.gate {
			rejected++
			continue
		}
		accepted = append(accepted, model.ScoredCandidate{Candidate: c, HeuristicScore: h})
	}
	return accepted, rejected
}

// EnrichStats counts stage-2 outcomes.
type EnrichStats struct {
	Analyzed int
	Failed   int
}

// Enrich runs stage 2 on every candidate in place. A failed call leaves the
// candidate's AI field nil; it is never dropped. Enrich stops early only when
// ctx is done.
func (s *Scorer) Enrich(ctx context.Context, p model.Product, scored []model.ScoredCandidate) EnrichStats {
	var stats EnrichStats
	if s.oracle == nil {
		return stats
	}
	for i := range scored {
		if ctx.Err() != nil {
			break
		}
		ai, err := s.oracle.Analyze(ctx, scored[i].Candidate, p)
		if err != nil {
			stats.Failed++
			s.logger.Warn("ai scoring failed, keeping heuristic score",
				"postId", scored[i].ExternalID, "heuristic", scored[i].HeuristicScore, "err", err)
			continue
		}
		scored[i].AI = ai
		stats.Analyzed++
	}
	return stats
}
