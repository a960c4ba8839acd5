// Package leads turns scored candidates into persisted leads, at most once
// per (user, external post id).
package leads

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/truleado/truleado-sub002/internal/model"
)

// InsertOutcome is the result of an insert-if-absent. Conflict is the
// expected WriteConflict case, not an error.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	Conflict
)

// Store is the lead table as seen by the writer.
type Store interface {
	// InsertIfAbsent inserts lead unless (UserID, ExternalID) exists. The
	// check and insert are atomic with respect to concurrent writers.
	InsertIfAbsent(ctx context.Context, lead model.Lead) (InsertOutcome, error)
	// KnownIDs returns the subset of externalIDs already stored for userID.
	KnownIDs(ctx context.Context, userID string, externalIDs []string) (map[string]bool, error)
}

// Counts summarizes one write batch.
type Counts struct {
	Considered  int `json:"candidatesConsidered"`
	Written     int `json:"leadsWritten"`
	Duplicates  int `json:"duplicatesSkipped"`
	WriteErrors int `json:"writeErrors"`
}

// Writer persists scored candidates as new leads.
type Writer struct {
	store  Store
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

// NewWriter returns a Writer over store.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:  store,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
}

// Write de-duplicates scored in memory, then inserts each survivor. A row
// that fails to write is logged and counted; the batch continues. Once ctx
// is done the remaining rows are counted as write errors.
func (w *Writer) Write(ctx context.Context, userID, productID string, scored []model.ScoredCandidate) Counts {
	counts := Counts{Considered: len(scored)}

	unique := Dedupe(scored)
	counts.Duplicates = len(scored) - len(unique)

	for i, sc := range unique {
		if ctx.Err() != nil {
			counts.WriteErrors += len(unique) - i
			w.logger.Warn("lead batch interrupted", "userId", userID, "remaining", len(unique)-i, "err", ctx.Err())
			break
		}

		outcome, err := w.store.InsertIfAbsent(ctx, w.toLead(userID, productID, sc))
		if err != nil {
			counts.WriteErrors++
			w.logger.Warn("lead insert failed", "userId", userID, "postId", sc.ExternalID, "err", err)
			continue
		}
		switch outcome {
		case Inserted:
			counts.Written++
		case Conflict:
			counts.Duplicates++
		}
	}
	return counts
}

func (w *Writer) toLead(userID, productID string, sc model.ScoredCandidate) model.Lead {
	return model.Lead{
		ID:             w.newID(),
		UserID:         userID,
		ProductID:      productID,
		ExternalID:     sc.ExternalID,
		Title:          sc.Title,
		Body:           sc.Body,
		Community:      sc.Community,
		Author:         sc.Author,
		URL:            sc.URL,
		Score:          sc.Score,
		NumComments:    sc.NumComments,
		RelevanceScore: sc.HeuristicScore,
		SearchTerm:     sc.SearchTerm,
		AI:             sc.AI,
		Status:         model.LeadNew,
		PostedAt:       sc.CreatedAt,
		CreatedAt:      w.now(),
	}
}

// Dedupe keeps one instance per external id: the highest heuristic score,
// then the highest AI quality, then the first seen. Output keeps first-seen
// order.
func Dedupe(scored []model.ScoredCandidate) []model.ScoredCandidate {
	index := make(map[string]int, len(scored))
	out := make([]model.ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		i, ok := index[sc.ExternalID]
		if !ok {
			index[sc.ExternalID] = len(out)
			out = append(out, sc)
			continue
		}
		if better(sc, out[i]) {
			out[i] = sc
		}
	}
	return out
}

func better(a, b model.ScoredCandidate) bool {
	if a.HeuristicScore != b.HeuristicScore {
		return a.HeuristicScore > b.HeuristicScore
	}
	return quality(a) > quality(b)
}

func quality(sc model.ScoredCandidate) int {
	if sc.AI == nil {
		return -1
	}
	return sc.AI.QualityScore
}
