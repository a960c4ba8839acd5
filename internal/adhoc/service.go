// Package adhoc is the synchronous, quota-limited "find now" path. It runs
// one bounded fan-out through the discovery pipeline without touching the
// job store and returns the results to the caller.
package adhoc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/truleado/truleado-sub002/internal/discovery"
	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/leads"
	"github.com/truleado/truleado-sub002/internal/model"
	"github.com/truleado/truleado-sub002/internal/products"
)

// Result caps.
const (
	MaxResults      = 15
	MaxPerCommunity = 3
	// maxPairs bounds the fan-out of one request.
	maxPairs = 10
)

// Request is one interactive search.
type Request struct {
	UserID      string   `json:"-"`
	ProductID   string   `json:"productId,omitempty"`
	Query       string   `json:"query"`
	Communities []string `json:"communities,omitempty"`
	Terms       []string `json:"terms,omitempty"`
}

// Response is returned to the caller and mirrored in adhoc_results.
type Response struct {
	SearchID    string                  `json:"searchId"`
	Communities []string                `json:"communities"`
	Terms       []string                `json:"terms"`
	Usage       Usage                   `json:"usage"`
	FailedPairs int                     `json:"failedPairs"`
	Results     []model.ScoredCandidate `json:"results"`
}

// Service runs ad-hoc searches.
type Service struct {
	quota    Quota
	parser   QueryParser
	products jobs.ProductReader
	pipeline *discovery.Pipeline
	results  ResultStore
	now      func() time.Time
	logger   *slog.Logger
}

// NewService wires a Service. A nil parser uses KeywordParser.
func NewService(quota Quota, parser QueryParser, productReader jobs.ProductReader, pipeline *discovery.Pipeline, results ResultStore, logger *slog.Logger) *Service {
	if parser == nil {
		parser = KeywordParser{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		quota:    quota,
		parser:   parser,
		products: productReader,
		pipeline: pipeline,
		results:  results,
		now:      time.Now,
		logger:   logger,
	}
}

// Search validates req, consumes one unit of quota and runs the fan-out.
// ErrQuotaExceeded is returned before any external call.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	var product model.Product
	if req.ProductID != "" {
		p, err := s.products.Get(ctx, req.ProductID)
		if err != nil {
			return Response{}, err
		}
		if p.UserID != req.UserID {
			return Response{}, jobs.ErrNotFound
		}
		product = p
	}

	communities, terms := s.resolve(req, product)
	if len(communities) == 0 {
		return Response{}, &jobs.ValidationError{Msg: "no communities: name one as r/<community> or pass a product"}
	}
	if len(terms) == 0 {
		return Response{}, &jobs.ValidationError{Msg: "query is empty"}
	}

	usage, err := s.quota.Consume(ctx, req.UserID, s.now())
	if err != nil {
		return Response{}, err
	}

	pairs := discovery.Plan(communities, terms)
	if len(pairs) > maxPairs {
		pairs = pairs[:maxPairs]
	}
	fo := s.pipeline.FanOut(ctx, req.UserID, pairs, MaxResults)
	if fo.Fatal != nil {
		return Response{}, fmt.Errorf("ad-hoc search: %w", fo.Fatal)
	}

	scorer := s.pipeline.Scorer()
	// Without a product the query itself stands in for the product name.
	if product.Name == "" {
		product.Name = terms[0]
	}
	accepted, _ := scorer.Rank(product, terms, fo.Candidates)
	top := Cap(leads.Dedupe(accepted), MaxPerCommunity, MaxResults)
	scorer.Enrich(ctx, product, top)

	resp := Response{
		SearchID:    uuid.NewString(),
		Communities: communities,
		Terms:       terms,
		Usage:       usage,
		FailedPairs: fo.FailedPairs,
		Results:     top,
	}
	if err := s.results.Save(ctx, resp.SearchID, req, top); err != nil {
		s.logger.Warn("save ad-hoc results failed", "userId", req.UserID, "searchId", resp.SearchID, "err", err)
	}
	return resp, nil
}

// resolve picks communities and terms: explicit request fields first, then
// the parser, then the product.
func (s *Service) resolve(req Request, product model.Product) (communities, terms []string) {
	parsed := s.parser.Parse(req.Query)

	communities = products.Normalize(req.Communities)
	if len(communities) == 0 {
		communities = parsed.Communities
	}
	if len(communities) == 0 {
		communities = product.Communities
	}

	terms = req.Terms
	if len(terms) == 0 {
		terms = parsed.Terms
	}
	if len(terms) == 0 && product.Name != "" {
		terms = discovery.TermsFor(product)
	}
	return communities, terms
}

// Cap orders scored by heuristic score (highest first, stable) and keeps at
// most perCommunity results per community and total overall.
func Cap(scored []model.ScoredCandidate, perCommunity, total int) []model.ScoredCandidate {
	sorted := make([]model.ScoredCandidate, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].HeuristicScore > sorted[j].HeuristicScore
	})

	out := make([]model.ScoredCandidate, 0, total)
	per := make(map[string]int)
	for _, sc := range sorted {
		if len(out) == total {
			break
		}
		if per[sc.Community] == perCommunity {
			continue
		}
		per[sc.Community]++
		out = append(out, sc)
	}
	return out
}
