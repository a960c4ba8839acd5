package adhoc_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/truleado/truleado-sub002/internal/adhoc"
	"github.com/truleado/truleado-sub002/internal/discovery"
	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/leads"
	"github.com/truleado/truleado-sub002/internal/model"
	"github.com/truleado/truleado-sub002/internal/platform"
	"github.com/truleado/truleado-sub002/internal/products"
	"github.com/truleado/truleado-sub002/internal/scoring"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// ── fakes ──────────────────────────────────────────────────────────────────

type memQuota struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

func (q *memQuota) Consume(_ context.Context, userID string, at time.Time) (adhoc.Usage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.counts == nil {
		q.counts = make(map[string]int)
	}
	key := userID + "|" + adhoc.Period(at)
	if q.counts[key] >= q.limit {
		return adhoc.Usage{}, adhoc.ErrQuotaExceeded
	}
	q.counts[key]++
	return adhoc.Usage{Period: adhoc.Period(at), Count: q.counts[key], Limit: q.limit}, nil
}

// perCommunity returns n strong posts for every community searched.
type perCommunity struct {
	mu    sync.Mutex
	n     int
	calls int
	err   error
}

func (s *perCommunity) Search(_ context.Context, _ string, q platform.Query) ([]model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.Candidate, s.n)
	for i := range out {
		out[i] = model.Candidate{
			ExternalID:  fmt.Sprintf("%s-%d", q.Community, i),
			Community:   q.Community,
			Title:       "Looking for an invoice tool, any advice?",
			NumComments: i,
			CreatedAt:   now.Add(-time.Hour),
		}
	}
	return out, nil
}

type memResults struct {
	mu    sync.Mutex
	saved map[string][]model.ScoredCandidate
}

func (m *memResults) Save(_ context.Context, searchID string, _ adhoc.Request, results []model.ScoredCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string][]model.ScoredCandidate)
	}
	m.saved[searchID] = results
	return nil
}

type noLeads struct{}

func (noLeads) InsertIfAbsent(context.Context, model.Lead) (leads.InsertOutcome, error) {
	return leads.Inserted, nil
}

func (noLeads) KnownIDs(context.Context, string, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

type productMap map[string]model.Product

func (m productMap) Get(_ context.Context, id string) (model.Product, error) {
	p, ok := m[id]
	if !ok {
		return model.Product{}, products.ErrNotFound
	}
	return p, nil
}

func newService(searcher platform.Searcher, quota adhoc.Quota, results adhoc.ResultStore) *adhoc.Service {
	scorer := scoring.NewScorer(nil, 5, nil).WithClock(func() time.Time { return now })
	pipeline := discovery.NewPipeline(searcher, scorer, noLeads{}, discovery.Options{Sort: "relevance", Window: "month", Limit: 25}, nil)
	prods := productMap{
		"p1": {ID: "p1", UserID: "u1", Name: "Billr", Communities: []string{"freelance", "smallbusiness"}, Status: model.ProductActive},
	}
	return adhoc.NewService(quota, nil, prods, pipeline, results, nil)
}

// ── tests ──────────────────────────────────────────────────────────────────

func TestSearch_QuotaEnforcedBeforeExternalCalls(t *testing.T) {
	searcher := &perCommunity{n: 1}
	svc := newService(searcher, &memQuota{limit: 2}, &memResults{})
	req := adhoc.Request{UserID: "u1", Query: "invoice tool r/freelance"}

	for i := 0; i < 2; i++ {
		if _, err := svc.Search(context.Background(), req); err != nil {
			t.Fatalf("search %d: unexpected error: %v", i+1, err)
		}
	}
	callsBefore := searcher.calls

	_, err := svc.Search(context.Background(), req)
	if !errors.Is(err, adhoc.ErrQuotaExceeded) {
		t.Fatalf("third search err = %v, want ErrQuotaExceeded", err)
	}
	if searcher.calls != callsBefore {
		t.Errorf("quota-exceeded search made %d external calls", searcher.calls-callsBefore)
	}
}

func TestSearch_CapsResults(t *testing.T) {
	searcher := &perCommunity{n: 6}
	results := &memResults{}
	svc := newService(searcher, &memQuota{limit: 10}, results)

	resp, err := svc.Search(context.Background(), adhoc.Request{
		UserID:      "u1",
		Query:       "invoice tool",
		Communities: []string{"a", "b", "c", "d", "e", "f"},
	})
	if err != nil {
		t.Fatalf("Search() unexpected error: %v", err)
	}
	if len(resp.Results) != adhoc.MaxResults {
		t.Errorf("got %d results, want %d", len(resp.Results), adhoc.MaxResults)
	}
	per := map[string]int{}
	for _, r := range resp.Results {
		per[r.Community]++
	}
	for c, n := range per {
		if n > adhoc.MaxPerCommunity {
			t.Errorf("community %s has %d results, want ≤ %d", c, n, adhoc.MaxPerCommunity)
		}
	}
	if len(results.saved[resp.SearchID]) != len(resp.Results) {
		t.Errorf("saved %d results, want %d", len(results.saved[resp.SearchID]), len(resp.Results))
	}
	if resp.Usage.Count != 1 || resp.Usage.Limit != 10 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestSearch_FallsBackToProduct(t *testing.T) {
	searcher := &perCommunity{n: 1}
	svc := newService(searcher, &memQuota{limit: 5}, &memResults{})

	resp, err := svc.Search(context.Background(), adhoc.Request{UserID: "u1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("Search() unexpected error: %v", err)
	}
	if len(resp.Communities) != 2 || resp.Terms[0] != "Billr" {
		t.Errorf("resolved communities=%q terms=%q", resp.Communities, resp.Terms)
	}
}

func TestSearch_ValidationDoesNotConsumeQuota(t *testing.T) {
	quota := &memQuota{limit: 1}
	svc := newService(&perCommunity{}, quota, &memResults{})

	var ve *jobs.ValidationError
	if _, err := svc.Search(context.Background(), adhoc.Request{UserID: "u1", Query: "invoice tool"}); !errors.As(err, &ve) {
		t.Fatalf("no communities: err = %v, want ValidationError", err)
	}
	if _, err := svc.Search(context.Background(), adhoc.Request{UserID: "u1", Query: "r/freelance"}); !errors.As(err, &ve) {
		t.Fatalf("no terms: err = %v, want ValidationError", err)
	}
	if _, err := svc.Search(context.Background(), adhoc.Request{UserID: "u1", Query: "invoice r/freelance"}); err != nil {
		t.Errorf("valid search after validation errors: %v", err)
	}
}

func TestSearch_ForeignProduct(t *testing.T) {
	svc := newService(&perCommunity{}, &memQuota{limit: 1}, &memResults{})
	if _, err := svc.Search(context.Background(), adhoc.Request{UserID: "u2", ProductID: "p1", Query: "x"}); !errors.Is(err, jobs.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSearch_CredentialExpiredSurfaces(t *testing.T) {
	searcher := &perCommunity{err: platform.ErrCredentialExpired}
	svc := newService(searcher, &memQuota{limit: 1}, &memResults{})
	_, err := svc.Search(context.Background(), adhoc.Request{UserID: "u1", Query: "invoice r/freelance"})
	if !errors.Is(err, platform.ErrCredentialExpired) {
		t.Errorf("err = %v, want ErrCredentialExpired", err)
	}
}

func TestCap(t *testing.T) {
	in := []model.ScoredCandidate{
		{Candidate: model.Candidate{ExternalID: "a1", Community: "a"}, HeuristicScore: 5},
		{Candidate: model.Candidate{ExternalID: "a2", Community: "a"}, HeuristicScore: 9},
		{Candidate: model.Candidate{ExternalID: "a3", Community: "a"}, HeuristicScore: 7},
		{Candidate: model.Candidate{ExternalID: "b1", Community: "b"}, HeuristicScore: 8},
	}
	got := adhoc.Cap(in, 2, 3)
	ids := make([]string, len(got))
	for i, sc := range got {
		ids[i] = sc.ExternalID
	}
	if fmt.Sprint(ids) != "[a2 b1 a3]" {
		t.Errorf("Cap() = %v, want [a2 b1 a3]", ids)
	}
}
