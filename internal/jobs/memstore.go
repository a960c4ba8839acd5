package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/truleado/truleado-sub002/internal/model"
)

// MemoryStore is an in-process Store with the same claim semantics as
// PostgresStore. It backs tests and single-node development runs.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	locked map[string]time.Time
	seq    int
	order  map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*model.Job),
		locked: make(map[string]time.Time),
		order:  make(map[string]int),
	}
}

// Put inserts or replaces a job verbatim.
func (m *MemoryStore) Put(j model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.Kind == "" {
		j.Kind = model.JobKindCommunityMonitoring
	}
	if _, ok := m.order[j.ID]; !ok {
		m.seq++
		m.order[j.ID] = m.seq
	}
	m.jobs[j.ID] = &j
}

// Get returns a copy of the job with id.
func (m *MemoryStore) Get(id string) (model.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}

func (m *MemoryStore) held(id string, now time.Time) bool {
	until, ok := m.locked[id]
	return ok && !until.Before(now)
}

func (m *MemoryStore) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]*model.Job, 0)
	for _, j := range m.jobs {
		if IsSchedulable(j.Status) && !j.NextRun.After(now) && !m.held(j.ID, now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].NextRun.Equal(due[b].NextRun) {
			return m.order[due[a].ID] < m.order[due[b].ID]
		}
		return due[a].NextRun.Before(due[b].NextRun)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]model.Job, 0, len(due))
	for _, j := range due {
		m.locked[j.ID] = now.Add(lease)
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (m *MemoryStore) Claim(_ context.Context, jobID, userID string, now time.Time, lease time.Duration) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || (userID != "" && j.UserID != userID) {
		return model.Job{}, ErrNotFound
	}
	if j.Status == model.JobPaused {
		return model.Job{}, ErrJobPaused
	}
	if m.held(jobID, now) {
		return model.Job{}, ErrAlreadyClaimed
	}
	m.locked[jobID] = now.Add(lease)
	return *j, nil
}

func (m *MemoryStore) Complete(_ context.Context, jobID string, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if j.Status != model.JobPaused {
		j.Status = c.Status
	}
	last := c.LastRun
	j.LastRun = &last
	j.NextRun = c.NextRun
	j.RunCount++
	j.ErrorMessage = c.ErrorMessage
	delete(m.locked, jobID)
	return nil
}

func (m *MemoryStore) Ensure(_ context.Context, userID, productID string, intervalMinutes int, now time.Time) (model.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.UserID == userID && j.ProductID == productID && j.Kind == model.JobKindCommunityMonitoring {
			if j.Status == model.JobPaused {
				j.Status = model.JobActive
				j.NextRun = now
				j.ErrorMessage = ""
			}
			return *j, false, nil
		}
	}
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	j := &model.Job{
		ID:              uuid.NewString(),
		UserID:          userID,
		ProductID:       productID,
		Kind:            model.JobKindCommunityMonitoring,
		Status:          model.JobActive,
		IntervalMinutes: intervalMinutes,
		NextRun:         now,
	}
	m.seq++
	m.order[j.ID] = m.seq
	m.jobs[j.ID] = j
	return *j, true, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, userID, jobID string, to model.JobStatus, now time.Time) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.UserID != userID {
		return model.Job{}, ErrNotFound
	}
	if !IsUserTransitionAllowed(j.Status, to) {
		return model.Job{}, &ValidationError{Msg: fmt.Sprintf("transition %s → %s is not allowed", j.Status, to)}
	}
	j.Status = to
	if to == model.JobActive {
		j.NextRun = now
		j.ErrorMessage = ""
	}
	return *j, nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]model.Job, 0)
	for _, j := range m.jobs {
		if j.UserID == userID {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return m.order[jobs[a].ID] > m.order[jobs[b].ID] })
	return jobs, nil
}

func (m *MemoryStore) CountByStatus(context.Context) (map[model.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[model.JobStatus]int)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}
