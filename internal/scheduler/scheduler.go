// Package scheduler runs the monitoring loop: on every tick it claims due
// jobs and executes them on a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/truleado/truleado-sub002/internal/jobs"
)

// leaseMargin is added to the execution budget so a lease never expires
// before its execution has been cancelled and completed.
const leaseMargin = time.Minute

// maxBatchesPerTick bounds how long one tick keeps claiming work: at most
// this many worker-counts of jobs are claimed per tick.
const maxBatchesPerTick = 20

// Options configure a Scheduler.
type Options struct {
	Tick    time.Duration
	Workers int
	Budget  time.Duration
}

// Scheduler wraps robfig/cron and manages the dispatch loop.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	store    jobs.Store
	exec     *Executor
	status   StatusRecorder
	workers  int
	tick     time.Duration
	lease    time.Duration
	instance string
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	startup  sync.WaitGroup
	quit     chan struct{}
}

// New creates a Scheduler that fires every opts.Tick.
func New(store jobs.Store, exec *Executor, status StatusRecorder, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.SkipIfStillRunning(cronLog)),
		),
		spec:     fmt.Sprintf("@every %s", opts.Tick),
		store:    store,
		exec:     exec,
		status:   status,
		workers:  opts.Workers,
		tick:     opts.Tick,
		lease:    opts.Budget + leaseMargin,
		instance: uuid.NewString(),
		now:      time.Now,
		logger:   logger,
		inflight: make(map[string]bool),
		quit:     make(chan struct{}),
	}
}

// Start registers the tick and starts the cron loop. It also runs one tick
// immediately so due jobs do not wait for the first interval, and keeps the
// status record fresh every interval while a long tick is still running.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	if err := s.status.Started(ctx, s.instance, s.now()); err != nil {
		s.logger.Warn("record scheduler start failed", "err", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec, "workers", s.workers, "instance", s.instance)

	s.startup.Add(2)
	go func() {
		defer s.startup.Done()
		s.Tick(ctx)
	}()
	go func() {
		defer s.startup.Done()
		s.heartbeat(ctx)
	}()
	return nil
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.status.Alive(context.WithoutCancel(ctx), s.now()); err != nil {
				s.logger.Warn("record scheduler heartbeat failed", "err", err)
			}
		}
	}
}

// Stop halts the cron loop, waits for running executions and marks the
// status record stopped.
func (s *Scheduler) Stop(ctx context.Context) {
	close(s.quit)
	drained := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.startup.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with executions still running")
	}
	if err := s.status.Stopped(context.WithoutCancel(ctx), s.now()); err != nil {
		s.logger.Warn("record scheduler stop failed", "err", err)
	}
	s.logger.Info("scheduler stopped")
}

// TickReport summarizes one tick.
type TickReport struct {
	Claimed    int
	Dispatched int
	Skipped    int
	Failed     int
}

// Tick claims due jobs and runs them on the pool until no due jobs remain.
// A job is claimed only when a worker is free to run it, so one slow
// execution never holds back the others.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var (
		report TickReport
		mu     sync.Mutex
		g      errgroup.Group
	)
	g.SetLimit(s.workers)
	freed := make(chan struct{}, s.workers)
	running := 0

claim:
	for report.Claimed < maxBatchesPerTick*s.workers && ctx.Err() == nil {
		if running == s.workers {
			select {
			case <-freed:
				running--
			case <-ctx.Done():
				break claim
			}
		}
	drain:
		for {
			select {
			case <-freed:
				running--
			default:
				break drain
			}
		}

		want := s.workers - running
		due, err := s.store.ClaimDue(ctx, s.now(), s.lease, want)
		if err != nil {
			s.logger.Error("claim due jobs failed", "err", err)
			break
		}
		report.Claimed += len(due)

		for _, job := range due {
			if !s.begin(job.ID) {
				// Only a run whose own lease ran out can still be in flight
				// here; the fresh lease keeps other instances off it.
				report.Skipped++
				continue
			}
			report.Dispatched++
			running++
			job := job
			g.Go(func() error {
				defer func() { freed <- struct{}{} }()
				defer s.end(job.ID)
				rep, err := s.exec.Execute(ctx, job)
				mu.Lock()
				defer mu.Unlock()
				if err != nil || rep.Outcome == jobs.Failed.String() {
					report.Failed++
				}
				return nil
			})
		}

		if len(due) < want {
			break
		}
	}
	_ = g.Wait()

	if err := s.status.Ticked(context.WithoutCancel(ctx), s.now(), report.Dispatched); err != nil {
		s.logger.Warn("record scheduler tick failed", "err", err)
	}
	if report.Claimed > 0 {
		s.logger.Info("tick complete", "claimed", report.Claimed, "dispatched", report.Dispatched,
			"skipped", report.Skipped, "failed", report.Failed)
	}
	return report
}

// RunNow force-runs one job for userID synchronously, outside the tick.
// It returns jobs.ErrAlreadyClaimed when the job is executing elsewhere.
// As in Tick, the store lease is taken before the in-process mark.
func (s *Scheduler) RunNow(ctx context.Context, userID, jobID string) (Report, error) {
	job, err := s.store.Claim(ctx, jobID, userID, s.now(), s.lease)
	if err != nil {
		return Report{}, err
	}
	if !s.begin(jobID) {
		return Report{}, jobs.ErrAlreadyClaimed
	}
	defer s.end(jobID)

	rep, err := s.exec.Execute(ctx, job)
	if err != nil {
		return Report{}, fmt.Errorf("record force-run: %w", err)
	}
	return rep, nil
}

// Status returns the persisted scheduler record.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	return s.status.Read(ctx)
}

// InFlight returns the number of executions running in this process.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Scheduler) begin(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[jobID] {
		return false
	}
	s.inflight[jobID] = true
	return true
}

func (s *Scheduler) end(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, jobID)
}
