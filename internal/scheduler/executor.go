package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/truleado/truleado-sub002/internal/discovery"
	"github.com/truleado/truleado-sub002/internal/events"
	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/model"
	"github.com/truleado/truleado-sub002/internal/products"
)

// completeTimeout bounds the job-row update after an execution. It runs on
// a context detached from the execution budget so a timed-out run is still
// rescheduled.
const completeTimeout = 10 * time.Second

// Runner is the discovery pipeline as seen by the executor.
type Runner interface {
	Run(ctx context.Context, product model.Product) discovery.Result
}

// Executor runs one claimed job end to end and records its outcome.
type Executor struct {
	store    jobs.Store
	products jobs.ProductReader
	runner   Runner
	events   events.Publisher
	budget   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewExecutor returns an Executor. budget is the hard wall-clock limit of
// one execution.
func NewExecutor(store jobs.Store, productReader jobs.ProductReader, runner Runner, pub events.Publisher, budget time.Duration, logger *slog.Logger) *Executor {
	if pub == nil {
		pub = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    store,
		products: productReader,
		runner:   runner,
		events:   pub,
		budget:   budget,
		now:      time.Now,
		logger:   logger,
	}
}

// Report is what one execution produced.
type Report struct {
	JobID   string           `json:"jobId"`
	Outcome string           `json:"outcome"`
	Message string           `json:"message,omitempty"`
	Status  model.JobStatus  `json:"status"`
	NextRun time.Time        `json:"nextRun"`
	Result  discovery.Result `json:"result"`
}

// Execute runs job, which the caller must have claimed. The returned error
// is non-nil only when the job row itself could not be updated.
func (e *Executor) Execute(ctx context.Context, job model.Job) (Report, error) {
	log := e.logger.With("jobId", job.ID, "productId", job.ProductID, "userId", job.UserID)

	runCtx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	var (
		res     discovery.Result
		outcome jobs.Outcome
	)
	product, err := e.products.Get(runCtx, job.ProductID)
	switch {
	case errors.Is(err, products.ErrNotFound):
		outcome = jobs.Outcome{Kind: jobs.Failed, Message: "product not found"}
	case err != nil:
		outcome = jobs.Outcome{Kind: jobs.Failed, Message: "load product: " + err.Error()}
	case product.Status != model.ProductActive:
		outcome = jobs.Outcome{Kind: jobs.ProductPaused, Message: "product is " + string(product.Status)}
	default:
		res = e.runner.Run(runCtx, product)
		outcome = res.Outcome()
	}

	completion := jobs.Apply(job, outcome, e.now())

	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer storeCancel()
	if err := e.store.Complete(storeCtx, job.ID, completion); err != nil {
		log.Error("complete job failed", "err", err)
		return Report{}, err
	}

	report := Report{
		JobID:   job.ID,
		Outcome: outcome.Kind.String(),
		Message: outcome.Message,
		Status:  completion.Status,
		NextRun: completion.NextRun,
		Result:  res,
	}
	e.publish(storeCtx, job, outcome, res)

	if outcome.Kind == jobs.Failed {
		log.Warn("job failed", "reason", outcome.Message, "nextRun", completion.NextRun)
	} else {
		log.Info("job completed", "outcome", report.Outcome, "written", res.Leads.Written, "nextRun", completion.NextRun)
	}
	return report, nil
}

func (e *Executor) publish(ctx context.Context, job model.Job, outcome jobs.Outcome, res discovery.Result) {
	ev := events.Event{
		JobID:       job.ID,
		UserID:      job.UserID,
		ProductID:   job.ProductID,
		LeadsNew:    res.Leads.Written,
		Duplicates:  res.Leads.Duplicates,
		FailedPairs: res.FailedPairs,
		Message:     outcome.Message,
		At:          e.now().UTC(),
	}
	switch {
	case outcome.Kind == jobs.Failed:
		ev.Type = events.TypeJobFailed
	case res.Leads.Written > 0:
		ev.Type = events.TypeLeadsDiscovered
	default:
		return
	}
	e.events.Publish(ctx, ev)
}
