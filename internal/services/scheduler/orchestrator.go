package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
	"github.com/NordCoder/Reminderus/internal/services/delivery"
)

// ErrDispatchInProgress is returned by TriggerDispatch while another run holds the guard.
var ErrDispatchInProgress = errors.New("dispatch run already in progress")

type JobKind int

const (
	JobDispatch JobKind = iota
	JobReclaim
	JobHealth
)

var jobKinds = []JobKind{JobDispatch, JobReclaim, JobHealth}

func (k JobKind) String() string {
	switch k {
	case JobDispatch:
		return "dispatch"
	case JobReclaim:
		return "reclaim"
	case JobHealth:
		return "health"
	}
	return fmt.Sprintf("job(%d)", int(k))
}

type Dispatcher interface {
	Run(ctx context.Context) (delivery.Summary, error)
}

type Reclaimer interface {
	Run(ctx context.Context) (int, error)
}

type HealthReporter interface {
	Report(ctx context.Context) (*notification.Statistics, bool, error)
}

type Config struct {
	DispatchEvery time.Duration
	ReclaimEvery  time.Duration
	HealthEvery   time.Duration
}

func (c Config) every(k JobKind) time.Duration {
	switch k {
	case JobDispatch:
		return c.DispatchEvery
	case JobReclaim:
		return c.ReclaimEvery
	default:
		return c.HealthEvery
	}
}

var (
	mTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_job_runs_total", Help: "Job executions by job and result.",
	}, []string{"job", "result"})
	mSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_dispatch_skipped_total", Help: "Dispatch ticks skipped because a run was in progress.",
	})
	mJobDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "scheduler_job_duration_seconds", Help: "Job execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

type job struct {
	kind    JobKind
	every   time.Duration
	entry   cron.EntryID
	running atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

func (j *job) record(at time.Time, err error) {
	j.mu.Lock()
	j.lastRun, j.lastErr = at, err
	j.mu.Unlock()
}

// Orchestrator fires the dispatcher, the reclaimer and the health report on
// independent intervals. At most one dispatch run executes at a time; a tick that
// finds one in progress is dropped.
type Orchestrator struct {
	dispatcher Dispatcher
	reclaimer  Reclaimer
	health     HealthReporter
	log        *zap.Logger

	cron *cron.Cron
	jobs map[JobKind]*job

	dispatching atomic.Bool

	mu      sync.Mutex
	active  bool
	baseCtx context.Context
}

func New(cfg Config, d Dispatcher, r Reclaimer, h HealthReporter, log *zap.Logger) (*Orchestrator, error) {
	log = obs.Component(log, "scheduler")
	o := &Orchestrator{
		dispatcher: d,
		reclaimer:  r,
		health:     h,
		log:        log,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(obs.NewCronLogger(log)),
		),
		jobs:    make(map[JobKind]*job, len(jobKinds)),
		baseCtx: context.Background(),
	}
	for _, k := range jobKinds {
		every := cfg.every(k)
		if every <= 0 {
			return nil, fmt.Errorf("%s interval must be > 0", k)
		}
		j := &job{kind: k, every: every}
		kind := k
		j.entry = o.cron.Schedule(cron.Every(every), cron.FuncJob(func() { o.fire(o.jobContext(), kind) }))
		o.jobs[k] = j
	}
	return o, nil
}

// jobContext carries the values of the Run context but not its cancellation, so a
// job that already started finishes its batch during shutdown.
func (o *Orchestrator) jobContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return context.WithoutCancel(o.baseCtx)
}

// fire runs one job now. It is the single entry point for every timer tick.
func (o *Orchestrator) fire(ctx context.Context, kind JobKind) {
	if kind == JobDispatch {
		if _, err := o.dispatchOnce(ctx); errors.Is(err, ErrDispatchInProgress) {
			o.log.Debug("dispatch tick skipped: previous run still in progress")
		}
		return
	}
	_, _ = o.execute(ctx, o.jobs[kind])
}

// dispatchOnce holds the overlap guard for one dispatch run.
func (o *Orchestrator) dispatchOnce(ctx context.Context) (delivery.Summary, error) {
	if !o.dispatching.CompareAndSwap(false, true) {
		mSkipped.Inc()
		return delivery.Summary{}, ErrDispatchInProgress
	}
	defer o.dispatching.Store(false)
	return o.execute(ctx, o.jobs[JobDispatch])
}

func (o *Orchestrator) execute(ctx context.Context, j *job) (sum delivery.Summary, err error) {
	j.running.Store(true)
	defer j.running.Store(false)

	ctx, span := otel.Tracer("scheduler").Start(ctx, "scheduler."+j.kind.String(),
		trace.WithAttributes(attribute.String("job", j.kind.String())))
	defer span.End()

	start := time.Now()
	switch j.kind {
	case JobDispatch:
		sum, err = o.dispatcher.Run(ctx)
	case JobReclaim:
		_, err = o.reclaimer.Run(ctx)
	case JobHealth:
		_, _, err = o.health.Report(ctx)
	}
	mJobDur.WithLabelValues(j.kind.String()).Observe(time.Since(start).Seconds())
	j.record(start, err)

	if err != nil {
		obs.FailSpan(span, j.kind.String(), err)
		mTicks.WithLabelValues(j.kind.String(), "error").Inc()
		obs.WithTrace(ctx, o.log).Error("job failed", zap.String("job", j.kind.String()), zap.Error(err))
		return sum, err
	}
	mTicks.WithLabelValues(j.kind.String(), "ok").Inc()
	return sum, nil
}

// TriggerDispatch runs the dispatcher on demand under the same overlap guard as the timer.
// The run keeps ctx's values but not its cancellation: a caller that goes away does not
// cut the batch short.
func (o *Orchestrator) TriggerDispatch(ctx context.Context) (delivery.Summary, error) {
	return o.dispatchOnce(context.WithoutCancel(ctx))
}

// Start resumes the timers. Runs already in progress are not affected.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return
	}
	o.cron.Start()
	o.active = true
	o.log.Info("timers started",
		zap.Duration("dispatch_every", o.jobs[JobDispatch].every),
		zap.Duration("reclaim_every", o.jobs[JobReclaim].every),
		zap.Duration("health_every", o.jobs[JobHealth].every),
	)
}

// Stop suspends future timer firings and returns a context that is done once
// the jobs running at the time of the call have finished.
func (o *Orchestrator) Stop() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	o.active = false
	o.log.Info("timers stopped")
	return o.cron.Stop()
}

// Run starts the timers with ctx's values passed to every job and blocks until ctx is
// done. Jobs still running at that point are waited for.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()

	o.Start()
	<-ctx.Done()
	<-o.Stop().Done()
	return ctx.Err()
}

type JobStatus struct {
	Name    string    `json:"name"`
	Every   string    `json:"every"`
	Active  bool      `json:"active"`
	Running bool      `json:"running"`
	Next    time.Time `json:"next,omitempty"`
	Prev    time.Time `json:"prev,omitempty"`
	LastRun time.Time `json:"last_run,omitempty"`
	LastErr string    `json:"last_error,omitempty"`
}

func (o *Orchestrator) Status() []JobStatus {
	o.mu.Lock()
	active := o.active
	o.mu.Unlock()

	out := make([]JobStatus, 0, len(jobKinds))
	for _, k := range jobKinds {
		j := o.jobs[k]
		st := JobStatus{
			Name:    k.String(),
			Every:   j.every.String(),
			Active:  active,
			Running: j.running.Load(),
		}
		if active {
			e := o.cron.Entry(j.entry)
			st.Next, st.Prev = e.Next, e.Prev
		}
		j.mu.Lock()
		st.LastRun = j.lastRun
		if j.lastErr != nil {
			st.LastErr = j.lastErr.Error()
		}
		j.mu.Unlock()
		out = append(out, st)
	}
	return out
}
