package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	"github.com/yungbote/deepmed-backend/internal/jobs/worker"
	"github.com/yungbote/deepmed-backend/internal/pkg/ctxutil"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

var (
	ErrAlreadyStarted = errors.New("orchestrator already started")
	ErrStopped        = errors.New("orchestrator stopped")
)

type Config struct {
	// Concurrency per queue; queues missing from the map use DefaultConcurrency.
	Concurrency        map[queue.Name]int
	DefaultConcurrency int
	// PollInterval is how often delayed retries are checked for promotion.
	PollInterval time.Duration
	BlockTimeout time.Duration
	Policy       queue.RetryPolicy
	EventBuffer  int
	// OnEnqueued runs after a job is stored, before Enqueue returns.
	OnEnqueued EnqueueHook
}

// EnqueueHook observes accepted jobs. It cannot fail the enqueue.
type EnqueueHook func(ctx context.Context, q queue.Name, jobID string, subject string)

func (c Config) withDefaults() Config {
	if c.DefaultConcurrency < 1 {
		c.DefaultConcurrency = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = time.Second
	}
	if c.Policy.MaxAttempts <= 0 {
		c.Policy.MaxAttempts = queue.DefaultMaxAttempts
	}
	if c.Policy.BackoffBase <= 0 {
		c.Policy.BackoffBase = queue.DefaultBackoffBase
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

func (c Config) concurrencyFor(q queue.Name) int {
	if n, ok := c.Concurrency[q]; ok && n > 0 {
		return n
	}
	return c.DefaultConcurrency
}

// LifecycleEvent is emitted once per job when it reaches completed or failed.
type LifecycleEvent struct {
	JobID      string          `json:"jobId"`
	Queue      queue.Name      `json:"queue"`
	DocumentID string          `json:"documentId"`
	State      queue.State     `json:"state"`
	Attempts   int             `json:"attempts"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	At         time.Time       `json:"at"`
}

// Orchestrator owns the worker pools of every queue that has a handler, the delayed-retry promoter,
// and the lifecycle event channel. Construct one per process (or per test) and drive it with Start and
// Shutdown.
type Orchestrator struct {
	store    *queue.Store
	registry *runtime.Registry
	log      *logger.Logger
	cfg      Config

	events  chan LifecycleEvent
	dropped atomic.Int64

	mu         sync.Mutex
	started    bool
	stopped    bool
	pools      []*worker.Pool
	loopCancel context.CancelFunc
	runCancel  context.CancelFunc
	promoterWG sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(store *queue.Store, registry *runtime.Registry, baseLog *logger.Logger, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:    store,
		registry: registry,
		log:      baseLog.With("service", "JobOrchestrator"),
		cfg:      cfg,
		events:   make(chan LifecycleEvent, cfg.EventBuffer),
	}
}

// Events delivers completion and failure notifications. Events are dropped rather than blocking
// workers when the buffer is full. The channel is closed by Shutdown.
func (o *Orchestrator) Events() <-chan LifecycleEvent { return o.events }

// Dropped reports how many lifecycle events were discarded because nobody drained Events.
func (o *Orchestrator) Dropped() int64 { return o.dropped.Load() }

func (o *Orchestrator) Enqueue(ctx context.Context, p queue.Payload) (string, error) {
	if err := queue.Validate(p); err != nil {
		return "", err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", p.Queue(), err)
	}
	opts := queue.EnqueueOptions{Policy: o.cfg.Policy}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		opts.TraceID = td.TraceID
		opts.RequestID = td.RequestID
	}
	job, err := o.store.Enqueue(ctxutil.Default(ctx), p.Queue(), raw, opts)
	if err != nil {
		return "", err
	}
	o.log.Debug("Job enqueued", "queue", p.Queue(), "job_id", job.ID, "document_id", p.Subject())
	if o.cfg.OnEnqueued != nil {
		o.cfg.OnEnqueued(ctx, p.Queue(), job.ID, p.Subject())
	}
	return job.ID, nil
}

// EnqueueRaw accepts an untyped queue name and JSON body, as received from external callers.
func (o *Orchestrator) EnqueueRaw(ctx context.Context, name string, raw []byte) (string, error) {
	q, err := queue.ParseName(name)
	if err != nil {
		return "", err
	}
	p, err := queue.DecodePayload(q, raw)
	if err != nil {
		return "", err
	}
	return o.Enqueue(ctx, p)
}

func (o *Orchestrator) Status(ctx context.Context, name string) (queue.Counts, error) {
	q, err := queue.ParseName(name)
	if err != nil {
		return queue.Counts{}, err
	}
	return o.store.Counts(ctxutil.Default(ctx), q)
}

func (o *Orchestrator) StatusAll(ctx context.Context) (map[queue.Name]queue.Counts, error) {
	out := make(map[queue.Name]queue.Counts, len(queue.Names()))
	for _, q := range queue.Names() {
		c, err := o.store.Counts(ctxutil.Default(ctx), q)
		if err != nil {
			return nil, err
		}
		out[q] = c
	}
	return out, nil
}

func (o *Orchestrator) Job(ctx context.Context, name, id string) (*queue.Job, error) {
	q, err := queue.ParseName(name)
	if err != nil {
		return nil, err
	}
	return o.store.Get(ctxutil.Default(ctx), q, id)
}

func (o *Orchestrator) Ping(ctx context.Context) error {
	return o.store.Ping(ctxutil.Default(ctx))
}

// Start recovers jobs orphaned in active by a previous run, then starts one pool per queue that has a
// registered handler plus the delayed-retry promoter. Queues without a handler accept jobs but leave
// them waiting.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	if o.started {
		return ErrAlreadyStarted
	}

	ctx = ctxutil.Default(ctx)
	served := make([]queue.Name, 0, len(queue.Names()))
	for _, q := range queue.Names() {
		if _, ok := o.registry.Get(q); !ok {
			o.log.Warn("No handler registered; queue will not be consumed", "queue", q)
			continue
		}
		n, err := o.store.RequeueActive(ctx, q)
		if err != nil {
			return err
		}
		if n > 0 {
			o.log.Info("Requeued interrupted jobs", "queue", q, "count", n)
		}
		served = append(served, q)
	}

	loopCtx, loopCancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))
	o.loopCancel = loopCancel
	o.runCancel = runCancel

	for _, q := range served {
		p := worker.NewPool(q, o.store, o.registry, o.log, worker.Options{
			Concurrency:  o.cfg.concurrencyFor(q),
			BlockTimeout: o.cfg.BlockTimeout,
		}, o.emit)
		p.Start(loopCtx, runCtx)
		o.pools = append(o.pools, p)
	}

	o.promoterWG.Add(1)
	go o.promote(loopCtx)

	o.started = true
	o.log.Info("Job orchestrator started", "queues", served)
	return nil
}

func (o *Orchestrator) promote(ctx context.Context) {
	defer o.promoterWG.Done()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range queue.Names() {
				if _, err := o.store.PromoteDue(ctx, q, 100); err != nil && ctx.Err() == nil {
					o.log.Warn("Promote delayed jobs failed", "queue", q, "error", err)
				}
			}
		}
	}
}

// Shutdown stops claiming new jobs and waits for in-flight handlers. If ctx expires first, handler
// contexts are cancelled and Shutdown still waits for them to return. Safe to call more than once.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		o.stopped = true
		started := o.started
		pools := o.pools
		o.mu.Unlock()

		if !started {
			close(o.events)
			return
		}

		o.loopCancel()
		done := make(chan struct{})
		go func() {
			for _, p := range pools {
				p.Wait()
			}
			o.promoterWG.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctxutil.Default(ctx).Done():
			o.shutdownErr = ctx.Err()
			o.log.Warn("Shutdown deadline reached; cancelling in-flight jobs")
			o.runCancel()
			<-done
		}
		o.runCancel()
		close(o.events)
		o.log.Info("Job orchestrator stopped", "dropped_events", o.dropped.Load())
	})
	return o.shutdownErr
}

func (o *Orchestrator) emit(f worker.Finished) {
	var state queue.State
	switch f.Decision.Kind {
	case queue.DecisionComplete:
		state = queue.StateCompleted
	case queue.DecisionFail:
		state = queue.StateFailed
	default:
		return
	}
	ev := LifecycleEvent{
		JobID:    f.Job.ID,
		Queue:    f.Job.Queue,
		State:    state,
		Attempts: f.Job.Attempts,
		Result:   f.Job.Result,
		At:       time.Now().UTC(),
	}
	if f.Payload != nil {
		ev.DocumentID = f.Payload.Subject()
	}
	if f.Result.Err != nil {
		ev.Error = f.Result.Err.Error()
	}
	select {
	case o.events <- ev:
	default:
		o.dropped.Add(1)
		o.log.Warn("Dropping lifecycle event; nobody is draining", "queue", ev.Queue, "job_id", ev.JobID, "state", ev.State)
	}
}
