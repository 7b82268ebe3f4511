package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	"github.com/yungbote/deepmed-backend/internal/observability"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

// Finished describes one handler execution and the transition it caused.
type Finished struct {
	Job      *queue.Job
	Payload  queue.Payload
	Result   queue.Result
	Decision queue.Decision
}

type Options struct {
	Concurrency int
	// BlockTimeout bounds each blocking claim; shutdown waits at most this long for idle workers.
	BlockTimeout time.Duration
	// ClaimErrorDelay is the pause after a failed claim (Redis unavailable).
	ClaimErrorDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.BlockTimeout < time.Second {
		o.BlockTimeout = time.Second
	}
	if o.ClaimErrorDelay <= 0 {
		o.ClaimErrorDelay = time.Second
	}
	return o
}

// Pool runs Concurrency claim loops against one queue. The claim loop stops when the loop context is
// cancelled; handlers run under a separate context so in-flight work can finish.
type Pool struct {
	queue    queue.Name
	store    *queue.Store
	registry *runtime.Registry
	log      *logger.Logger
	opts     Options
	onFinish func(Finished)

	wg sync.WaitGroup
}

func NewPool(q queue.Name, store *queue.Store, registry *runtime.Registry, baseLog *logger.Logger, opts Options, onFinish func(Finished)) *Pool {
	return &Pool{
		queue:    q,
		store:    store,
		registry: registry,
		log:      baseLog.With("component", "JobWorker", "queue", q),
		opts:     opts.withDefaults(),
		onFinish: onFinish,
	}
}

func (p *Pool) Queue() queue.Name { return p.queue }

func (p *Pool) Start(loopCtx, runCtx context.Context) {
	p.log.Info("Starting job worker pool", "concurrency", p.opts.Concurrency)
	for i := 0; i < p.opts.Concurrency; i++ {
		workerID := i + 1
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runLoop(loopCtx, runCtx, workerID)
		}()
	}
}

// Wait blocks until every loop has exited.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) runLoop(loopCtx, runCtx context.Context, workerID int) {
	for {
		if loopCtx.Err() != nil {
			p.log.Debug("Worker loop stopped", "worker_id", workerID)
			return
		}
		job, err := p.store.Claim(loopCtx, p.queue, p.opts.BlockTimeout)
		if err != nil {
			if loopCtx.Err() != nil {
				continue
			}
			p.log.Warn("Claim failed", "worker_id", workerID, "error", err)
			select {
			case <-loopCtx.Done():
			case <-time.After(p.opts.ClaimErrorDelay):
			}
			continue
		}
		if job == nil {
			continue
		}
		p.Process(runCtx, job)
	}
}

// Process executes one claimed job and applies the resulting transition.
func (p *Pool) Process(ctx context.Context, job *queue.Job) Finished {
	ctx, span := observability.Tracer().Start(ctx, "queue.job."+string(job.Queue))
	span.SetAttributes(
		attribute.String("queue.name", string(job.Queue)),
		attribute.String("queue.job_id", job.ID),
		attribute.Int("queue.attempt", job.Attempts),
	)
	defer span.End()

	payload, res := p.execute(ctx, job)
	decision := queue.Decide(res, job.Attempts, job.Policy())

	// transitions must land even when shutdown cancelled the handler context
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var terr error
	switch decision.Kind {
	case queue.DecisionComplete:
		terr = p.store.Complete(tctx, job, res.Value)
	case queue.DecisionRetry:
		p.log.Warn("Job failed, retry scheduled",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"delay", decision.Delay,
			"error", res.Err,
		)
		terr = p.store.RetryLater(tctx, job, decision.Delay, res.Err)
	case queue.DecisionFail:
		p.log.Error("Job failed permanently",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"error", res.Err,
		)
		terr = p.store.Fail(tctx, job, res.Err)
	}
	if terr != nil {
		// the job stays in active and is requeued on the next start
		p.log.Error("Job transition failed", "job_id", job.ID, "decision", decision.Kind.String(), "error", terr)
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.SetAttributes(attribute.String("queue.decision", decision.Kind.String()))

	f := Finished{Job: job, Payload: payload, Result: res, Decision: decision}
	if terr == nil && p.onFinish != nil {
		p.onFinish(f)
	}
	return f
}

func (p *Pool) execute(ctx context.Context, job *queue.Job) (payload queue.Payload, res queue.Result) {
	payload, err := job.DecodePayload()
	if err != nil {
		// malformed input never becomes valid on retry
		return nil, queue.Fatal(err)
	}
	h, ok := p.registry.Get(job.Queue)
	if !ok {
		return payload, queue.Fatal(&missingHandlerError{Queue: job.Queue})
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Job handler panic",
				"job_id", job.ID,
				"panic", r,
			)
			res = queue.Retry(errFromRecover(r))
		}
	}()

	jc := runtime.NewContext(ctx, job, payload, p.log)
	res = h.Handle(jc)
	if res.Outcome != queue.OutcomeSuccess && res.Err == nil {
		res.Err = errors.New("handler reported failure without error")
	}
	return payload, res
}

type missingHandlerError struct{ Queue queue.Name }

func (e *missingHandlerError) Error() string { return "no handler registered for queue=" + string(e.Queue) }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
