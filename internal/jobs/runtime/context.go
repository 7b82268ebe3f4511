package runtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

/*
Context is the execution handle for one attempt of one job.
	- Ctx is cancelled when the orchestrator shuts down.
	- Job is a snapshot taken at claim time; Attempts already counts this run.
	- Payload is the decoded, validated input for the job's queue.
Handlers report outcome only through their return value.
*/
type Context struct {
	Ctx     context.Context
	Job     *queue.Job
	Payload queue.Payload
	Log     *logger.Logger
}

func NewContext(ctx context.Context, job *queue.Job, payload queue.Payload, baseLog *logger.Logger) *Context {
	c := &Context{
		Ctx:     ctxutil.Default(ctx),
		Job:     job,
		Payload: payload,
		Log:     baseLog,
	}
	if job != nil {
		c.Log = baseLog.With("queue", job.Queue, "job_id", job.ID, "attempt", job.Attempts)
	}
	c.applyTraceData()
	return c
}

func (c *Context) applyTraceData() {
	if c.Job == nil || (c.Job.TraceID == "" && c.Job.RequestID == "") {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   c.Job.TraceID,
		RequestID: c.Job.RequestID,
	})
}

// DocumentID parses the payload subject as a document id.
func (c *Context) DocumentID() (uuid.UUID, error) {
	if c.Payload == nil {
		return uuid.Nil, fmt.Errorf("no payload: %w", pkgerrors.ErrInvalidArgument)
	}
	id, err := uuid.Parse(c.Payload.Subject())
	if err != nil {
		return uuid.Nil, fmt.Errorf("document id %q: %w", c.Payload.Subject(), pkgerrors.ErrInvalidArgument)
	}
	return id, nil
}

// LastAttempt reports whether a retryable failure now would fail the job permanently.
func (c *Context) LastAttempt() bool {
	return c.Job != nil && c.Job.Attempts >= c.Job.MaxAttempts
}
