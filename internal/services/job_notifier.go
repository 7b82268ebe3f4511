package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/jobs/orchestrator"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
	"github.com/yungbote/deepmed-backend/internal/realtime/bus"
)

// JobNotifier relays orchestrator lifecycle events onto the progress bus. A completed conversion is
// not terminal for the document (indexing follows), so it is published as a status update; indexing
// completion and any permanent failure are terminal.
type JobNotifier interface {
	JobDone(ctx context.Context, ev orchestrator.LifecycleEvent)
	JobFailed(ctx context.Context, ev orchestrator.LifecycleEvent)
	// Run drains events until the channel is closed or ctx ends.
	Run(ctx context.Context, events <-chan orchestrator.LifecycleEvent)
}

type jobNotifier struct {
	log      *logger.Logger
	bus      bus.Bus
	progress ProgressReporter
}

func NewJobNotifier(log *logger.Logger, b bus.Bus, progress ProgressReporter) JobNotifier {
	return &jobNotifier{
		log:      log.With("service", "JobNotifier"),
		bus:      b,
		progress: progress,
	}
}

func (n *jobNotifier) Run(ctx context.Context, events <-chan orchestrator.LifecycleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.State {
			case queue.StateCompleted:
				n.JobDone(ctx, ev)
			case queue.StateFailed:
				n.JobFailed(ctx, ev)
			}
		}
	}
}

func (n *jobNotifier) JobDone(ctx context.Context, ev orchestrator.LifecycleEvent) {
	docID, ok := n.documentID(ev)
	if ok && ev.Queue == queue.DocumentIndexing && n.progress != nil {
		meta := map[string]any{"jobId": ev.JobID, "queue": ev.Queue}
		if len(ev.Result) > 0 {
			var result map[string]any
			if err := json.Unmarshal(ev.Result, &result); err == nil {
				meta["result"] = result
			}
		}
		if err := n.progress.Complete(ctx, docID, meta); err != nil {
			n.log.Warn("Complete notification failed", "job_id", ev.JobID, "document_id", ev.DocumentID, "error", err)
		}
		return
	}
	t := realtime.EventStatus
	if ev.Queue == queue.DocumentIndexing {
		t = realtime.EventComplete
	}
	n.publish(ctx, ev, t, map[string]any{
		"jobId":    ev.JobID,
		"queue":    ev.Queue,
		"state":    ev.State,
		"attempts": ev.Attempts,
	})
}

func (n *jobNotifier) JobFailed(ctx context.Context, ev orchestrator.LifecycleEvent) {
	if docID, ok := n.documentID(ev); ok && n.progress != nil {
		err := n.progress.Error(ctx, docID, errors.New(ev.Error))
		if err == nil {
			return
		}
		n.log.Warn("Failure notification failed", "job_id", ev.JobID, "document_id", ev.DocumentID, "error", err)
	}
	n.publish(ctx, ev, realtime.EventError, map[string]any{
		"jobId":    ev.JobID,
		"queue":    ev.Queue,
		"state":    ev.State,
		"attempts": ev.Attempts,
		"error":    ev.Error,
	})
}

func (n *jobNotifier) documentID(ev orchestrator.LifecycleEvent) (uuid.UUID, bool) {
	id, err := uuid.Parse(ev.DocumentID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (n *jobNotifier) publish(ctx context.Context, ev orchestrator.LifecycleEvent, t realtime.EventType, payload map[string]any) {
	subject := ev.DocumentID
	if subject == "" {
		subject = string(ev.Queue) + ":" + ev.JobID
	}
	if err := n.bus.Publish(ctx, subject, realtime.NewEvent(subject, t, payload)); err != nil {
		n.log.Warn("Publish lifecycle event failed", "job_id", ev.JobID, "queue", ev.Queue, "error", err)
	}
}
