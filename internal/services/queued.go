package services

import (
	"context"

	"github.com/yungbote/deepmed-backend/internal/jobs/orchestrator"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
	"github.com/yungbote/deepmed-backend/internal/realtime/bus"
)

// NewQueuedPublisher announces accepted jobs on their subject. Publishing replaces the snapshot, so a
// stream opened while the job waits no longer replays a terminal event from an earlier run.
func NewQueuedPublisher(baseLog *logger.Logger, b bus.Bus) orchestrator.EnqueueHook {
	log := baseLog.With("service", "QueuedPublisher")
	return func(ctx context.Context, q queue.Name, jobID string, subject string) {
		if subject == "" {
			return
		}
		ev := realtime.NewEvent(subject, realtime.EventQueued, map[string]any{
			"queue": string(q),
			"jobId": jobID,
		})
		if err := b.Publish(context.WithoutCancel(ctx), subject, ev); err != nil {
			log.Warn("Publish queued event failed", "subject", subject, "queue", q, "error", err)
		}
	}
}
