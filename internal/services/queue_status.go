package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

const DefaultQueueStatusSchedule = "@every 1m"

type QueueStatusSource interface {
	StatusAll(ctx context.Context) (map[queue.Name]queue.Counts, error)
}

// QueueStatusReporter periodically logs per-queue counts for operators.
type QueueStatusReporter struct {
	log    *logger.Logger
	source QueueStatusSource
	cron   *cron.Cron
}

func NewQueueStatusReporter(log *logger.Logger, source QueueStatusSource) *QueueStatusReporter {
	return &QueueStatusReporter{
		log:    log.With("service", "QueueStatusReporter"),
		source: source,
		cron:   cron.New(),
	}
}

func (r *QueueStatusReporter) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultQueueStatusSchedule
	}
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info("Queue status reporter started", "schedule", schedule)
	return nil
}

// Stop waits for a running report to finish.
func (r *QueueStatusReporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *QueueStatusReporter) Report() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	all, err := r.source.StatusAll(ctx)
	if err != nil {
		r.log.Warn("Queue status unavailable", "error", err)
		return
	}
	for _, q := range queue.Names() {
		c := all[q]
		r.log.Info("Queue status",
			"queue", q,
			"waiting", c.Waiting,
			"active", c.Active,
			"delayed", c.Delayed,
			"completed", c.Completed,
			"failed", c.Failed,
		)
	}
}
