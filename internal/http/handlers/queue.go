package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepmed-backend/internal/http/response"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

const maxJobBody = 64 << 10

// JobQueue is the orchestrator surface exposed over HTTP.
type JobQueue interface {
	EnqueueRaw(ctx context.Context, name string, raw []byte) (string, error)
	Status(ctx context.Context, name string) (queue.Counts, error)
	StatusAll(ctx context.Context) (map[queue.Name]queue.Counts, error)
	Job(ctx context.Context, name, id string) (*queue.Job, error)
	Ping(ctx context.Context) error
}

type QueueHandler struct {
	log  *logger.Logger
	jobs JobQueue
}

func NewQueueHandler(log *logger.Logger, jobs JobQueue) *QueueHandler {
	return &QueueHandler{log: log.With("handler", "QueueHandler"), jobs: jobs}
}

// GET /api/queue/health
func (h *QueueHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.jobs.Ping(ctx); err != nil {
		h.log.Warn("queue health: redis unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"redis":  gin.H{"status": "disconnected", "error": err.Error()},
		})
		return
	}
	counts, err := h.jobs.StatusAll(ctx)
	if err != nil {
		response.RespondErr(c, "queue_status_failed", err)
		return
	}

	var total, active, completed, failed int64
	queues := make(map[string]queue.Counts, len(counts))
	for name, cnt := range counts {
		queues[string(name)] = cnt
		total += cnt.Total()
		active += cnt.Active
		completed += cnt.Completed
		failed += cnt.Failed
	}
	response.RespondOK(c, gin.H{
		"status": "healthy",
		"redis":  gin.H{"status": "connected"},
		"queues": queues,
		"stats": gin.H{
			"totalJobs":     total,
			"activeJobs":    active,
			"completedJobs": completed,
			"failedJobs":    failed,
		},
	})
}

// GET /api/queue/:queue/status
func (h *QueueHandler) Status(c *gin.Context) {
	name := c.Param("queue")
	counts, err := h.jobs.Status(c.Request.Context(), name)
	if err != nil {
		response.RespondErr(c, "queue_status_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"queue": name, "counts": counts, "total": counts.Total()})
}

// GET /api/queue/:queue/jobs/:id
func (h *QueueHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Job(c.Request.Context(), c.Param("queue"), c.Param("id"))
	if err != nil {
		response.RespondErr(c, "job_lookup_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/queue/:queue/jobs
func (h *QueueHandler) AddJob(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxJobBody+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(raw) > maxJobBody {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "body_too_large", fmt.Errorf("payload over %d bytes", maxJobBody))
		return
	}
	if len(raw) == 0 {
		response.RespondErr(c, "enqueue_failed", fmt.Errorf("empty payload: %w", pkgerrors.ErrInvalidArgument))
		return
	}
	name := c.Param("queue")
	id, err := h.jobs.EnqueueRaw(c.Request.Context(), name, raw)
	if err != nil {
		response.RespondErr(c, "enqueue_failed", err)
		return
	}
	h.log.Info("job added", "queue", name, "job_id", id)
	c.JSON(http.StatusAccepted, gin.H{"jobId": id, "queue": name})
}
