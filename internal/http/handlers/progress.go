package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/http/response"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
)

// ProgressHandler serves progress subjects as server-sent event streams.
type ProgressHandler struct {
	log  *logger.Logger
	src  realtime.Source
	opts realtime.StreamOptions
}

func NewProgressHandler(log *logger.Logger, src realtime.Source, opts realtime.StreamOptions) *ProgressHandler {
	return &ProgressHandler{log: log.With("handler", "ProgressHandler"), src: src, opts: opts}
}

// GET /api/documents/:id/progress
func (h *ProgressHandler) DocumentProgress(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	h.serve(c, id.String())
}

// GET /api/tasks/:id/stream
func (h *ProgressHandler) TaskStream(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_task_id", errors.New("task id required"))
		return
	}
	h.serve(c, id)
}

func (h *ProgressHandler) serve(c *gin.Context, subject string) {
	realtime.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)

	s := realtime.NewStream(h.src, subject, c.Writer, h.opts, h.log)
	if err := s.Run(c.Request.Context()); err != nil && !errors.Is(err, context.Canceled) {
		h.log.Debug("progress stream ended", "subject", subject, "error", err)
	}
}
