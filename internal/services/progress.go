package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/data/repos"
	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
	"github.com/yungbote/deepmed-backend/internal/realtime/bus"
)

// ProgressReporter keeps a document's processing fields and its progress subject in step. The
// database write happens first; a failed publish is logged and never fails the caller.
type ProgressReporter interface {
	Started(ctx context.Context, docID uuid.UUID, status string, msg string) error
	Progress(ctx context.Context, docID uuid.UUID, pct float64, msg string) error
	Status(ctx context.Context, docID uuid.UUID, status string, msg string) error
	Error(ctx context.Context, docID uuid.UUID, cause error) error
	Complete(ctx context.Context, docID uuid.UUID, meta map[string]any) error
}

type progressReporter struct {
	log  *logger.Logger
	docs repos.DocumentRepo
	bus  bus.Bus
}

func NewProgressReporter(log *logger.Logger, docs repos.DocumentRepo, b bus.Bus) ProgressReporter {
	return &progressReporter{
		log:  log.With("service", "ProgressReporter"),
		docs: docs,
		bus:  b,
	}
}

func (r *progressReporter) Started(ctx context.Context, docID uuid.UUID, status string, msg string) error {
	if err := r.docs.UpdateProgress(dbctx.Context{Ctx: ctx}, docID, status, 0, msg); err != nil {
		return fmt.Errorf("record start: %w", err)
	}
	r.publish(ctx, docID, realtime.EventStarted, map[string]any{
		"status":  status,
		"message": msg,
	})
	return nil
}

func (r *progressReporter) Progress(ctx context.Context, docID uuid.UUID, pct float64, msg string) error {
	pct = clampProgress(pct)
	if err := r.docs.UpdateProgress(dbctx.Context{Ctx: ctx}, docID, "", pct, msg); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	r.publish(ctx, docID, realtime.EventProgress, map[string]any{
		"progress": pct,
		"message":  msg,
	})
	return nil
}

func (r *progressReporter) Status(ctx context.Context, docID uuid.UUID, status string, msg string) error {
	if err := r.docs.UpdateFields(dbctx.Context{Ctx: ctx}, docID, map[string]interface{}{
		"status":       status,
		"progress_msg": msg,
	}); err != nil {
		return fmt.Errorf("record status: %w", err)
	}
	r.publish(ctx, docID, realtime.EventStatus, map[string]any{
		"status":  status,
		"message": msg,
	})
	return nil
}

func (r *progressReporter) Error(ctx context.Context, docID uuid.UUID, cause error) error {
	msg := "processing failed"
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.docs.MarkFailed(dbctx.Context{Ctx: ctx}, docID, msg); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	r.publish(ctx, docID, realtime.EventError, map[string]any{
		"status": types.DocumentStatusFailed,
		"error":  msg,
	})
	return nil
}

func (r *progressReporter) Complete(ctx context.Context, docID uuid.UUID, meta map[string]any) error {
	doc, err := r.docs.GetByID(dbctx.Context{Ctx: ctx}, docID)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"status":   doc.Status,
		"progress": doc.Progress,
		"chunkNum": doc.ChunkNum,
	}
	for k, v := range meta {
		payload[k] = v
	}
	r.publish(ctx, docID, realtime.EventComplete, payload)
	return nil
}

func (r *progressReporter) publish(ctx context.Context, docID uuid.UUID, t realtime.EventType, payload map[string]any) {
	subject := docID.String()
	if err := r.bus.Publish(ctx, subject, realtime.NewEvent(subject, t, payload)); err != nil {
		r.log.Warn("Publish progress event failed", "document_id", subject, "type", t, "error", err)
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
