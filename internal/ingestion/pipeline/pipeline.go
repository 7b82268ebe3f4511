// Package pipeline holds the default job handlers for the ingestion queues: conversion of raw files to
// Markdown, and indexing of Markdown into retrievable chunks.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/data/repos"
	"github.com/yungbote/deepmed-backend/internal/ingestion/extractor"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/platform/objectstore"
	"github.com/yungbote/deepmed-backend/internal/platform/qdrant"
	"github.com/yungbote/deepmed-backend/internal/services"
)

// Enqueuer schedules follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, p queue.Payload) (string, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, userID uuid.UUID, texts []string) ([][]float32, error)
}

// VectorIndex is the subset of the vector store the indexer writes to.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, vectors []qdrant.Vector) error
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
	DeleteByFilter(ctx context.Context, namespace string, filter qdrant.Filter) error
}

type Deps struct {
	Log       *logger.Logger
	Docs      repos.DocumentRepo
	KBs       repos.KnowledgeBaseRepo
	Chunks    repos.ChunkRepo
	Objects   objectstore.Store
	Extractor *extractor.Extractor
	Progress  services.ProgressReporter
	Enqueuer  Enqueuer
	// Embedder and Vectors are optional; without both, chunks are indexed for lexical search only.
	Embedder Embedder
	Vectors  VectorIndex
}

func (d Deps) validate() error {
	switch {
	case d.Log == nil:
		return fmt.Errorf("pipeline: logger required")
	case d.Docs == nil || d.KBs == nil || d.Chunks == nil:
		return fmt.Errorf("pipeline: repos required")
	case d.Objects == nil:
		return fmt.Errorf("pipeline: object store required")
	case d.Extractor == nil:
		return fmt.Errorf("pipeline: extractor required")
	case d.Progress == nil:
		return fmt.Errorf("pipeline: progress reporter required")
	case d.Enqueuer == nil:
		return fmt.Errorf("pipeline: enqueuer required")
	}
	return nil
}

// Register installs the convert, pdf and indexing handlers.
func Register(reg *runtime.Registry, d Deps) error {
	if err := d.validate(); err != nil {
		return err
	}
	for _, h := range []runtime.Handler{
		NewConvertHandler(d),
		NewPDFHandler(d),
		NewIndexHandler(d),
	} {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// classify maps a handler error to a queue outcome: bad input never succeeds on retry.
func classify(err error) queue.Result {
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, pkgerrors.ErrInvalidArgument),
		extractor.Permanent(err):
		return queue.Fatal(err)
	}
	return queue.Retry(err)
}
