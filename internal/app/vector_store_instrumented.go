package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/deepmed-backend/internal/observability"
	"github.com/yungbote/deepmed-backend/internal/platform/qdrant"
)

// instrumentedVectorStore wraps every vector store call in a span.
type instrumentedVectorStore struct {
	inner qdrant.VectorStore
}

func instrumentVectorStore(inner qdrant.VectorStore) qdrant.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{inner: inner}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, vectors []qdrant.Vector) error {
	ctx, span := s.start(ctx, "upsert", namespace, attribute.Int("vectors", len(vectors)))
	err := s.inner.Upsert(ctx, namespace, vectors)
	end(span, err)
	return err
}

func (s *instrumentedVectorStore) Search(ctx context.Context, namespace string, q []float32, topK int, filter *qdrant.Filter) ([]qdrant.VectorMatch, error) {
	ctx, span := s.start(ctx, "search", namespace, attribute.Int("top_k", topK))
	out, err := s.inner.Search(ctx, namespace, q, topK, filter)
	span.SetAttributes(attribute.Int("matches", len(out)))
	end(span, err)
	return out, err
}

func (s *instrumentedVectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	ctx, span := s.start(ctx, "delete_ids", namespace, attribute.Int("ids", len(ids)))
	err := s.inner.DeleteIDs(ctx, namespace, ids)
	end(span, err)
	return err
}

func (s *instrumentedVectorStore) DeleteByFilter(ctx context.Context, namespace string, filter qdrant.Filter) error {
	ctx, span := s.start(ctx, "delete_by_filter", namespace)
	err := s.inner.DeleteByFilter(ctx, namespace, filter)
	end(span, err)
	return err
}

func (s *instrumentedVectorStore) start(ctx context.Context, op, namespace string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("vector.operation", op), attribute.String("vector.namespace", namespace))
	return observability.Tracer().Start(ctx, "qdrant."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
