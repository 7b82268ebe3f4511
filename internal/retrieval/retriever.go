package retrieval

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/observability"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type Query struct {
	KBID   uuid.UUID
	Text   string
	Limit  int
	UserID uuid.UUID
}

type ChunkStore interface {
	CountAvailable(dbc dbctx.Context, kbID uuid.UUID) (int64, error)
	LexicalFallback(dbc dbctx.Context, kbID uuid.UUID, terms []string, limit int) ([]*types.Chunk, error)
}

type Embedder interface {
	Embed(ctx context.Context, userID uuid.UUID, text string) ([]float32, error)
}

// RequestScoper is implemented by embedders that can share per-user lookups across the calls of one
// search (the cache key and the embed itself).
type RequestScoper interface {
	WithRequestScope(ctx context.Context) context.Context
}

type EmbeddingCache interface {
	Get(ctx context.Context, userID uuid.UUID, text string) ([]float32, bool, error)
	Set(ctx context.Context, userID uuid.UUID, text string, vec []float32) error
}

type HybridParams struct {
	KBID         uuid.UUID
	QueryText    string
	Vector       []float32
	ResultLimit  int
	BM25Weight   float64
	VectorWeight float64
	MinBM25      float64
	MinVector    float64
	MinComposite float64
}

type FusedIndex interface {
	HybridSearch(ctx context.Context, p HybridParams) ([]Candidate, error)
}

type Weights struct {
	BM25         float64 `yaml:"bm25"`
	Vector       float64 `yaml:"vector"`
	MinComposite float64 `yaml:"min_composite"`
}

func DefaultWeights() Weights { return Weights{BM25: 0.5, Vector: 0.5} }

// Retriever answers knowledge-base searches. Search never fails: any problem on the hybrid path is
// logged and the lexical fallback answers instead.
type Retriever struct {
	log     *logger.Logger
	chunks  ChunkStore
	embed   Embedder
	index   FusedIndex
	cache   EmbeddingCache
	weights Weights
}

// NewRetriever accepts a nil cache.
func NewRetriever(log *logger.Logger, chunks ChunkStore, embed Embedder, index FusedIndex, cache EmbeddingCache, weights Weights) *Retriever {
	if weights.BM25 == 0 && weights.Vector == 0 {
		weights.BM25, weights.Vector = DefaultWeights().BM25, DefaultWeights().Vector
	}
	return &Retriever{
		log:     log.With("service", "HybridRetriever"),
		chunks:  chunks,
		embed:   embed,
		index:   index,
		cache:   cache,
		weights: weights,
	}
}

func (r *Retriever) Search(ctx context.Context, q Query) []Candidate {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	ctx, span := observability.Tracer().Start(ctx, "retrieval.search")
	defer span.End()
	span.SetAttributes(attribute.String("retrieval.kb_id", q.KBID.String()), attribute.Int("retrieval.limit", q.Limit))

	if strings.TrimSpace(q.Text) == "" {
		return []Candidate{}
	}
	if s, ok := r.embed.(RequestScoper); ok {
		ctx = s.WithRequestScope(ctx)
	}

	var (
		count    int64
		countErr error
		cached   []float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, countErr = r.chunks.CountAvailable(dbctx.Context{Ctx: gctx}, q.KBID)
		return nil
	})
	if r.cache != nil {
		g.Go(func() error {
			vec, ok, err := r.cache.Get(gctx, q.UserID, q.Text)
			if err != nil {
				r.log.Debug("Embedding cache lookup failed", "error", err)
				return nil
			}
			if ok {
				cached = vec
			}
			return nil
		})
	}
	_ = g.Wait()

	if countErr != nil {
		r.log.Warn("Count available chunks failed; continuing", "kb_id", q.KBID, "error", countErr)
	} else if count == 0 {
		span.SetAttributes(attribute.String("retrieval.path", "empty"))
		return []Candidate{}
	}

	cands, err := r.primary(ctx, q, cached)
	path := "hybrid"
	if err != nil || len(cands) == 0 {
		if err != nil {
			r.log.Warn("Hybrid search failed; using lexical fallback", "kb_id", q.KBID, "error", err)
		}
		path = "fallback"
		cands = r.fallback(ctx, q)
	}
	span.SetAttributes(attribute.String("retrieval.path", path), attribute.Int("retrieval.results", len(cands)))
	return rank(cands, q.Limit)
}

func (r *Retriever) primary(ctx context.Context, q Query, vec []float32) ([]Candidate, error) {
	if vec == nil {
		var err error
		vec, err = r.embed.Embed(ctx, q.UserID, q.Text)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if err := r.cache.Set(ctx, q.UserID, q.Text, vec); err != nil {
				r.log.Debug("Embedding cache store failed", "error", err)
			}
		}
	}
	return r.index.HybridSearch(ctx, HybridParams{
		KBID:         q.KBID,
		QueryText:    q.Text,
		Vector:       vec,
		ResultLimit:  q.Limit * 2,
		BM25Weight:   r.weights.BM25,
		VectorWeight: r.weights.Vector,
		MinComposite: r.weights.MinComposite,
	})
}

// fallback matches any whitespace-separated term as a case-insensitive substring. There is no
// stemming, so "dosing" does not find "dose".
func (r *Retriever) fallback(ctx context.Context, q Query) []Candidate {
	terms := strings.Fields(q.Text)
	rows, err := r.chunks.LexicalFallback(dbctx.Context{Ctx: ctx}, q.KBID, terms, q.Limit)
	if err != nil {
		r.log.Error("Lexical fallback failed", "kb_id", q.KBID, "error", err)
		return []Candidate{}
	}
	out := make([]Candidate, 0, len(rows))
	for _, c := range rows {
		out = append(out, Candidate{
			ChunkID:        c.ID,
			DocID:          c.DocumentID,
			DocName:        c.DocumentName,
			Text:           c.Text,
			BM25Score:      fallbackBM25Score,
			VectorScore:    fallbackVectorScore,
			CompositeScore: fallbackCompositeScore,
		})
	}
	return out
}
