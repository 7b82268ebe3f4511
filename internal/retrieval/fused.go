package retrieval

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/deepmed-backend/internal/data/repos"
	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/platform/qdrant"
)

type LexicalIndex interface {
	FullTextRank(dbc dbctx.Context, kbID uuid.UUID, query string, limit int) ([]repos.RankedChunk, error)
	ListAvailableByIDs(dbc dbctx.Context, kbID uuid.UUID, ids []uuid.UUID) ([]*types.Chunk, error)
}

type VectorIndex interface {
	Search(ctx context.Context, namespace string, q []float32, topK int, filter *qdrant.Filter) ([]qdrant.VectorMatch, error)
}

// FusedSearcher merges Postgres full-text ranks with Qdrant similarities by chunk id. The vector
// namespace is the knowledge base id. Either side may be absent: without tsvector support the lexical
// score is zero, and a nil VectorIndex or empty query vector gives a zero vector score.
type FusedSearcher struct {
	log     *logger.Logger
	lexical LexicalIndex
	vectors VectorIndex
}

func NewFusedSearcher(log *logger.Logger, lexical LexicalIndex, vectors VectorIndex) *FusedSearcher {
	return &FusedSearcher{
		log:     log.With("service", "FusedSearcher"),
		lexical: lexical,
		vectors: vectors,
	}
}

func (f *FusedSearcher) HybridSearch(ctx context.Context, p HybridParams) ([]Candidate, error) {
	limit := p.ResultLimit
	if limit <= 0 {
		limit = DefaultLimit * 2
	}

	var (
		ranked  []repos.RankedChunk
		matches []qdrant.VectorMatch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := f.lexical.FullTextRank(dbctx.Context{Ctx: gctx}, p.KBID, p.QueryText, limit)
		if errors.Is(err, repos.ErrFullTextUnsupported) {
			f.log.Debug("Full-text ranking unavailable; vector signal only")
			return nil
		}
		ranked = rows
		return err
	})
	if f.vectors != nil && len(p.Vector) > 0 {
		g.Go(func() error {
			m, err := f.vectors.Search(gctx, p.KBID.String(), p.Vector, limit, nil)
			matches = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*Candidate, len(ranked)+len(matches))
	order := make([]uuid.UUID, 0, len(ranked)+len(matches))
	get := func(id uuid.UUID) *Candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &Candidate{ChunkID: id}
		byID[id] = c
		order = append(order, id)
		return c
	}
	for _, r := range ranked {
		if r.Rank < p.MinBM25 {
			continue
		}
		get(r.ID).BM25Score = r.Rank
	}
	for _, m := range matches {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			f.log.Warn("Ignoring vector match with non-chunk id", "id", m.ID)
			continue
		}
		if m.Score < p.MinVector {
			continue
		}
		get(id).VectorScore = m.Score
	}
	if len(order) == 0 {
		return []Candidate{}, nil
	}

	// vectors can outlive their chunk; only rows still retrievable survive
	rows, err := f.lexical.ListAvailableByIDs(dbctx.Context{Ctx: ctx}, p.KBID, order)
	if err != nil {
		return nil, err
	}
	live := make(map[uuid.UUID]*types.Chunk, len(rows))
	for _, row := range rows {
		live[row.ID] = row
	}

	out := make([]Candidate, 0, len(live))
	for _, id := range order {
		row, ok := live[id]
		if !ok {
			continue
		}
		c := byID[id]
		c.DocID = row.DocumentID
		c.DocName = row.DocumentName
		c.Text = row.Text
		c.CompositeScore = p.BM25Weight*c.BM25Score + p.VectorWeight*c.VectorScore
		if c.CompositeScore < p.MinComposite {
			continue
		}
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompositeScore == out[j].CompositeScore {
			return out[i].ChunkID.String() < out[j].ChunkID.String()
		}
		return out[i].CompositeScore > out[j].CompositeScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
