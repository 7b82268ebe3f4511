package materials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

// ErrFullTextUnsupported is returned by FullTextRank on dialects without tsvector support.
var ErrFullTextUnsupported = errors.New("full-text ranking requires postgres")

// Text search configuration shared by the GIN index and the ranking query.
const FullTextConfig = "english"

// ReplaceResult describes an atomic chunk-set swap.
type ReplaceResult struct {
	Generation int
	// Retired holds the ids that were available before the swap and no longer are.
	Retired []uuid.UUID
}

// RankedChunk is a lexical match with its normalized ts_rank_cd score in [0,1).
type RankedChunk struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	DocumentName string
	Text         string
	Rank         float64
}

type ChunkRepo interface {
	ReplaceForDocument(dbc dbctx.Context, docID uuid.UUID, chunks []*types.Chunk) (ReplaceResult, error)
	SetAvailable(dbc dbctx.Context, ids []uuid.UUID, available bool) error
	GetByDocumentID(dbc dbctx.Context, docID uuid.UUID, onlyAvailable bool) ([]*types.Chunk, error)
	CountAvailable(dbc dbctx.Context, kbID uuid.UUID) (int64, error)
	ListAvailableByIDs(dbc dbctx.Context, kbID uuid.UUID, ids []uuid.UUID) ([]*types.Chunk, error)
	LexicalFallback(dbc dbctx.Context, kbID uuid.UUID, terms []string, limit int) ([]*types.Chunk, error)
	FullTextRank(dbc dbctx.Context, kbID uuid.UUID, query string, limit int) ([]RankedChunk, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	repoLog := baseLog.With("repo", "ChunkRepo")
	return &chunkRepo{db: db, log: repoLog}
}

// availableIn restricts a chunk query to rows a retriever may return: flagged available, in the knowledge
// base, and owned by a live document that finished indexing.
func availableIn(kbID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.
			Joins("JOIN document ON document.id = chunk.document_id").
			Where("chunk.knowledge_base_id = ?", kbID).
			Where("chunk.available = ?", true).
			Where("document.indexed_at IS NOT NULL").
			Where("document.deleted_at IS NULL")
	}
}

// ReplaceForDocument swaps the document's chunk set in one transaction: the previous generation is
// flagged unavailable, chunks are inserted as the next generation already available, and the document
// is stamped indexed. Readers see either the old set or the new one.
func (r *chunkRepo) ReplaceForDocument(dbc dbctx.Context, docID uuid.UUID, chunks []*types.Chunk) (ReplaceResult, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var res ReplaceResult
	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var docs []*types.Document
		if err := tx.Where("id = ?", docID).Limit(1).Find(&docs).Error; err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("document %s: %w", docID, pkgerrors.ErrNotFound)
		}
		doc := docs[0]
		gen := doc.Generation + 1

		var retired []uuid.UUID
		if err := tx.Model(&types.Chunk{}).
			Where("document_id = ? AND available = ?", docID, true).
			Pluck("id", &retired).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		if len(retired) > 0 {
			if err := tx.Model(&types.Chunk{}).
				Where("id IN ?", retired).
				Updates(map[string]interface{}{"available": false, "updated_at": now}).Error; err != nil {
				return err
			}
		}

		for i, c := range chunks {
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
			c.DocumentID = docID
			c.KnowledgeBaseID = doc.KnowledgeBaseID
			c.DocumentName = doc.Name
			c.Generation = gen
			c.SequenceIndex = i
			c.SizeHint = len(c.Text)
			c.Available = true
		}
		if len(chunks) > 0 {
			// Keep batches small because Text is large
			const batchSize = 100
			if err := tx.CreateInBatches(chunks, batchSize).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&types.Document{}).Where("id = ?", docID).Updates(map[string]interface{}{
			"generation":   gen,
			"indexed_at":   now,
			"status":       types.DocumentStatusIndexed,
			"chunk_num":    len(chunks),
			"progress":     1.0,
			"progress_msg": "indexed",
			"error":        "",
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		res = ReplaceResult{Generation: gen, Retired: retired}
		return nil
	})
	if err != nil {
		return ReplaceResult{}, err
	}
	r.log.Debug("chunk set replaced", "document_id", docID, "generation", res.Generation, "chunks", len(chunks), "retired", len(res.Retired))
	return res, nil
}

func (r *chunkRepo) SetAvailable(dbc dbctx.Context, ids []uuid.UUID, available bool) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"available": available, "updated_at": time.Now().UTC()}).Error
}

func (r *chunkRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID, onlyAvailable bool) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("document_id = ?", docID)
	if onlyAvailable {
		q = q.Where("available = ?", true)
	}
	var results []*types.Chunk
	if err := q.Order("generation ASC, sequence_index ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) CountAvailable(dbc dbctx.Context, kbID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Scopes(availableIn(kbID)).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *chunkRepo) ListAvailableByIDs(dbc dbctx.Context, kbID uuid.UUID, ids []uuid.UUID) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Chunk
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Select("chunk.*").
		Scopes(availableIn(kbID)).
		Where("chunk.id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// LexicalFallback matches chunks containing any of terms, case-insensitively, newest first. There is
// no stemming or tokenization: a term matches as a raw substring.
func (r *chunkRepo) LexicalFallback(dbc dbctx.Context, kbID uuid.UUID, terms []string, limit int) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Chunk
	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		clauses = append(clauses, "LOWER(chunk.text) LIKE ?")
		args = append(args, "%"+t+"%")
	}
	if len(clauses) == 0 || limit <= 0 {
		return results, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Select("chunk.*").
		Scopes(availableIn(kbID)).
		Where("("+strings.Join(clauses, " OR ")+")", args...).
		Order("chunk.updated_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FullTextRank scores available chunks with ts_rank_cd normalization 32 (rank/(rank+1)), so scores are
// comparable with cosine similarity without further scaling.
func (r *chunkRepo) FullTextRank(dbc dbctx.Context, kbID uuid.UUID, query string, limit int) ([]RankedChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if transaction.Dialector.Name() != "postgres" {
		return nil, ErrFullTextUnsupported
	}
	var results []RankedChunk
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return results, nil
	}
	const rankExpr = "ts_rank_cd(to_tsvector('" + FullTextConfig + "', chunk.text), plainto_tsquery('" + FullTextConfig + "', ?), 32)"
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Select("chunk.id, chunk.document_id, chunk.document_name, chunk.text, "+rankExpr+" AS rank", query).
		Scopes(availableIn(kbID)).
		Where("to_tsvector('"+FullTextConfig+"', chunk.text) @@ plainto_tsquery('"+FullTextConfig+"', ?)", query).
		Order("rank DESC").
		Limit(limit).
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
