package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/deepmed-backend/internal/domain"
)

func SeedKnowledgeBase(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.KnowledgeBase {
	tb.Helper()
	kb := &types.KnowledgeBase{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Name:        "kb",
	}
	if err := tx.WithContext(ctx).Create(kb).Error; err != nil {
		tb.Fatalf("seed knowledge base: %v", err)
	}
	return kb
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, kbID uuid.UUID, name string) *types.Document {
	tb.Helper()
	doc := &types.Document{
		ID:              uuid.New(),
		KnowledgeBaseID: kbID,
		Name:            name,
		StorageKey:      "docs/" + name,
		Status:          types.DocumentStatusPending,
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

// SeedIndexedChunks writes texts as the next available generation of doc and marks the document
// indexed. Later texts get a later updated_at.
func SeedIndexedChunks(tb testing.TB, ctx context.Context, tx *gorm.DB, doc *types.Document, texts ...string) []*types.Chunk {
	tb.Helper()
	now := time.Now().UTC()
	gen := doc.Generation + 1
	out := make([]*types.Chunk, 0, len(texts))
	for i, text := range texts {
		c := &types.Chunk{
			ID:              uuid.New(),
			DocumentID:      doc.ID,
			KnowledgeBaseID: doc.KnowledgeBaseID,
			DocumentName:    doc.Name,
			Generation:      gen,
			SequenceIndex:   i,
			Text:            text,
			SizeHint:        len(text),
			Available:       true,
		}
		if err := tx.WithContext(ctx).Create(c).Error; err != nil {
			tb.Fatalf("seed chunk %d: %v", i, err)
		}
		ts := now.Add(time.Duration(i) * time.Second)
		if err := tx.WithContext(ctx).Model(&types.Chunk{}).Where("id = ?", c.ID).UpdateColumn("updated_at", ts).Error; err != nil {
			tb.Fatalf("stamp chunk %d: %v", i, err)
		}
		c.UpdatedAt = ts
		out = append(out, c)
	}
	if err := tx.WithContext(ctx).Model(&types.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"generation": gen,
		"indexed_at": now,
		"status":     types.DocumentStatusIndexed,
		"chunk_num":  len(texts),
	}).Error; err != nil {
		tb.Fatalf("mark document indexed: %v", err)
	}
	doc.Generation = gen
	doc.IndexedAt = &now
	doc.Status = types.DocumentStatusIndexed
	return out
}
