package materials

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/data/repos/testutil"
	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
)

func TestChunkRepoReplaceForDocument(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewChunkRepo(db, testutil.Logger(t))

	kb := testutil.SeedKnowledgeBase(t, ctx, db)
	doc := testutil.SeedDocument(t, ctx, db, kb.ID, "guide.md")

	if n, err := repo.CountAvailable(dbc, kb.ID); err != nil || n != 0 {
		t.Fatalf("CountAvailable before index: n=%d err=%v", n, err)
	}

	first, err := repo.ReplaceForDocument(dbc, doc.ID, []*types.Chunk{{Text: "alpha one."}, {Text: "alpha two."}})
	if err != nil {
		t.Fatalf("ReplaceForDocument: %v", err)
	}
	if first.Generation != 1 || len(first.Retired) != 0 {
		t.Fatalf("first replace: %+v", first)
	}
	if n, err := repo.CountAvailable(dbc, kb.ID); err != nil || n != 2 {
		t.Fatalf("CountAvailable after first index: n=%d err=%v", n, err)
	}

	second, err := repo.ReplaceForDocument(dbc, doc.ID, []*types.Chunk{{Text: "beta one."}, {Text: "beta two."}, {Text: "beta three."}})
	if err != nil {
		t.Fatalf("ReplaceForDocument second: %v", err)
	}
	if second.Generation != 2 || len(second.Retired) != 2 {
		t.Fatalf("second replace: %+v", second)
	}

	live, err := repo.GetByDocumentID(dbc, doc.ID, true)
	if err != nil {
		t.Fatalf("GetByDocumentID: %v", err)
	}
	if len(live) != 3 {
		t.Fatalf("expected 3 live chunks, got %d", len(live))
	}
	for i, c := range live {
		if c.SequenceIndex != i || c.Generation != 2 || c.KnowledgeBaseID != kb.ID || c.DocumentName != "guide.md" {
			t.Fatalf("unexpected chunk %d: %+v", i, c)
		}
	}

	all, err := repo.GetByDocumentID(dbc, doc.ID, false)
	if err != nil || len(all) != 5 {
		t.Fatalf("old generation should be kept unavailable: len=%d err=%v", len(all), err)
	}

	var stored types.Document
	if err := db.WithContext(ctx).First(&stored, "id = ?", doc.ID).Error; err != nil {
		t.Fatalf("load document: %v", err)
	}
	if stored.Generation != 2 || stored.ChunkNum != 3 || stored.IndexedAt == nil || stored.Status != types.DocumentStatusIndexed {
		t.Fatalf("document not stamped: %+v", stored)
	}
}

func TestChunkRepoReplaceMissingDocument(t *testing.T) {
	db := testutil.DB(t)
	repo := NewChunkRepo(db, testutil.Logger(t))
	_, err := repo.ReplaceForDocument(dbctx.Context{Ctx: context.Background()}, uuid.New(), []*types.Chunk{{Text: "x"}})
	if err == nil {
		t.Fatalf("expected error for missing document")
	}
}

func TestChunkRepoAvailabilityRules(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewChunkRepo(db, testutil.Logger(t))

	kb := testutil.SeedKnowledgeBase(t, ctx, db)
	indexed := testutil.SeedDocument(t, ctx, db, kb.ID, "indexed.txt")
	chunks := testutil.SeedIndexedChunks(t, ctx, db, indexed, "Insulin dosing guide.", "Heart rate basics.")

	// available chunk of a document that never finished indexing
	pending := testutil.SeedDocument(t, ctx, db, kb.ID, "pending.txt")
	orphan := &types.Chunk{DocumentID: pending.ID, KnowledgeBaseID: kb.ID, Text: "insulin pending", Available: true, Generation: 1}
	if err := db.WithContext(ctx).Create(orphan).Error; err != nil {
		t.Fatalf("seed orphan chunk: %v", err)
	}

	if n, err := repo.CountAvailable(dbc, kb.ID); err != nil || n != 2 {
		t.Fatalf("CountAvailable: n=%d err=%v", n, err)
	}

	if err := repo.SetAvailable(dbc, []uuid.UUID{chunks[0].ID}, false); err != nil {
		t.Fatalf("SetAvailable: %v", err)
	}
	if n, err := repo.CountAvailable(dbc, kb.ID); err != nil || n != 1 {
		t.Fatalf("CountAvailable after toggle: n=%d err=%v", n, err)
	}

	rows, err := repo.ListAvailableByIDs(dbc, kb.ID, []uuid.UUID{chunks[0].ID, chunks[1].ID, orphan.ID})
	if err != nil {
		t.Fatalf("ListAvailableByIDs: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != chunks[1].ID {
		t.Fatalf("ListAvailableByIDs returned %+v", rows)
	}

	if n, err := repo.CountAvailable(dbc, uuid.New()); err != nil || n != 0 {
		t.Fatalf("CountAvailable other kb: n=%d err=%v", n, err)
	}
}

func TestChunkRepoLexicalFallback(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewChunkRepo(db, testutil.Logger(t))

	kb := testutil.SeedKnowledgeBase(t, ctx, db)
	doc := testutil.SeedDocument(t, ctx, db, kb.ID, "notes.txt")
	chunks := testutil.SeedIndexedChunks(t, ctx, db, doc,
		"Insulin lowers blood glucose.",
		"Unrelated text about bones.",
		"HEART failure and insulin resistance.",
	)

	rows, err := repo.LexicalFallback(dbc, kb.ID, []string{"insulin", "heart"}, 10)
	if err != nil {
		t.Fatalf("LexicalFallback: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(rows))
	}
	// newest first
	if rows[0].ID != chunks[2].ID || rows[1].ID != chunks[0].ID {
		t.Fatalf("unexpected order: %s, %s", rows[0].Text, rows[1].Text)
	}

	rows, err = repo.LexicalFallback(dbc, kb.ID, []string{"insulin"}, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("limit not applied: len=%d err=%v", len(rows), err)
	}

	rows, err = repo.LexicalFallback(dbc, kb.ID, nil, 10)
	if err != nil || len(rows) != 0 {
		t.Fatalf("no terms should match nothing: len=%d err=%v", len(rows), err)
	}
}

func TestChunkRepoFullTextRank(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewChunkRepo(db, testutil.Logger(t))

	if db.Dialector.Name() != "postgres" {
		if _, err := repo.FullTextRank(dbc, uuid.New(), "insulin", 5); !errors.Is(err, ErrFullTextUnsupported) {
			t.Fatalf("expected ErrFullTextUnsupported, got %v", err)
		}
	}
	testutil.Postgres(t, db)

	kb := testutil.SeedKnowledgeBase(t, ctx, db)
	doc := testutil.SeedDocument(t, ctx, db, kb.ID, "fts.txt")
	testutil.SeedIndexedChunks(t, ctx, db, doc, "Insulin regulates glucose.", "Bones and joints.")

	rows, err := repo.FullTextRank(dbc, kb.ID, "insulin glucose", 5)
	if err != nil {
		t.Fatalf("FullTextRank: %v", err)
	}
	if len(rows) != 1 || rows[0].Rank <= 0 || rows[0].Rank >= 1 {
		t.Fatalf("unexpected ranking: %+v", rows)
	}
}
