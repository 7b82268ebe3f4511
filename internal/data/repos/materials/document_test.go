package materials

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/data/repos/testutil"
	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
)

func TestDocumentRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewDocumentRepo(db, testutil.Logger(t))
	kbRepo := NewKnowledgeBaseRepo(db, testutil.Logger(t))

	kbs, err := kbRepo.Create(dbc, []*types.KnowledgeBase{{OwnerUserID: uuid.New(), Name: "cardio"}})
	if err != nil || len(kbs) != 1 {
		t.Fatalf("Create kb: err=%v", err)
	}
	if _, err := kbRepo.GetByID(dbc, kbs[0].ID); err != nil {
		t.Fatalf("GetByID kb: %v", err)
	}

	docs, err := repo.Create(dbc, []*types.Document{{KnowledgeBaseID: kbs[0].ID, Name: "a.pdf", StorageKey: "k/a.pdf"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := docs[0].ID
	if docs[0].Status != types.DocumentStatusPending {
		t.Fatalf("default status: %q", docs[0].Status)
	}

	if err := repo.UpdateProgress(dbc, id, types.DocumentStatusConverting, 0.3, "parsing"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := repo.SetMarkdown(dbc, id, "# Title\n\nBody."); err != nil {
		t.Fatalf("SetMarkdown: %v", err)
	}
	got, err := repo.GetByID(dbc, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.DocumentStatusConverted || got.Markdown != "# Title\n\nBody." || got.ProgressMsg != "parsing" {
		t.Fatalf("unexpected document: %+v", got)
	}

	if err := repo.MarkFailed(dbc, id, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ = repo.GetByID(dbc, id)
	if got.Status != types.DocumentStatusFailed || got.Error != "boom" {
		t.Fatalf("MarkFailed not applied: %+v", got)
	}

	list, err := repo.GetByKnowledgeBaseID(dbc, kbs[0].ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("GetByKnowledgeBaseID: len=%d err=%v", len(list), err)
	}

	if _, err := repo.GetByID(dbc, uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
