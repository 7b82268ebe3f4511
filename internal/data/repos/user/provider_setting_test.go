package user

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/deepmed-backend/internal/data/repos/testutil"
	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
)

func TestProviderSettingRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewProviderSettingRepo(db, testutil.Logger(t))

	userID := uuid.New()
	if got, err := repo.GetByUserID(dbc, userID); err != nil || got != nil {
		t.Fatalf("expected no setting: got=%v err=%v", got, err)
	}

	if err := repo.Upsert(dbc, &types.ProviderSetting{UserID: userID, BaseURL: "http://a", EmbeddingModel: "m1", APIKey: "k1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(dbc, &types.ProviderSetting{UserID: userID, BaseURL: "http://b", EmbeddingModel: "m2", APIKey: "k2"}); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	got, err := repo.GetByUserID(dbc, userID)
	if err != nil || got == nil {
		t.Fatalf("GetByUserID: got=%v err=%v", got, err)
	}
	if got.BaseURL != "http://b" || got.EmbeddingModel != "m2" || got.APIKey != "k2" {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}
