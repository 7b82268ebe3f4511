package materials

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetByKnowledgeBaseID(dbc dbctx.Context, kbID uuid.UUID) ([]*types.Document, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateProgress(dbc dbctx.Context, id uuid.UUID, status string, progress float64, msg string) error
	SetMarkdown(dbc dbctx.Context, id uuid.UUID, markdown string) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	repoLog := baseLog.With("repo", "DocumentRepo")
	return &documentRepo{db: db, log: repoLog}
}

func (r *documentRepo) Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(docs) == 0 {
		return []*types.Document{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Document
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("document %s: %w", id, pkgerrors.ErrNotFound)
	}
	return results[0], nil
}

func (r *documentRepo) GetByKnowledgeBaseID(dbc dbctx.Context, kbID uuid.UUID) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Document
	if err := transaction.WithContext(dbc.Ctx).
		Where("knowledge_base_id = ?", kbID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *documentRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, status string, progress float64, msg string) error {
	updates := map[string]interface{}{
		"progress":     progress,
		"progress_msg": msg,
	}
	if status != "" {
		updates["status"] = status
	}
	return r.UpdateFields(dbc, id, updates)
}

func (r *documentRepo) SetMarkdown(dbc dbctx.Context, id uuid.UUID, markdown string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"markdown": markdown,
		"status":   types.DocumentStatusConverted,
		"error":    "",
	})
}

func (r *documentRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"status":       types.DocumentStatusFailed,
		"error":        errMsg,
		"progress_msg": errMsg,
	})
}
