package materials

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type KnowledgeBaseRepo interface {
	Create(dbc dbctx.Context, kbs []*types.KnowledgeBase) ([]*types.KnowledgeBase, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeBase, error)
}

type knowledgeBaseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeBaseRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeBaseRepo {
	repoLog := baseLog.With("repo", "KnowledgeBaseRepo")
	return &knowledgeBaseRepo{db: db, log: repoLog}
}

func (r *knowledgeBaseRepo) Create(dbc dbctx.Context, kbs []*types.KnowledgeBase) ([]*types.KnowledgeBase, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(kbs) == 0 {
		return []*types.KnowledgeBase{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&kbs).Error; err != nil {
		return nil, err
	}
	return kbs, nil
}

func (r *knowledgeBaseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeBase, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.KnowledgeBase
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("knowledge base %s: %w", id, pkgerrors.ErrNotFound)
	}
	return results[0], nil
}
