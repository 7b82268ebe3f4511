package user

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type ProviderSettingRepo interface {
	// GetByUserID returns nil without error when the user has no override.
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.ProviderSetting, error)
	Upsert(dbc dbctx.Context, setting *types.ProviderSetting) error
}

type providerSettingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProviderSettingRepo(db *gorm.DB, baseLog *logger.Logger) ProviderSettingRepo {
	repoLog := baseLog.With("repo", "ProviderSettingRepo")
	return &providerSettingRepo{db: db, log: repoLog}
}

func (r *providerSettingRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.ProviderSetting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var results []*types.ProviderSetting
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *providerSettingRepo) Upsert(dbc dbctx.Context, setting *types.ProviderSetting) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if setting == nil || setting.UserID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"base_url", "embedding_model", "api_key", "updated_at"}),
		}).
		Create(setting).Error
}
