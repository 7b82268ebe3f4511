package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderSetting overrides the default embedding provider for one user.
type ProviderSetting struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	BaseURL        string    `gorm:"column:base_url" json:"base_url,omitempty"`
	EmbeddingModel string    `gorm:"column:embedding_model" json:"embedding_model,omitempty"`
	APIKey         string    `gorm:"column:api_key" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ProviderSetting) TableName() string { return "user_provider_setting" }

func (p *ProviderSetting) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
