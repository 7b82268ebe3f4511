package materials

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KnowledgeBase struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Description string    `gorm:"column:description" json:"description,omitempty"`

	// Chunking knob; 0 means the chunker default.
	MaxChunkSize int `gorm:"column:max_chunk_size;not null;default:0" json:"max_chunk_size"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (KnowledgeBase) TableName() string { return "knowledge_base" }

func (kb *KnowledgeBase) BeforeCreate(tx *gorm.DB) error {
	if kb.ID == uuid.Nil {
		kb.ID = uuid.New()
	}
	return nil
}
