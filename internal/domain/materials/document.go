package materials

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DocumentStatusPending    = "pending"
	DocumentStatusConverting = "converting"
	DocumentStatusConverted  = "converted"
	DocumentStatusIndexing   = "indexing"
	DocumentStatusIndexed    = "indexed"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	KnowledgeBaseID uuid.UUID      `gorm:"type:uuid;not null;index" json:"knowledge_base_id"`
	KnowledgeBase   *KnowledgeBase `gorm:"constraint:OnDelete:CASCADE;foreignKey:KnowledgeBaseID;references:ID" json:"knowledge_base,omitempty"`

	Name       string `gorm:"column:name;not null" json:"name"`
	StorageKey string `gorm:"column:storage_key;not null" json:"storage_key"`
	MimeType   string `gorm:"column:mime_type" json:"mime_type,omitempty"`
	Size       int64  `gorm:"column:size" json:"size"`

	// Markdown is the converted body the indexer chunks.
	Markdown string `gorm:"column:markdown;type:text" json:"-"`

	Status      string  `gorm:"column:status;not null;index" json:"status"`
	Progress    float64 `gorm:"column:progress;not null;default:0" json:"progress"`
	ProgressMsg string  `gorm:"column:progress_msg" json:"progress_msg,omitempty"`
	ChunkNum    int     `gorm:"column:chunk_num;not null;default:0" json:"chunk_num"`
	Error       string  `gorm:"column:error" json:"error,omitempty"`

	// Generation increments on every successful re-index; chunks carry the generation they belong to.
	Generation int        `gorm:"column:generation;not null;default:0" json:"generation"`
	IndexedAt  *time.Time `gorm:"column:indexed_at;index" json:"indexed_at,omitempty"`

	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DocumentStatusPending
	}
	return nil
}
