package materials

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Chunk is an immutable, ordered segment of a document's text. Only Available and UpdatedAt change
// after creation.
type Chunk struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_chunk_doc_gen_seq,priority:1" json:"document_id"`
	Document        *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	KnowledgeBaseID uuid.UUID `gorm:"type:uuid;not null;index:idx_chunk_kb_available,priority:1" json:"knowledge_base_id"`
	DocumentName    string    `gorm:"column:document_name" json:"document_name"`

	Generation    int    `gorm:"column:generation;not null;uniqueIndex:idx_chunk_doc_gen_seq,priority:2" json:"generation"`
	SequenceIndex int    `gorm:"column:sequence_index;not null;uniqueIndex:idx_chunk_doc_gen_seq,priority:3" json:"sequence_index"`
	Text          string `gorm:"column:text;type:text;not null" json:"text"`
	SizeHint      int    `gorm:"column:size_hint;not null" json:"size_hint"`
	Available     bool   `gorm:"column:available;not null;default:false;index:idx_chunk_kb_available,priority:2" json:"available"`

	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime;index" json:"updated_at"`
}

func (Chunk) TableName() string { return "chunk" }

func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
