package domain

import (
	"github.com/yungbote/deepmed-backend/internal/domain/materials"
	"github.com/yungbote/deepmed-backend/internal/domain/user"
)

const (
	DocumentStatusPending    = materials.DocumentStatusPending
	DocumentStatusConverting = materials.DocumentStatusConverting
	DocumentStatusConverted  = materials.DocumentStatusConverted
	DocumentStatusIndexing   = materials.DocumentStatusIndexing
	DocumentStatusIndexed    = materials.DocumentStatusIndexed
	DocumentStatusFailed     = materials.DocumentStatusFailed
)

type (
	KnowledgeBase = materials.KnowledgeBase
	Document      = materials.Document
	Chunk         = materials.Chunk

	ProviderSetting = user.ProviderSetting
)

// Models lists every persisted type, in migration order.
func Models() []any {
	return []any{
		&KnowledgeBase{},
		&Document{},
		&Chunk{},
		&ProviderSetting{},
	}
}
