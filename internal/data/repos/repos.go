package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/deepmed-backend/internal/data/repos/materials"
	"github.com/yungbote/deepmed-backend/internal/data/repos/user"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type KnowledgeBaseRepo = materials.KnowledgeBaseRepo
type DocumentRepo = materials.DocumentRepo
type ChunkRepo = materials.ChunkRepo

type ProviderSettingRepo = user.ProviderSettingRepo

type (
	ReplaceResult = materials.ReplaceResult
	RankedChunk   = materials.RankedChunk
)

var ErrFullTextUnsupported = materials.ErrFullTextUnsupported

func NewKnowledgeBaseRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeBaseRepo {
	return materials.NewKnowledgeBaseRepo(db, baseLog)
}
func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return materials.NewDocumentRepo(db, baseLog)
}
func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return materials.NewChunkRepo(db, baseLog)
}
func NewProviderSettingRepo(db *gorm.DB, baseLog *logger.Logger) ProviderSettingRepo {
	return user.NewProviderSettingRepo(db, baseLog)
}
