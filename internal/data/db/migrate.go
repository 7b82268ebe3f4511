package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/deepmed-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return err
	}
	if db.Dialector.Name() == DialectPostgres {
		return ensureFullTextIndex(db)
	}
	return nil
}

// ensureFullTextIndex backs the lexical ranking query; the expression must match the one used at query
// time for the planner to pick it up.
func ensureFullTextIndex(db *gorm.DB) error {
	stmt := `CREATE INDEX IF NOT EXISTS idx_chunk_text_fts ON chunk USING GIN (to_tsvector('english', text))`
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create chunk fts index: %w", err)
	}
	return nil
}
