package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

// NewSQLiteService opens a local database file, or a private in-memory database when path is empty.
// Full-text ranking is unavailable on this dialect; retrieval relies on the substring fallback.
func NewSQLiteService(path string, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "SQLiteService")
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", dsn, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// one writer; sqlite serializes anyway
		sqlDB.SetMaxOpenConns(1)
	}
	return &Service{db: db, dialect: DialectSQLite, log: serviceLog}, nil
}
