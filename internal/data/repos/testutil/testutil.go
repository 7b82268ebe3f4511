package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/deepmed-backend/internal/data/db"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

var dbSeq atomic.Int64

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

// DB returns a migrated database. It uses TEST_POSTGRES_DSN when set and otherwise a private
// in-memory sqlite database per call.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}

	var (
		conn *gorm.DB
		err  error
	)
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		conn, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		name := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", dbSeq.Add(1))
		conn, err = gorm.Open(sqlite.Open(name), cfg)
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil {
				sqlDB.SetMaxOpenConns(1)
				tb.Cleanup(func() { _ = sqlDB.Close() })
			}
		}
	}
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	return conn
}

// Postgres skips the test unless it runs against a real Postgres.
func Postgres(tb testing.TB, conn *gorm.DB) {
	tb.Helper()
	if conn.Dialector.Name() != db.DialectPostgres {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres-only tests")
	}
}
