package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type Config struct {
	Driver     string `yaml:"driver" validate:"oneof=postgres sqlite"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"ssl_mode"`
	SQLitePath string `yaml:"sqlite_path"`
}

type Service struct {
	db      *gorm.DB
	dialect string
	log     *logger.Logger
}

// Open connects with the configured driver.
func Open(cfg Config, logg *logger.Logger) (*Service, error) {
	switch cfg.Driver {
	case DialectSQLite:
		return NewSQLiteService(cfg.SQLitePath, logg)
	case "", DialectPostgres:
		return NewPostgresService(cfg, logg)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

func NewPostgresService(cfg Config, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "PostgresService")

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	serviceLog.Info("connected", "host", cfg.Host, "db", cfg.Name)
	return &Service{db: db, dialect: DialectPostgres, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Dialect() string { return s.dialect }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newGormLogger() gormLogger.Interface {
	return gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
