// Package db manages the relational store for Yantra.
package db

import (
	"fmt"
	"time"

	"yantra/internal/config"
	"yantra/internal/logging"
	"yantra/pkg/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM database instance.
type Database struct {
	DB *gorm.DB
}

// New opens a PostgreSQL connection, configures the pool, and runs migrations.
func New(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUser,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(30)
	sqlDB.SetConnMaxLifetime(time.Hour)

	database := &Database{DB: gdb}
	if err := database.Migrate(); err != nil {
		return nil, err
	}

	logging.S().Infow("database connected", "host", cfg.DatabaseHost, "db", cfg.DatabaseName)
	return database, nil
}

// NewSQLite opens an in-memory SQLite database. Used by tests.
func NewSQLite(dsn string) (*Database, error) {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	gdb, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	database := &Database{DB: gdb}
	if err := database.Migrate(); err != nil {
		return nil, err
	}
	return database, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Surface unique-constraint violations as gorm.ErrDuplicatedKey so
		// services can map them to their duplicate-id errors.
		TranslateError: true,
	}
}

// Migrate creates or updates the three Yantra tables.
func (d *Database) Migrate() error {
	err := d.DB.AutoMigrate(
		&models.Compiler{},
		&models.Submission{},
		&models.DockerfileTemplate{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise; the connection is always released.
func (d *Database) WithTx(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}
