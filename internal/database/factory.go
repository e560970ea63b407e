package database

import (
	"fmt"
	"os"
	"path/filepath"

	"cpd-go/internal/cpd"
	"cpd-go/internal/config"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, hostID string) (cpd.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dbPath := filepath.Join(cfg.DataDir, hostID+".db")
		// Fresh database files need the schema; existing ones are
		// verified by CheckMigrations at startup.
		_, statErr := os.Stat(dbPath)
		return NewSQLiteDatabase(dbPath, os.IsNotExist(statErr))
	case "memory":
		return NewSQLiteDatabase(":memory:", true)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
