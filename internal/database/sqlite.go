package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/luthierworks/tabliste/backend/internal/counter"
	"github.com/luthierworks/tabliste/backend/internal/tokens"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// The database holds only small durable state: the tab id counter and the
// single-use file-access tokens. Tab content itself lives on the filesystem.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&counter.Record{}, &tokens.Token{}); err != nil {
		return nil, err
	}

	if purged, err := tokens.PurgeExpired(db); err != nil {
		if logger != nil {
			logger.Warn("expired token purge failed", zap.Error(err))
		}
	} else if purged > 0 && logger != nil {
		logger.Info("expired tokens purged", zap.Int64("count", purged))
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
