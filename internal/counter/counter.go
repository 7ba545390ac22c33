// Package counter provides durable named counters with optimistic
// concurrency. Allocation conflicts between concurrent writers are resolved
// by retrying the read-compute-commit cycle; a conflict never surfaces to the
// caller.
package counter

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("counter: database handle is required")

// Record models one named counter row. Version carries the optimistic
// concurrency tag: a commit only lands if the version is unchanged since the
// read.
type Record struct {
	Name    string `gorm:"column:name;primaryKey;size:64;not null"`
	Value   uint64 `gorm:"column:value;not null;default:0"`
	Version int64  `gorm:"column:version;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "counters"
}

// Service issues monotonically increasing counter values backed by SQLite.
type Service struct {
	db *gorm.DB
}

// NewService constructs a counter service over the provided database handle.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Service{db: db}, nil
}

// Next increments the named counter and returns its new value. The
// read-compute-commit cycle retries on version conflicts; conflicts are
// transient, so retries are unbounded. Context cancellation stops the loop.
func (s *Service) Next(ctx context.Context, name string) (uint64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var record Record
		err := s.db.WithContext(ctx).Where("name = ?", name).Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := Record{Name: name, Value: 1, Version: 1}
			if createErr := s.db.WithContext(ctx).Create(&created).Error; createErr != nil {
				// Lost the creation race; re-read and try again.
				continue
			}
			return created.Value, nil
		}
		if err != nil {
			return 0, err
		}

		next := record.Value + 1
		result := s.db.WithContext(ctx).Model(&Record{}).
			Where("name = ? AND version = ?", name, record.Version).
			Updates(map[string]any{"value": next, "version": record.Version + 1})
		if result.Error != nil {
			return 0, result.Error
		}
		if result.RowsAffected == 0 {
			// Another writer committed since our read.
			continue
		}
		return next, nil
	}
}
