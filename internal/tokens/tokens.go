// Package tokens issues single-use, short-lived tokens that authorize
// fetching one tab's primary file. The notation renderer cannot attach the
// session cookie to its file request, so the frontend first trades its
// session for a temp token and passes it as a query parameter.
package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultTTL = 60 * time.Second

var (
	errMissingDatabase = errors.New("tokens: database handle is required")
	// ErrInvalidToken indicates an unknown, expired or already-used token.
	ErrInvalidToken = errors.New("tokens: invalid or expired token")
	// ErrTokenMismatch indicates a token that was issued for a different tab.
	ErrTokenMismatch = errors.New("tokens: token does not match tab")
)

// Token models one issued file-access token.
type Token struct {
	Value     string    `gorm:"column:value;primaryKey;size:64;not null"`
	TabID     string    `gorm:"column:tab_id;size:64;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Token) TableName() string {
	return "temp_tokens"
}

// ServiceConfig carries the collaborators of a token service.
type ServiceConfig struct {
	Database *gorm.DB
	TTL      time.Duration
	Clock    func() time.Time
}

// Service issues and consumes file-access tokens.
type Service struct {
	db    *gorm.DB
	ttl   time.Duration
	clock func() time.Time
}

// NewService constructs a Service with sane defaults.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, ttl: ttl, clock: clock}, nil
}

// Issue creates a token granting one fetch of the given tab's file.
func (s *Service) Issue(ctx context.Context, tabID string) (string, error) {
	value := uuid.NewString()
	token := Token{
		Value:     value,
		TabID:     tabID,
		ExpiresAt: s.clock().UTC().Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		return "", err
	}
	return value, nil
}

// Consume validates a token against the tab it was issued for and deletes it.
// A token authorizes exactly one fetch.
func (s *Service) Consume(ctx context.Context, value, tabID string) error {
	var token Token
	err := s.db.WithContext(ctx).Where("value = ?", value).Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}

	// Single use regardless of outcome.
	if err := s.db.WithContext(ctx).Delete(&Token{}, "value = ?", value).Error; err != nil {
		return err
	}

	if s.clock().UTC().After(token.ExpiresAt) {
		return ErrInvalidToken
	}
	if token.TabID != tabID {
		return ErrTokenMismatch
	}
	return nil
}

// PurgeExpired removes tokens that expired before now. Called on startup.
func PurgeExpired(db *gorm.DB) (int64, error) {
	if db == nil {
		return 0, errMissingDatabase
	}
	result := db.Delete(&Token{}, "expires_at < ?", time.Now().UTC())
	return result.RowsAffected, result.Error
}
