// Package store persists cab's local state: the active session and the
// chat resumption cursor. State lives in a single sqlite file.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atpline/cab/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Single-row tables: the fixed primary key for session and cursor rows.
const singletonID = 1

// ErrNoSession is returned when no authenticated session is stored.
var ErrNoSession = errors.New("store: no session")

// Store wraps the local sqlite database.
type Store struct {
	db *gorm.DB
}

// AllModels returns all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Session{},
		&models.ChatCursor{},
	}
}

// Open opens (creating if needed) the sqlite store at path and migrates
// the schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir for %s: %w", path, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveSession replaces the active session. A new session invalidates the
// chat cursor: messages from another tenant's backend share no id space.
func (s *Store) SaveSession(sess *models.Session) error {
	sess.ID = singletonID
	return s.db.Transaction(func(tx *gorm.DB) error {
		var prev models.Session
		err := tx.First(&prev, singletonID).Error
		switchedTenant := err == nil && prev.TenantID != sess.TenantID
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: load previous session: %w", err)
		}
		if err := tx.Save(sess).Error; err != nil {
			return fmt.Errorf("store: save session: %w", err)
		}
		if switchedTenant {
			if err := tx.Delete(&models.ChatCursor{}, singletonID).Error; err != nil {
				return fmt.Errorf("store: reset chat cursor: %w", err)
			}
		}
		return nil
	})
}

// LoadSession returns the active session, or ErrNoSession.
func (s *Store) LoadSession() (*models.Session, error) {
	var sess models.Session
	if err := s.db.First(&sess, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("store: load session: %w", err)
	}
	return &sess, nil
}

// UpdateAccessToken rewrites only the access token of the active session,
// used after a refresh.
func (s *Store) UpdateAccessToken(token string) error {
	result := s.db.Model(&models.Session{}).Where("id = ?", singletonID).
		Update("access_token", token)
	if result.Error != nil {
		return fmt.Errorf("store: update access token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoSession
	}
	return nil
}

// DeleteSession removes the session and the chat cursor.
func (s *Store) DeleteSession() error {
	if err := s.db.Delete(&models.Session{}, singletonID).Error; err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	if err := s.db.Delete(&models.ChatCursor{}, singletonID).Error; err != nil {
		return fmt.Errorf("store: delete chat cursor: %w", err)
	}
	return nil
}

// LastSeenID returns the persisted chat cursor, or "" when none is stored.
func (s *Store) LastSeenID() (string, error) {
	var cur models.ChatCursor
	if err := s.db.First(&cur, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("store: load chat cursor: %w", err)
	}
	return cur.LastSeenID, nil
}

// SetLastSeenID persists the chat cursor.
func (s *Store) SetLastSeenID(id string) error {
	cur := models.ChatCursor{ID: singletonID, LastSeenID: id}
	if err := s.db.Save(&cur).Error; err != nil {
		return fmt.Errorf("store: save chat cursor: %w", err)
	}
	return nil
}
