// Package history records evaluations in a SQLite database so a session's
// transcript survives restarts of the server and the CLI.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one recorded evaluation.
type Entry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"index;size:128;not null" json:"session_id"`
	Source     string    `gorm:"not null" json:"source"`
	Result     string    `gorm:"not null" json:"result"`
	Kind       string    `gorm:"size:32;not null" json:"kind"`
	DurationUS int64     `json:"duration_us"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Store is a history database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the history database at path. The special path
// ":memory:" keeps the history in memory.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path must not be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database %q: %w", path, err)
	}
	if path == ":memory:" {
		// Each new connection to :memory: is a separate, empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("accessing history connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode=WAL")
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends e. ID and CreatedAt are filled in when zero.
func (s *Store) Record(e *Entry) error {
	if e.SessionID == "" {
		return errors.New("history entry has no session id")
	}
	if err := s.db.Create(e).Error; err != nil {
		return fmt.Errorf("recording history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty sessionID
// matches every session.
func (s *Store) Recent(sessionID string, limit int) ([]Entry, error) {
	q := s.db.Order("created_at DESC").Order("id DESC")
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []Entry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return entries, nil
}

// Purge deletes the entries of sessionID and returns how many it removed.
func (s *Store) Purge(sessionID string) (int64, error) {
	res := s.db.Where("session_id = ?", sessionID).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
