// Package store persists models, assistants, conversation history and
// generation attempts in SQLite through GORM. The core consumes it only
// through the narrow interfaces declared in internal/core.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Model is a stored API credential/endpoint configuration.
type Model struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:191;not null"`
	BaseURL   string `gorm:"size:255;not null"`
	ModelName string `gorm:"size:191;not null"`
	APIKey    string `gorm:"size:255"`
	ModelType string `gorm:"size:16;default:text"`
	MaxTokens int
	IsDefault bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assistant is a stored system prompt plus generation defaults.
type Assistant struct {
	ID                   int64  `gorm:"primaryKey"`
	Name                 string `gorm:"size:191;not null"`
	SystemPrompt         string `gorm:"type:text"`
	DefaultModelID       int64
	MaxTokens            int
	Temperature          float64
	HistoryEnabled       bool
	HistoryMessagesCount int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Conversation is one stored turn of a session.
type Conversation struct {
	ID          int64  `gorm:"primaryKey"`
	SessionID   string `gorm:"size:64;index;not null"`
	AssistantID int64
	ModelID     int64
	Role        string `gorm:"size:16;not null"`
	Content     string `gorm:"type:text"`
	Tokens      int
	// SystemKey mirrors SessionID on system rows only. Its unique index
	// turns the once-per-session system prompt into a hard constraint,
	// so two concurrent first messages cannot double-insert it.
	SystemKey *string `gorm:"size:64;uniqueIndex"`
	CreatedAt time.Time
}

// Generation is one image generation attempt: pending before the
// outbound call, then success or error.
type Generation struct {
	ID           int64  `gorm:"primaryKey"`
	SessionID    string `gorm:"size:64;index"`
	ModelID      int64
	Type         string `gorm:"size:16"`
	Prompt       string `gorm:"type:text"`
	Parameters   string `gorm:"type:text"`
	ResponseData string `gorm:"type:text"`
	ErrorMessage string `gorm:"type:text"`
	Status       string `gorm:"size:16;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store wraps the GORM handle and implements the core store interfaces.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Model{}, &Assistant{}, &Conversation{}, &Generation{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}
