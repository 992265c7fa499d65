package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Generation modes.
const (
	ModeText  = "text"
	ModeImage = "image"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Model types as stored on a model record.
const (
	ModelTypeText  = "text"
	ModelTypeImage = "image"
	ModelTypeBoth  = "both"
)

// ModelConfig is an API credential/endpoint configuration. The store
// returns API keys already decrypted; the client never logs them in full.
type ModelConfig struct {
	ID        int64
	Name      string
	BaseURL   string
	ModelName string
	APIKey    string
	ModelType string
	MaxTokens int
	IsDefault bool
}

// AssistantConfig is a named configuration of system prompt plus
// generation defaults, independent of which model executes it.
type AssistantConfig struct {
	ID                   int64
	Name                 string
	SystemPrompt         string
	DefaultModelID       int64
	MaxTokens            int
	Temperature          float64
	HistoryEnabled       bool
	HistoryMessagesCount int
}

// Message is one turn on the wire, exactly as sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationMessage is one stored turn of a session.
type ConversationMessage struct {
	ID          int64
	SessionID   string
	AssistantID int64
	ModelID     int64
	Role        string
	Content     string
	Tokens      int
	CreatedAt   time.Time
}

// GenerationRequest is the transient per-call input to the client.
type GenerationRequest struct {
	Mode        string         `json:"mode,omitempty"`
	ModelID     int64          `json:"model_id,omitempty"`
	AssistantID int64          `json:"assistant_id,omitempty"`
	Message     string         `json:"message,omitempty"`
	Prompt      string         `json:"prompt,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	// OverrideParams is merged over assistant/model defaults;
	// override wins on key collision. Values may arrive with wrong
	// scalar types (form posts) and are coerced at the boundary.
	OverrideParams map[string]interface{} `json:"params,omitempty"`
}

// GenerationResult is the normalized outcome of a call. Text mode fills
// Text; image mode fills Images with data-URI strings so the caller
// never needs to fetch a remote URL.
type GenerationResult struct {
	Text      string   `json:"text,omitempty"`
	Images    []string `json:"images,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// GenerationRecord tracks one image generation attempt. A pending record
// is written before the outbound call and is always resolved to success
// or error afterwards.
type GenerationRecord struct {
	ID         int64
	SessionID  string
	ModelID    int64
	Type       string
	Prompt     string
	Parameters string
	Status     string
	CreatedAt  time.Time
}

// Generation record statuses.
const (
	GenerationPending = "pending"
	GenerationSuccess = "success"
	GenerationError   = "error"
)

// ModelStore looks up model credential configurations.
type ModelStore interface {
	GetModel(ctx context.Context, id int64) (*ModelConfig, error)
	GetDefaultModel(ctx context.Context) (*ModelConfig, error)
	GetDefaultModelByType(ctx context.Context, modelType string) (*ModelConfig, error)
}

// AssistantStore looks up assistant configurations.
type AssistantStore interface {
	GetAssistant(ctx context.Context, id int64) (*AssistantConfig, error)
}

// HistoryStore persists and retrieves conversation turns. Implementations
// must make AppendMessage for a system turn idempotent per session.
type HistoryStore interface {
	AppendMessage(ctx context.Context, msg *ConversationMessage) error
	// RecentMessages returns up to limit most recent turns for the
	// session, in chronological order.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]ConversationMessage, error)
	// HasSystemMessage reports whether a system-role turn already exists
	// for the session.
	HasSystemMessage(ctx context.Context, sessionID string) (bool, error)
}

// GenerationStore persists generation attempt records.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, rec *GenerationRecord) (int64, error)
	MarkGenerationSuccess(ctx context.Context, id int64, images []string) error
	MarkGenerationError(ctx context.Context, id int64, message string) error
}

// TokenCounter approximates token counts for stored turns.
type TokenCounter interface {
	CountTokens(text string) int
}
