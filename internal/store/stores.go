package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aibridge/internal/core"
)

// GetModel implements core.ModelStore.
func (s *Store) GetModel(ctx context.Context, id int64) (*core.ModelConfig, error) {
	var row Model
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return modelConfig(&row), nil
}

// GetDefaultModel implements core.ModelStore.
func (s *Store) GetDefaultModel(ctx context.Context) (*core.ModelConfig, error) {
	var row Model
	err := s.db.WithContext(ctx).Where("is_default = ?", true).First(&row).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return modelConfig(&row), nil
}

// GetDefaultModelByType implements core.ModelStore. Models typed "both"
// satisfy any requested type.
func (s *Store) GetDefaultModelByType(ctx context.Context, modelType string) (*core.ModelConfig, error) {
	var row Model
	err := s.db.WithContext(ctx).
		Where("(model_type = ? OR model_type = ?) AND is_default = ?", modelType, core.ModelTypeBoth, true).
		First(&row).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return modelConfig(&row), nil
}

// SaveModel inserts or updates a model row.
func (s *Store) SaveModel(ctx context.Context, row *Model) error {
	return s.db.WithContext(ctx).Save(row).Error
}

// GetAssistant implements core.AssistantStore.
func (s *Store) GetAssistant(ctx context.Context, id int64) (*core.AssistantConfig, error) {
	var row Assistant
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &core.AssistantConfig{
		ID:                   row.ID,
		Name:                 row.Name,
		SystemPrompt:         row.SystemPrompt,
		DefaultModelID:       row.DefaultModelID,
		MaxTokens:            row.MaxTokens,
		Temperature:          row.Temperature,
		HistoryEnabled:       row.HistoryEnabled,
		HistoryMessagesCount: row.HistoryMessagesCount,
	}, nil
}

// SaveAssistant inserts or updates an assistant row.
func (s *Store) SaveAssistant(ctx context.Context, row *Assistant) error {
	return s.db.WithContext(ctx).Save(row).Error
}

// AppendMessage implements core.HistoryStore. System turns carry a
// unique per-session key, so a duplicate insert is silently dropped
// instead of violating the once-per-session invariant.
func (s *Store) AppendMessage(ctx context.Context, msg *core.ConversationMessage) error {
	row := Conversation{
		SessionID:   msg.SessionID,
		AssistantID: msg.AssistantID,
		ModelID:     msg.ModelID,
		Role:        msg.Role,
		Content:     msg.Content,
		Tokens:      msg.Tokens,
	}
	if msg.Role == core.RoleSystem {
		key := msg.SessionID
		row.SystemKey = &key
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	msg.ID = row.ID
	return nil
}

// RecentMessages implements core.HistoryStore: the limit most recent
// turns for a session, returned in chronological order.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]core.ConversationMessage, error) {
	var rows []Conversation
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	out := make([]core.ConversationMessage, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = core.ConversationMessage{
			ID:          row.ID,
			SessionID:   row.SessionID,
			AssistantID: row.AssistantID,
			ModelID:     row.ModelID,
			Role:        row.Role,
			Content:     row.Content,
			Tokens:      row.Tokens,
			CreatedAt:   row.CreatedAt,
		}
	}
	return out, nil
}

// HasSystemMessage implements core.HistoryStore.
func (s *Store) HasSystemMessage(ctx context.Context, sessionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Conversation{}).
		Where("session_id = ? AND role = ?", sessionID, core.RoleSystem).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count system messages: %w", err)
	}
	return count > 0, nil
}

// ClearSession deletes all turns of a session.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&Conversation{}).Error
}

// PurgeOlderThan deletes conversation turns older than the given number
// of days and reports how many were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Conversation{})
	return res.RowsAffected, res.Error
}

// CreateGeneration implements core.GenerationStore.
func (s *Store) CreateGeneration(ctx context.Context, rec *core.GenerationRecord) (int64, error) {
	row := Generation{
		SessionID:  rec.SessionID,
		ModelID:    rec.ModelID,
		Type:       rec.Type,
		Prompt:     rec.Prompt,
		Parameters: rec.Parameters,
		Status:     rec.Status,
	}
	if row.Status == "" {
		row.Status = core.GenerationPending
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("create generation: %w", err)
	}
	rec.ID = row.ID
	return row.ID, nil
}

// MarkGenerationSuccess implements core.GenerationStore.
func (s *Store) MarkGenerationSuccess(ctx context.Context, id int64, images []string) error {
	data, err := sonic.MarshalString(images)
	if err != nil {
		data = "[]"
	}
	return s.db.WithContext(ctx).
		Model(&Generation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        core.GenerationSuccess,
			"response_data": data,
		}).Error
}

// MarkGenerationError implements core.GenerationStore.
func (s *Store) MarkGenerationError(ctx context.Context, id int64, message string) error {
	return s.db.WithContext(ctx).
		Model(&Generation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        core.GenerationError,
			"error_message": message,
		}).Error
}

func modelConfig(row *Model) *core.ModelConfig {
	return &core.ModelConfig{
		ID:        row.ID,
		Name:      row.Name,
		BaseURL:   row.BaseURL,
		ModelName: row.ModelName,
		APIKey:    row.APIKey,
		ModelType: row.ModelType,
		MaxTokens: row.MaxTokens,
		IsDefault: row.IsDefault,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrNotFound
	}
	return err
}
