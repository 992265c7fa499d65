package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"aibridge/internal/core"
)

// memoryStores is a minimal in-memory backing for handler tests: one
// model, no assistants, volatile history.
type memoryStores struct {
	mu       sync.Mutex
	model    *core.ModelConfig
	messages []core.ConversationMessage
}

func newMemoryStores() *memoryStores {
	return &memoryStores{}
}

func (s *memoryStores) GetModel(_ context.Context, id int64) (*core.ModelConfig, error) {
	if s.model != nil && s.model.ID == id {
		return s.model, nil
	}
	return nil, core.ErrNotFound
}

func (s *memoryStores) GetDefaultModel(_ context.Context) (*core.ModelConfig, error) {
	if s.model != nil && s.model.IsDefault {
		return s.model, nil
	}
	return nil, core.ErrNotFound
}

func (s *memoryStores) GetDefaultModelByType(_ context.Context, modelType string) (*core.ModelConfig, error) {
	if s.model != nil && s.model.IsDefault &&
		(s.model.ModelType == modelType || s.model.ModelType == core.ModelTypeBoth) {
		return s.model, nil
	}
	return nil, core.ErrNotFound
}

func (s *memoryStores) GetAssistant(_ context.Context, id int64) (*core.AssistantConfig, error) {
	return nil, core.ErrNotFound
}

func (s *memoryStores) AppendMessage(_ context.Context, msg *core.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *memoryStores) RecentMessages(_ context.Context, sessionID string, limit int) ([]core.ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ConversationMessage
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memoryStores) HasSystemMessage(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.SessionID == sessionID && m.Role == core.RoleSystem {
			return true, nil
		}
	}
	return false, nil
}

func zaptestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

func readJSON(t *testing.T, resp *http.Response) gjson.Result {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return gjson.ParseBytes(body)
}
