// Package history assembles the ordered message list sent with a chat
// request: system prompt first, then a bounded window of prior turns,
// then the new user turn.
package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aibridge/internal/core"
	"aibridge/internal/pkg/logger"
)

// historyFetchLimit caps how many stored turns are fetched before the
// assistant's own window is applied.
const historyFetchLimit = 100

// defaultWindow is used when an assistant enables history but carries no
// positive message count.
const defaultWindow = 10

// Assembler builds outbound message lists from an assistant
// configuration and the history store.
type Assembler struct {
	store  core.HistoryStore
	tokens core.TokenCounter
	log    *logger.Logger
}

// NewAssembler creates an Assembler. tokens may be nil, in which case
// persisted system turns are stored with a zero token count.
func NewAssembler(store core.HistoryStore, tokens core.TokenCounter, log *logger.Logger) *Assembler {
	return &Assembler{store: store, tokens: tokens, log: log}
}

// Assemble returns the ordered message list for a chat request. The
// system prompt, when present, is emitted first and persisted exactly
// once per session. When the assistant has history enabled, the trailing
// HistoryMessagesCount prior turns are included, minus system rows and
// minus any user turn that duplicates the current message. The new user
// turn is always last. A failing history store propagates; silently
// degrading to an empty history would change model behavior.
func (a *Assembler) Assemble(ctx context.Context, assistant *core.AssistantConfig, sessionID, userMessage string) ([]core.Message, error) {
	var messages []core.Message

	if assistant != nil && assistant.SystemPrompt != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: assistant.SystemPrompt})
		if err := a.persistSystemPrompt(ctx, assistant, sessionID); err != nil {
			return nil, err
		}
	}

	if assistant != nil && assistant.HistoryEnabled {
		window, err := a.historyWindow(ctx, assistant, sessionID, userMessage)
		if err != nil {
			return nil, err
		}
		messages = append(messages, window...)
	}

	messages = append(messages, core.Message{Role: core.RoleUser, Content: userMessage})

	if a.log != nil {
		a.log.Debug("assembled messages",
			zap.String("session_id", sessionID),
			zap.Int("total", len(messages)),
		)
	}
	return messages, nil
}

// persistSystemPrompt writes the system turn once per session. The store
// enforces uniqueness as well, so a concurrent first message cannot
// produce a duplicate row.
func (a *Assembler) persistSystemPrompt(ctx context.Context, assistant *core.AssistantConfig, sessionID string) error {
	exists, err := a.store.HasSystemMessage(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("check system prompt: %w", err)
	}
	if exists {
		return nil
	}

	msg := &core.ConversationMessage{
		SessionID:   sessionID,
		AssistantID: assistant.ID,
		Role:        core.RoleSystem,
		Content:     assistant.SystemPrompt,
	}
	if a.tokens != nil {
		msg.Tokens = a.tokens.CountTokens(assistant.SystemPrompt)
	}
	if err := a.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist system prompt: %w", err)
	}
	return nil
}

// historyWindow fetches recent turns and applies the assistant's window:
// system rows are dropped (already emitted), a user turn equal to the
// current message is dropped (defense against double submission), and
// only the trailing HistoryMessagesCount entries survive, in original
// chronological order.
func (a *Assembler) historyWindow(ctx context.Context, assistant *core.AssistantConfig, sessionID, userMessage string) ([]core.Message, error) {
	stored, err := a.store.RecentMessages(ctx, sessionID, historyFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	filtered := make([]core.Message, 0, len(stored))
	for _, turn := range stored {
		if turn.Role == core.RoleSystem {
			continue
		}
		if turn.Role == core.RoleUser && turn.Content == userMessage {
			continue
		}
		filtered = append(filtered, core.Message{Role: turn.Role, Content: turn.Content})
	}

	limit := assistant.HistoryMessagesCount
	if limit <= 0 {
		limit = defaultWindow
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}
