package providers

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"aibridge/internal/core"
	"aibridge/internal/core/engine"
	"aibridge/internal/core/history"
	"aibridge/internal/pkg/logger"
)

// probeTimeout bounds connectivity test calls, which should fail fast
// instead of waiting out the full generation timeout.
const probeTimeout = 30 * time.Second

// ClientConfig carries the collaborators a Client is built from.
// Generations and Tokens are optional.
type ClientConfig struct {
	Models      core.ModelStore
	Assistants  core.AssistantStore
	History     core.HistoryStore
	Generations core.GenerationStore
	Tokens      core.TokenCounter
	Transport   *Transport
	Log         *logger.Logger
}

// Client orchestrates one generation call end to end: it resolves the
// stored model and assistant configuration, assembles the conversation,
// builds and sends the provider request, and normalizes the reply. It is
// explicitly constructed and safe for concurrent use; calls for
// different sessions share no mutable state.
type Client struct {
	models      core.ModelStore
	assistants  core.AssistantStore
	history     core.HistoryStore
	generations core.GenerationStore
	tokens      core.TokenCounter
	transport   *Transport
	normalizer  *Normalizer
	assembler   *history.Assembler
	log         *logger.Logger
}

// NewClient creates a Client from its collaborators.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		models:      cfg.Models,
		assistants:  cfg.Assistants,
		history:     cfg.History,
		generations: cfg.Generations,
		tokens:      cfg.Tokens,
		transport:   cfg.Transport,
		normalizer:  NewNormalizer(cfg.Transport, cfg.Log),
		assembler:   history.NewAssembler(cfg.History, cfg.Tokens, cfg.Log),
		log:         cfg.Log,
	}
}

// Generate dispatches a request by mode. An empty mode means text.
func (c *Client) Generate(ctx context.Context, req *core.GenerationRequest) (*core.GenerationResult, error) {
	switch req.Mode {
	case core.ModeImage:
		return c.ImageGeneration(ctx, req)
	case core.ModeText, "":
		return c.ChatCompletion(ctx, req)
	default:
		return nil, core.Errorf(core.ErrValidation, "unknown generation mode %q", req.Mode)
	}
}

// ChatCompletion sends one chat exchange and returns the generated text.
// The user and assistant turns are persisted after the exchange; the
// system prompt is persisted once per session by the assembler.
func (c *Client) ChatCompletion(ctx context.Context, req *core.GenerationRequest) (*core.GenerationResult, error) {
	if req.Message == "" {
		return nil, core.NewError(core.ErrValidation, "message is required for chat completion")
	}

	model, err := c.resolveChatModel(ctx, req.ModelID, req.AssistantID)
	if err != nil {
		return nil, err
	}

	assistant, err := c.lookupAssistant(ctx, req.AssistantID)
	if err != nil {
		return nil, err
	}

	params := engine.ChatParamsFromAssistant(assistant)
	params.ApplyOverrides(req.OverrideParams)

	sessionID := ensureSessionID(req.SessionID, "sess")

	messages, err := c.assembler.Assemble(ctx, assistant, sessionID, req.Message)
	if err != nil {
		return nil, err
	}

	if err := c.saveTurn(ctx, sessionID, req, model.ID, core.RoleUser, req.Message); err != nil {
		return nil, err
	}

	payload, err := engine.BuildChatRequest(model.ModelName, messages, params)
	if err != nil {
		return nil, core.Errorf(core.ErrValidation, "failed to build chat request: %v", err).WithCause(err)
	}

	resp, err := c.transport.Post(ctx, model.BaseURL, model.APIKey, engine.EndpointChatCompletions, payload)
	if err != nil {
		return nil, err
	}

	text, err := c.normalizer.Text(resp)
	if err != nil {
		return nil, err
	}

	if err := c.saveTurn(ctx, sessionID, req, model.ID, core.RoleAssistant, text); err != nil {
		return nil, err
	}

	return &core.GenerationResult{Text: text, SessionID: sessionID}, nil
}

// ImageGeneration sends one image request and returns the generated
// images as data-URI strings. A pending generation record is written
// before the outbound call and always resolved to success or error.
func (c *Client) ImageGeneration(ctx context.Context, req *core.GenerationRequest) (*core.GenerationResult, error) {
	if req.Prompt == "" {
		return nil, core.NewError(core.ErrValidation, "prompt is required for image generation")
	}

	model, err := c.resolveImageModel(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	family := engine.Detect(model.BaseURL)

	params := engine.DefaultImageParams()
	params.Prompt = req.Prompt
	params.ApplyOverrides(req.OverrideParams)
	params.EnsureSeed()

	if err := params.Validate(family); err != nil {
		return nil, err
	}

	sessionID := ensureSessionID(req.SessionID, "img")

	recordID, err := c.recordPending(ctx, sessionID, model.ID, params)
	if err != nil {
		return nil, err
	}

	images, err := c.generateImages(ctx, model, params, family)
	if err != nil {
		c.resolveRecord(ctx, recordID, nil, err)
		return nil, err
	}

	c.resolveRecord(ctx, recordID, images, nil)
	return &core.GenerationResult{Images: images, SessionID: sessionID}, nil
}

func (c *Client) generateImages(ctx context.Context, model *core.ModelConfig, params engine.ImageParams, family engine.ProviderFamily) ([]string, error) {
	endpoint, payload, err := engine.BuildImageRequest(model.ModelName, params, family)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Post(ctx, model.BaseURL, model.APIKey, endpoint, payload)
	if err != nil {
		return nil, err
	}
	return c.normalizer.Images(ctx, resp, family)
}

// TestConnection sends a minimal chat request against the given
// credentials and reports the classified failure, if any.
func (c *Client) TestConnection(ctx context.Context, baseURL, apiKey, modelName string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	maxTokens := 5
	payload, err := engine.BuildChatRequest(modelName,
		[]core.Message{{Role: core.RoleUser, Content: "Hello"}},
		engine.ChatParams{MaxTokens: &maxTokens})
	if err != nil {
		return err
	}

	resp, err := c.transport.Post(ctx, baseURL, apiKey, engine.EndpointChatCompletions, payload)
	if err != nil {
		return err
	}
	_, err = c.normalizer.Text(resp)
	return err
}

// TestImageConnection sends a provider-aware image probe against the
// given credentials.
func (c *Client) TestImageConnection(ctx context.Context, baseURL, apiKey, modelName string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	family := engine.Detect(baseURL)
	params := engine.DefaultImageParams()
	params.Prompt = "test"
	params.Size = "256x256"

	endpoint, payload, err := engine.BuildImageRequest(modelName, params, family)
	if err != nil {
		return err
	}

	resp, err := c.transport.Post(ctx, baseURL, apiKey, endpoint, payload)
	if err != nil {
		return err
	}
	return c.normalizer.Check(resp)
}

// resolveChatModel picks a model for a chat request: the explicit id,
// then the assistant's default, then the global default.
func (c *Client) resolveChatModel(ctx context.Context, modelID, assistantID int64) (*core.ModelConfig, error) {
	if modelID != 0 {
		model, err := c.getModel(ctx, modelID)
		if err != nil {
			return nil, err
		}
		if model != nil {
			return model, nil
		}
	}

	if assistantID != 0 {
		assistant, err := c.lookupAssistant(ctx, assistantID)
		if err != nil {
			return nil, err
		}
		if assistant != nil && assistant.DefaultModelID != 0 {
			model, err := c.getModel(ctx, assistant.DefaultModelID)
			if err != nil {
				return nil, err
			}
			if model != nil {
				return model, nil
			}
		}
	}

	model, err := c.models.GetDefaultModel(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NewError(core.ErrConfiguration, "no AI model configured")
		}
		return nil, err
	}
	return model, nil
}

// resolveImageModel picks a model for an image request: the explicit id,
// then the default image-capable model.
func (c *Client) resolveImageModel(ctx context.Context, modelID int64) (*core.ModelConfig, error) {
	if modelID != 0 {
		model, err := c.getModel(ctx, modelID)
		if err != nil {
			return nil, err
		}
		if model != nil {
			return model, nil
		}
	}

	model, err := c.models.GetDefaultModelByType(ctx, core.ModelTypeImage)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NewError(core.ErrConfiguration, "no default image model configured")
		}
		return nil, err
	}
	return model, nil
}

// getModel looks a model up, mapping absence to nil so callers can fall
// through the selection chain.
func (c *Client) getModel(ctx context.Context, id int64) (*core.ModelConfig, error) {
	model, err := c.models.GetModel(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return model, err
}

// lookupAssistant resolves an assistant id, treating absence as nil.
func (c *Client) lookupAssistant(ctx context.Context, id int64) (*core.AssistantConfig, error) {
	if id == 0 {
		return nil, nil
	}
	assistant, err := c.assistants.GetAssistant(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return assistant, err
}

func (c *Client) saveTurn(ctx context.Context, sessionID string, req *core.GenerationRequest, modelID int64, role, content string) error {
	msg := &core.ConversationMessage{
		SessionID:   sessionID,
		AssistantID: req.AssistantID,
		ModelID:     modelID,
		Role:        role,
		Content:     content,
	}
	if c.tokens != nil {
		msg.Tokens = c.tokens.CountTokens(content)
	}
	return c.history.AppendMessage(ctx, msg)
}

func (c *Client) recordPending(ctx context.Context, sessionID string, modelID int64, params engine.ImageParams) (int64, error) {
	if c.generations == nil {
		return 0, nil
	}

	serialized, err := sonic.MarshalString(params)
	if err != nil {
		serialized = "{}"
	}
	return c.generations.CreateGeneration(ctx, &core.GenerationRecord{
		SessionID:  sessionID,
		ModelID:    modelID,
		Type:       core.ModeImage,
		Prompt:     params.Prompt,
		Parameters: serialized,
		Status:     core.GenerationPending,
	})
}

// resolveRecord closes out a pending generation record. A failing store
// is logged, not surfaced; the generation outcome already stands.
func (c *Client) resolveRecord(ctx context.Context, id int64, images []string, genErr error) {
	if c.generations == nil || id == 0 {
		return
	}

	var err error
	if genErr != nil {
		err = c.generations.MarkGenerationError(ctx, id, genErr.Error())
	} else {
		err = c.generations.MarkGenerationSuccess(ctx, id, images)
	}
	if err != nil && c.log != nil {
		c.log.Warn("failed to resolve generation record",
			zap.Int64("generation_id", id),
			zap.Error(err),
		)
	}
}

func ensureSessionID(provided, prefix string) string {
	if provided != "" {
		return provided
	}
	return prefix + "_" + uuid.NewString()
}
