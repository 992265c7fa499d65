package engine

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tidwall/sjson"

	"aibridge/internal/core"
)

// Seed range accepted by the upstream providers.
const (
	SeedMin = 0
	SeedMax = 99999
)

const maxPromptLength = 4000

var sizePattern = regexp.MustCompile(`^\d+x\d+$`)

var allowedAspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16"}

var allowedResponseFormats = []string{"url", "b64_json"}

// ChatParams are the generation parameters of a chat request. Nil fields
// are omitted from the payload entirely; upstream APIs reject wrongly
// typed scalars, so everything is coerced to its target type before it
// reaches the wire.
type ChatParams struct {
	MaxTokens        *int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stream           *bool
	Stop             []string
}

// ChatParamsFromAssistant derives chat defaults from an assistant
// configuration. A nil assistant yields empty params.
func ChatParamsFromAssistant(assistant *core.AssistantConfig) ChatParams {
	var p ChatParams
	if assistant == nil {
		return p
	}
	if assistant.MaxTokens > 0 {
		v := assistant.MaxTokens
		p.MaxTokens = &v
	}
	t := assistant.Temperature
	p.Temperature = &t
	return p
}

// ApplyOverrides merges caller-supplied parameters over the defaults,
// override wins on collision. Values are coerced per the field table;
// uncoercible values and unknown keys are silently dropped.
func (p *ChatParams) ApplyOverrides(overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case "max_tokens":
			if n, ok := coerceInt(value); ok {
				p.MaxTokens = &n
			}
		case "temperature":
			if f, ok := coerceFloat(value); ok {
				p.Temperature = &f
			}
		case "top_p":
			if f, ok := coerceFloat(value); ok {
				p.TopP = &f
			}
		case "frequency_penalty":
			if f, ok := coerceFloat(value); ok {
				p.FrequencyPenalty = &f
			}
		case "presence_penalty":
			if f, ok := coerceFloat(value); ok {
				p.PresencePenalty = &f
			}
		case "stream":
			if b, ok := coerceBool(value); ok {
				p.Stream = &b
			}
		case "stop":
			if s, ok := coerceStringSlice(value); ok {
				p.Stop = s
			}
		}
	}
}

// BuildChatRequest assembles the chat-completions payload. The model and
// messages are always present; parameters are included only when set.
func BuildChatRequest(modelName string, messages []core.Message, p ChatParams) ([]byte, error) {
	body := newJSONBody()
	body.set("model", modelName)

	rawMessages, err := sonic.Marshal(messages)
	if err != nil {
		return nil, err
	}
	body.setRaw("messages", rawMessages)

	if p.MaxTokens != nil {
		body.set("max_tokens", *p.MaxTokens)
	}
	if p.Temperature != nil {
		body.set("temperature", *p.Temperature)
	}
	if p.TopP != nil {
		body.set("top_p", *p.TopP)
	}
	if p.FrequencyPenalty != nil {
		body.set("frequency_penalty", *p.FrequencyPenalty)
	}
	if p.PresencePenalty != nil {
		body.set("presence_penalty", *p.PresencePenalty)
	}
	if p.Stream != nil {
		body.set("stream", *p.Stream)
	}
	if p.Stop != nil {
		body.set("stop", p.Stop)
	}

	return body.bytes()
}

// ImageParams are the parameters of an image generation request.
type ImageParams struct {
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	Seed           *int   `json:"seed,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
}

// DefaultImageParams returns the image generation defaults applied under
// any caller overrides.
func DefaultImageParams() ImageParams {
	return ImageParams{
		N:              1,
		Size:           "1024x1024",
		Quality:        "standard",
		Style:          "vivid",
		ResponseFormat: "b64_json",
	}
}

// ApplyOverrides merges caller-supplied parameters over the defaults
// with the same coercion rules as chat parameters.
func (p *ImageParams) ApplyOverrides(overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case "prompt":
			if s, ok := coerceString(value); ok {
				p.Prompt = s
			}
		case "n":
			if n, ok := coerceInt(value); ok {
				p.N = n
			}
		case "size":
			if s, ok := coerceString(value); ok {
				p.Size = s
			}
		case "quality":
			if s, ok := coerceString(value); ok {
				p.Quality = s
			}
		case "style":
			if s, ok := coerceString(value); ok {
				p.Style = s
			}
		case "response_format":
			if s, ok := coerceString(value); ok {
				p.ResponseFormat = s
			}
		case "seed":
			if n, ok := coerceInt(value); ok {
				p.Seed = &n
			}
		case "aspect_ratio":
			if s, ok := coerceString(value); ok {
				p.AspectRatio = s
			}
		}
	}
}

// EnsureSeed draws a seed from [SeedMin, SeedMax] when none was supplied.
// The seed is stable for the rest of the request.
func (p *ImageParams) EnsureSeed() {
	if p.Seed == nil {
		n := SeedMin + rand.IntN(SeedMax-SeedMin+1)
		p.Seed = &n
	}
}

// Validate checks the image parameters against the rules of the given
// provider family. It performs no network I/O.
func (p ImageParams) Validate(family ProviderFamily) error {
	if p.Prompt == "" {
		return core.NewError(core.ErrValidation, "prompt is required for image generation")
	}
	if len(p.Prompt) > maxPromptLength {
		return core.Errorf(core.ErrValidation, "prompt is too long (max %d characters)", maxPromptLength)
	}
	if p.Seed != nil && (*p.Seed < SeedMin || *p.Seed > SeedMax) {
		return core.Errorf(core.ErrValidation, "seed must be an integer between %d and %d", SeedMin, SeedMax)
	}

	if family == AggregatorChatModality {
		if p.AspectRatio != "" && !contains(allowedAspectRatios, p.AspectRatio) {
			return core.Errorf(core.ErrValidation, "invalid aspect ratio %q, allowed: %s",
				p.AspectRatio, strings.Join(allowedAspectRatios, ", "))
		}
		return nil
	}

	if p.Size != "" && !sizePattern.MatchString(p.Size) {
		return core.Errorf(core.ErrValidation, "invalid image size %q, expected format NNNxNNN (e.g. 1024x1024)", p.Size)
	}
	if p.N < 1 || p.N > 10 {
		return core.NewError(core.ErrValidation, "number of images must be between 1 and 10")
	}
	if p.ResponseFormat != "" && !contains(allowedResponseFormats, p.ResponseFormat) {
		return core.Errorf(core.ErrValidation, "invalid response format %q", p.ResponseFormat)
	}
	return nil
}

// BuildImageRequest assembles the image generation payload and the
// endpoint path it must be posted to. The aggregator family receives a
// single-turn chat request with an image modality marker; everything
// else gets the standard images payload with the seed emitted both
// top-level and nested, since upstream APIs vary in where they read it.
func BuildImageRequest(modelName string, p ImageParams, family ProviderFamily) (string, []byte, error) {
	if err := p.Validate(family); err != nil {
		return "", nil, err
	}
	p.EnsureSeed()

	body := newJSONBody()
	body.set("model", modelName)

	if family == AggregatorChatModality {
		rawMessages, err := sonic.Marshal([]core.Message{{Role: core.RoleUser, Content: p.Prompt}})
		if err != nil {
			return "", nil, err
		}
		body.setRaw("messages", rawMessages)
		body.set("modalities", []string{"image"})
		body.set("seed", *p.Seed)
		if p.ResponseFormat != "" {
			body.set("response_format", p.ResponseFormat)
		}
		if p.AspectRatio != "" {
			body.set("image_config.aspect_ratio", p.AspectRatio)
		}
		payload, err := body.bytes()
		return family.ImageEndpoint(), payload, err
	}

	body.set("prompt", p.Prompt)
	body.set("n", p.N)
	body.set("size", p.Size)
	body.set("response_format", p.ResponseFormat)
	if p.Quality != "" {
		body.set("quality", p.Quality)
	}
	if p.Style != "" {
		body.set("style", p.Style)
	}
	body.set("seed", *p.Seed)
	body.set("extra_body.seed", *p.Seed)

	payload, err := body.bytes()
	return family.ImageEndpoint(), payload, err
}

// jsonBody accumulates sjson writes, keeping the first error.
type jsonBody struct {
	b   []byte
	err error
}

func newJSONBody() *jsonBody {
	return &jsonBody{b: []byte(`{}`)}
}

func (j *jsonBody) set(path string, value interface{}) {
	if j.err != nil {
		return
	}
	j.b, j.err = sjson.SetBytes(j.b, path, value)
}

func (j *jsonBody) setRaw(path string, raw []byte) {
	if j.err != nil {
		return
	}
	j.b, j.err = sjson.SetRawBytes(j.b, path, raw)
}

func (j *jsonBody) bytes() ([]byte, error) {
	return j.b, j.err
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func coerceInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

func coerceFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func coerceBool(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b, true
		}
	case float64:
		return x != 0, true
	case int:
		return x != 0, true
	}
	return false, false
}

func coerceString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	}
	return "", false
}

func coerceStringSlice(v interface{}) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case string:
		return []string{x}, true
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := coerceString(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
