package engine

import "strings"

// ProviderFamily selects the endpoint and payload shape used for image
// generation against a given base URL.
type ProviderFamily string

const (
	// StandardCompatible is any OpenAI-compatible API with a dedicated
	// images endpoint.
	StandardCompatible ProviderFamily = "standard"
	// AggregatorChatModality is an aggregator that serves image-capable
	// models through its chat-completions endpoint.
	AggregatorChatModality ProviderFamily = "aggregator"
)

// Endpoint paths relative to a model's base URL.
const (
	EndpointChatCompletions  = "chat/completions"
	EndpointImageGenerations = "images/generations"
)

// aggregatorMarker identifies the chat-modality aggregator by its domain.
const aggregatorMarker = "openrouter.ai"

// Detect classifies a base URL into a provider family. Unknown or
// malformed URLs default to StandardCompatible; detection never fails.
func Detect(baseURL string) ProviderFamily {
	if strings.Contains(baseURL, aggregatorMarker) {
		return AggregatorChatModality
	}
	return StandardCompatible
}

// ImageEndpoint returns the endpoint path used for image generation
// requests against this provider family.
func (f ProviderFamily) ImageEndpoint() string {
	if f == AggregatorChatModality {
		return EndpointChatCompletions
	}
	return EndpointImageGenerations
}
