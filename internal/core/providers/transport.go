// Package providers talks to OpenAI-compatible upstream APIs: it sends
// the built payloads, normalizes the heterogeneous response shapes into
// plain results, and classifies upstream failures.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"aibridge/internal/core"
	"aibridge/internal/pkg/logger"
)

// generationTimeout bounds the single outbound generation call. The call
// is abandoned afterwards and reported as a transport failure.
const generationTimeout = 120 * time.Second

// downloadTimeout bounds each nested image download.
const downloadTimeout = 30 * time.Second

// RawResponse is an upstream reply before normalization.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the request URL, kept for diagnostics.
	URL string
}

// Transport performs single outbound POSTs to upstream providers. It
// never retries; a failed call surfaces immediately.
type Transport struct {
	client  *http.Client
	referer string
	title   string
	log     *logger.Logger
}

// NewTransport creates a Transport. referer and title identify the
// calling site to providers that require the passthrough headers.
func NewTransport(referer, title string, log *logger.Logger) *Transport {
	return &Transport{
		client:  &http.Client{Timeout: generationTimeout},
		referer: referer,
		title:   title,
		log:     log,
	}
}

// Post sends one JSON payload to {baseURL}/{endpoint} with bearer
// authorization. Network failures (DNS, connect, timeout) come back as
// a transport error; any HTTP response, 2xx or not, is returned raw for
// the normalizer to triage.
func (t *Transport) Post(ctx context.Context, baseURL, apiKey, endpoint string, payload []byte) (*RawResponse, error) {
	url := joinURL(baseURL, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, core.Errorf(core.ErrTransport, "invalid request URL %s", url).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}

	if t.log != nil {
		t.log.Debug("upstream request",
			zap.String("url", url),
			zap.String("api_key", RedactKey(apiKey)),
			zap.Int("payload_bytes", len(payload)),
		)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, core.Errorf(core.ErrTransport, "API request error: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Errorf(core.ErrTransport, "failed to read API response: %v", err).WithCause(err)
	}

	if t.log != nil {
		t.log.Debug("upstream response",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Int("body_bytes", len(body)),
		)
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        url,
	}, nil
}

// Download fetches image bytes from a remote URL. It returns the body
// and the Content-Type response header.
func (t *Transport) Download(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image URL %s: %w", url, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image, HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("empty image data from %s", url)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// RedactKey truncates an API key for diagnostic output. Nothing beyond
// the first 10 characters ever reaches a log line.
func RedactKey(key string) string {
	if len(key) <= 10 {
		return key
	}
	return key[:10] + "..."
}

func joinURL(baseURL, endpoint string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
