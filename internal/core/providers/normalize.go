package providers

import (
	"context"
	"encoding/base64"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"aibridge/internal/core"
	"aibridge/internal/core/engine"
	"aibridge/internal/pkg/logger"
)

// plainTextErrorLimit is the body size under which a non-JSON reply is
// treated as a plain-text upstream error message.
const plainTextErrorLimit = 1000

// fallbackImageType is assumed when neither the response header nor the
// file signature identifies the image content type.
const fallbackImageType = "image/jpeg"

var (
	imageURLPattern  = regexp.MustCompile(`(?i)https?://[^\s"]+\.(?:jpg|jpeg|png|gif|webp)[^\s"]*`)
	dataURIPattern   = regexp.MustCompile(`(?i)data:image/[^;]+;base64,[^\s"]+`)
	htmlTitlePattern = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
)

// Downloader fetches remote image bytes. Satisfied by *Transport.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Normalizer extracts generated text or images from the known upstream
// response shapes, trying each shape in priority order.
type Normalizer struct {
	dl  Downloader
	log *logger.Logger
}

// NewNormalizer creates a Normalizer using dl for URL-to-data-URI
// conversion of remote image results.
func NewNormalizer(dl Downloader, log *logger.Logger) *Normalizer {
	return &Normalizer{dl: dl, log: log}
}

// Text extracts the generated text from a chat-completions response.
func (n *Normalizer) Text(resp *RawResponse) (string, error) {
	root, err := n.triage(resp)
	if err != nil {
		return "", err
	}

	if content := root.Get("choices.0.message.content"); content.Exists() {
		return strings.TrimSpace(content.String()), nil
	}
	if content := root.Get("message.content"); content.Exists() {
		return strings.TrimSpace(content.String()), nil
	}
	return "", core.NewError(core.ErrUnknownResponseFormat, "unknown API response format")
}

// Images extracts generated images from an image response, each
// normalized to a data-URI string. The aggregator family is parsed from
// its chat-shaped reply; everything else from the standard data[] shape.
func (n *Normalizer) Images(ctx context.Context, resp *RawResponse, family engine.ProviderFamily) ([]string, error) {
	root, err := n.triage(resp)
	if err != nil {
		return nil, err
	}

	var images []string
	if family == engine.AggregatorChatModality {
		images, err = n.aggregatorImages(ctx, root)
	} else {
		images, err = n.standardImages(ctx, root)
	}
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		return images, nil
	}

	return nil, core.Errorf(core.ErrImageNotFound,
		"image not found in API response, response structure: %s", shapeSummary(root))
}

// Check runs response triage only: HTML bodies, non-JSON bodies, error
// payloads, and non-2xx statuses come back as classified errors, any
// well-formed success body passes. Used by connectivity probes.
func (n *Normalizer) Check(resp *RawResponse) error {
	_, err := n.triage(resp)
	return err
}

// triage turns a raw response into a parsed JSON root, or a classified
// error. HTML bodies, non-JSON bodies, error payloads, and non-2xx
// statuses never reach shape extraction.
func (n *Normalizer) triage(resp *RawResponse) (gjson.Result, error) {
	body := resp.Body
	trimmed := strings.TrimSpace(string(body))
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		title := ""
		if m := htmlTitlePattern.FindStringSubmatch(trimmed); len(m) > 1 {
			title = strings.TrimSpace(m[1])
		}
		return gjson.Result{}, core.Errorf(core.ErrUpstreamMisconfiguration,
			"server returned HTML instead of JSON, check the API URL and credentials (url: %s, status: %d, title: %s)",
			resp.URL, resp.StatusCode, title)
	}

	if !gjson.ValidBytes(body) {
		if len(trimmed) > 0 && len(trimmed) < plainTextErrorLimit {
			return gjson.Result{}, core.Errorf(core.ErrProvider,
				"API returned non-JSON response: %s", truncate(trimmed, 200))
		}
		return gjson.Result{}, core.NewError(core.ErrInvalidResponseFormat,
			"invalid JSON response from API, check the API endpoint")
	}

	root := gjson.ParseBytes(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, core.NewError(core.ErrProvider, ClassifyErrorBody(root, resp.StatusCode))
	}
	if root.Get("error").Exists() {
		return gjson.Result{}, core.NewError(core.ErrProvider, ClassifyErrorBody(root, resp.StatusCode))
	}
	return root, nil
}

// aggregatorImages handles the chat-shaped image reply. Shapes are tried
// in priority order, first success wins: a typed images[] array on the
// message, then content as an array of image_url parts, then a URL or
// data-URI embedded in a plain string content.
func (n *Normalizer) aggregatorImages(ctx context.Context, root gjson.Result) ([]string, error) {
	message := root.Get("choices.0.message")
	if !message.Exists() {
		return nil, nil
	}

	if images := message.Get("images"); images.IsArray() {
		urls := imagePartURLs(images)
		if len(urls) > 0 {
			return n.resolveAll(ctx, urls)
		}
	}

	content := message.Get("content")
	if content.IsArray() {
		urls := imagePartURLs(content)
		if len(urls) > 0 {
			return n.resolveAll(ctx, urls)
		}
	}

	if content.Type == gjson.String {
		text := content.String()
		if m := imageURLPattern.FindString(text); m != "" {
			uri, err := n.resolve(ctx, m)
			if err != nil {
				return nil, err
			}
			return []string{uri}, nil
		}
		if m := dataURIPattern.FindString(text); m != "" {
			return []string{m}, nil
		}
	}
	return nil, nil
}

// standardImages handles the images-generations reply: data[] entries
// carrying either a url or a b64_json blob.
func (n *Normalizer) standardImages(ctx context.Context, root gjson.Result) ([]string, error) {
	data := root.Get("data")
	if !data.IsArray() {
		return nil, nil
	}

	// Entries are resolved in place so url and b64_json results keep
	// their original order.
	var refs []string
	data.ForEach(func(_, entry gjson.Result) bool {
		if u := entry.Get("url"); u.Exists() {
			refs = append(refs, u.String())
		} else if b := entry.Get("b64_json"); b.Exists() {
			refs = append(refs, "data:"+fallbackImageType+";base64,"+b.String())
		}
		return true
	})
	return n.resolveAll(ctx, refs)
}

// imagePartURLs collects image_url entries from an array of typed
// content parts.
func imagePartURLs(parts gjson.Result) []string {
	var urls []string
	parts.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() != "image_url" {
			return true
		}
		if u := part.Get("image_url.url"); u.Exists() {
			urls = append(urls, u.String())
		}
		return true
	})
	return urls
}

// resolveAll converts each URL to a data-URI, preserving order. The
// downloads are independent reads, so they run concurrently; each writes
// only its own slot.
func (n *Normalizer) resolveAll(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	results := make([]string, len(urls))
	errs := make([]error, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i], errs[i] = n.resolve(ctx, u)
		}(i, u)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// resolve turns one image reference into a data-URI. Data URIs pass
// through unchanged; remote URLs are downloaded and re-encoded.
func (n *Normalizer) resolve(ctx context.Context, url string) (string, error) {
	if strings.HasPrefix(url, "data:") {
		return url, nil
	}

	data, contentType, err := n.dl.Download(ctx, url)
	if err != nil {
		return "", core.Errorf(core.ErrProvider, "failed to download image from URL: %v", err).WithCause(err)
	}

	imageType := detectImageType(contentType, data)
	if n.log != nil {
		n.log.Debug("image converted to data URI",
			zap.String("content_type", imageType),
			zap.Int("bytes", len(data)),
		)
	}
	return "data:" + imageType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// detectImageType picks the content type from the response header,
// falling back to file-signature detection, falling back to JPEG.
func detectImageType(headerType string, data []byte) string {
	if strings.HasPrefix(headerType, "image/") {
		if i := strings.IndexByte(headerType, ';'); i >= 0 {
			return strings.TrimSpace(headerType[:i])
		}
		return headerType
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return fallbackImageType
}

// shapeSummary builds a compact diagnostic of a response's structure:
// top-level keys and how deep the known nesting goes. Never the payload
// itself, which could leak provider-internal data into logs.
func shapeSummary(root gjson.Result) string {
	var keys []string
	root.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})

	summary := map[string]interface{}{
		"response_keys": keys,
		"has_choices":   root.Get("choices").Exists(),
		"choices_count": len(root.Get("choices").Array()),
		"has_message":   root.Get("choices.0.message").Exists(),
		"has_images":    root.Get("choices.0.message.images").Exists(),
		"has_data":      root.Get("data").Exists(),
	}
	out, err := sonic.MarshalString(summary)
	if err != nil {
		return "{}"
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
