package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"aibridge/internal/core"
	"aibridge/internal/core/engine"
)

// fakeDownloader serves canned image bytes per URL. Downloads run
// concurrently, so the call counter is atomic.
type fakeDownloader struct {
	images map[string]fakeImage
	calls  atomic.Int32
}

type fakeImage struct {
	data        []byte
	contentType string
}

func (d *fakeDownloader) Download(_ context.Context, url string) ([]byte, string, error) {
	d.calls.Add(1)
	img, ok := d.images[url]
	if !ok {
		return nil, "", fmt.Errorf("failed to download image, HTTP status 404")
	}
	return img.data, img.contentType, nil
}

func okResponse(body string) *RawResponse {
	return &RawResponse{StatusCode: 200, Body: []byte(body), URL: "https://api.example.com/v1/x"}
}

func TestTextExtraction(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	text, err := n.Text(okResponse(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want trimmed %q", text, "hello")
	}

	text, err = n.Text(okResponse(`{"message":{"content":"fallback shape"}}`))
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "fallback shape" {
		t.Errorf("text = %q", text)
	}

	_, err = n.Text(okResponse(`{"choices":[]}`))
	if !core.IsKind(err, core.ErrUnknownResponseFormat) {
		t.Errorf("unrecognized shape: got %v, want unknown response format", err)
	}
}

func TestTriageHTMLBody(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)
	resp := &RawResponse{
		StatusCode: 200,
		Body:       []byte("<!DOCTYPE html><html><head><title>Login Required</title></head></html>"),
		URL:        "https://wrong.example.com/v1/chat/completions",
	}

	// HTML is a misconfiguration signal, never an invalid-format error.
	_, err := n.Text(resp)
	if !core.IsKind(err, core.ErrUpstreamMisconfiguration) {
		t.Fatalf("HTML body: got %v, want upstream misconfiguration", err)
	}
	if !strings.Contains(err.Error(), "Login Required") {
		t.Errorf("error %q should carry the page title", err)
	}
	if !strings.Contains(err.Error(), "wrong.example.com") {
		t.Errorf("error %q should carry the request URL", err)
	}
}

func TestTriageNonJSONBody(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	_, err := n.Text(okResponse("Service temporarily unavailable"))
	if !core.IsKind(err, core.ErrProvider) {
		t.Fatalf("short plain text: got %v, want provider error", err)
	}
	if !strings.Contains(err.Error(), "Service temporarily unavailable") {
		t.Errorf("error %q should carry the body text", err)
	}

	_, err = n.Text(okResponse(strings.Repeat("x", 2000)))
	if !core.IsKind(err, core.ErrInvalidResponseFormat) {
		t.Errorf("long garbage: got %v, want invalid response format", err)
	}
}

func TestTriageErrorPayloads(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	_, err := n.Text(&RawResponse{
		StatusCode: 401,
		Body:       []byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`),
	})
	if !core.IsKind(err, core.ErrProvider) {
		t.Fatalf("401: got %v, want provider error", err)
	}
	if !strings.Contains(err.Error(), "bad key (Code: invalid_api_key)") {
		t.Errorf("error = %q", err)
	}

	// An error field on a 200 still fails.
	_, err = n.Text(okResponse(`{"error":{"message":"overloaded"}}`))
	if !core.IsKind(err, core.ErrProvider) {
		t.Errorf("error field on 200: got %v, want provider error", err)
	}
}

func TestCheckPassesWellFormedBody(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)
	if err := n.Check(okResponse(`{"choices":[{"message":{"content":"hi"}}]}`)); err != nil {
		t.Errorf("Check: %v", err)
	}
	if err := n.Check(okResponse("<html><title>Cloudflare</title></html>")); !core.IsKind(err, core.ErrUpstreamMisconfiguration) {
		t.Errorf("Check on HTML: got %v", err)
	}
}

func TestStandardImagesB64(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	images, err := n.Images(context.Background(), okResponse(`{"data":[{"b64_json":"QQ=="}]}`), engine.StandardCompatible)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("len(images) = %d, want 1", len(images))
	}
	if images[0] != "data:image/jpeg;base64,QQ==" {
		t.Errorf("images[0] = %q", images[0])
	}
}

func TestStandardImagesURLOrder(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	dl := &fakeDownloader{images: map[string]fakeImage{
		"https://cdn.example.com/a.png": {data: png, contentType: "image/png"},
		"https://cdn.example.com/b.png": {data: png, contentType: ""},
	}}
	n := NewNormalizer(dl, nil)

	body := `{"data":[
		{"url":"https://cdn.example.com/a.png"},
		{"b64_json":"QQ=="},
		{"url":"https://cdn.example.com/b.png"}
	]}`
	images, err := n.Images(context.Background(), okResponse(body), engine.StandardCompatible)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("len(images) = %d, want 3", len(images))
	}

	encoded := base64.StdEncoding.EncodeToString(png)
	if images[0] != "data:image/png;base64,"+encoded {
		t.Errorf("images[0] = %q, header content type must win", truncateForLog(images[0]))
	}
	if images[1] != "data:image/jpeg;base64,QQ==" {
		t.Errorf("images[1] = %q, b64 entries keep their position", truncateForLog(images[1]))
	}
	// No header: the PNG signature is sniffed.
	if images[2] != "data:image/png;base64,"+encoded {
		t.Errorf("images[2] = %q, want sniffed image/png", truncateForLog(images[2]))
	}
	if got := dl.calls.Load(); got != 2 {
		t.Errorf("downloads = %d, want 2", got)
	}
}

func TestAggregatorImagesTypedArray(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	body := `{"choices":[{"message":{"images":[
		{"type":"image_url","image_url":{"url":"data:image/png;base64,QUJD"}},
		{"type":"text","text":"caption"}
	]}}]}`
	images, err := n.Images(context.Background(), okResponse(body), engine.AggregatorChatModality)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 1 || images[0] != "data:image/png;base64,QUJD" {
		t.Errorf("images = %v", images)
	}
}

func TestAggregatorImagesContentParts(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	body := `{"choices":[{"message":{"content":[
		{"type":"image_url","image_url":{"url":"data:image/webp;base64,QUJD"}}
	]}}]}`
	images, err := n.Images(context.Background(), okResponse(body), engine.AggregatorChatModality)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 1 || images[0] != "data:image/webp;base64,QUJD" {
		t.Errorf("images = %v", images)
	}
}

func TestAggregatorImagesStringContentScan(t *testing.T) {
	jpeg := append([]byte("\xff\xd8\xff\xe0"), make([]byte, 16)...)
	dl := &fakeDownloader{images: map[string]fakeImage{
		"https://cdn.example.com/out.jpg": {data: jpeg, contentType: "image/jpeg"},
	}}
	n := NewNormalizer(dl, nil)

	body := `{"choices":[{"message":{"content":"Here is your image: https://cdn.example.com/out.jpg enjoy"}}]}`
	images, err := n.Images(context.Background(), okResponse(body), engine.AggregatorChatModality)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	if len(images) != 1 || images[0] != want {
		t.Errorf("images = %v", images)
	}

	body = `{"choices":[{"message":{"content":"inline data:image/png;base64,QUJD here"}}]}`
	images, err = n.Images(context.Background(), okResponse(body), engine.AggregatorChatModality)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 1 || images[0] != "data:image/png;base64,QUJD" {
		t.Errorf("images = %v", images)
	}
}

func TestImagesNotFound(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	_, err := n.Images(context.Background(), okResponse(`{"choices":[{"message":{"content":"I cannot draw that."}}]}`), engine.AggregatorChatModality)
	if !core.IsKind(err, core.ErrImageNotFound) {
		t.Fatalf("got %v, want image-not-found", err)
	}
	// The diagnostic describes the shape, never the payload.
	if strings.Contains(err.Error(), "I cannot draw that") {
		t.Errorf("error %q must not leak response content", err)
	}
	if !strings.Contains(err.Error(), "has_choices") {
		t.Errorf("error %q should carry the shape summary", err)
	}
}

func TestImagesDownloadFailure(t *testing.T) {
	n := NewNormalizer(&fakeDownloader{}, nil)

	_, err := n.Images(context.Background(), okResponse(`{"data":[{"url":"https://cdn.example.com/missing.png"}]}`), engine.StandardCompatible)
	if !core.IsKind(err, core.ErrProvider) {
		t.Errorf("failed download: got %v, want provider error", err)
	}
}

func TestDetectImageType(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)

	if got := detectImageType("image/png; charset=binary", nil); got != "image/png" {
		t.Errorf("header with params: %q", got)
	}
	if got := detectImageType("text/html", png); got != "image/png" {
		t.Errorf("sniffed: %q", got)
	}
	if got := detectImageType("", []byte("not an image")); got != "image/jpeg" {
		t.Errorf("fallback: %q", got)
	}
}

func truncateForLog(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
