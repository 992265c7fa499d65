package server

import (
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"aibridge/internal/core"
	"aibridge/internal/core/providers"
	"aibridge/internal/pkg/logger"
)

// HTTPServer exposes the generation client over HTTP.
type HTTPServer struct {
	*Server
	client *providers.Client
}

// NewHTTPServer creates an HTTP server around a generation client.
func NewHTTPServer(addr string, client *providers.Client, log *logger.Logger) *HTTPServer {
	return &HTTPServer{
		Server: New(addr, log),
		client: client,
	}
}

// Handler returns the route table. Split out so tests can mount it on
// an httptest server.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/v1/generate/text", func(w http.ResponseWriter, r *http.Request) {
		s.handleGenerate(w, r, core.ModeText)
	})

	mux.HandleFunc("/v1/generate/image", func(w http.ResponseWriter, r *http.Request) {
		s.handleGenerate(w, r, core.ModeImage)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"aibridge is running"}`))
	})

	return mux
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	return s.serve(s.Handler())
}

// handleGenerate decodes one generation request, runs it through the
// client, and writes either the normalized result or a classified error
// envelope.
func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request, mode string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	var req core.GenerationRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.Errorf(core.ErrValidation, "invalid JSON: %v", err))
		return
	}
	req.Mode = mode

	result, err := s.client.Generate(r.Context(), &req)
	if err != nil {
		s.log.Warn("generation failed",
			zap.String("mode", mode),
			zap.String("kind", string(core.KindOf(err))),
			zap.Error(err),
		)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	sonic.ConfigDefault.NewEncoder(w).Encode(result)
}

// writeError maps the error kind to an HTTP status and writes the
// single-message envelope.
func writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case core.ErrValidation, core.ErrConfiguration:
		status = http.StatusBadRequest
	case core.ErrTransport, core.ErrUpstreamMisconfiguration, core.ErrProvider:
		status = http.StatusBadGateway
	}

	w.WriteHeader(status)
	sonic.ConfigDefault.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
