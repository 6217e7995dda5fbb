// Package http exposes relay threads over a JSON API with a server-sent
// event stream of engine events per thread.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/internal/presentation/graph"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ingest"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes bounds request bodies; submitted documents can be large.
const MaxBodyBytes = 8 << 20

// Relay is the part of the facade the server needs.
type Relay interface {
	NewThread(ctx context.Context) (string, error)
	SubmitTurn(ctx context.Context, threadID, message string) (relay.Answer, error)
	GetState(ctx context.Context, threadID string) (*domain.ConversationState, error)
	Discard(ctx context.Context, threadID string) error
	ListThreads(ctx context.Context) ([]string, error)
	Ingest(ctx context.Context, source, content string, format ingest.Format) (ingest.Report, error)
	Inspect() *domain.Graph
}

// Subscriber streams the events of one thread.
type Subscriber interface {
	Subscribe(ctx context.Context, threadID string) (<-chan *message.Message, error)
}

// TurnRequest is the body of POST /threads/{id}/turns.
type TurnRequest struct {
	Message string `json:"message"`
}

// DocumentRequest is the body of POST /documents.
type DocumentRequest struct {
	Source  string        `json:"source"`
	Content string        `json:"content"`
	Format  ingest.Format `json:"format"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server holds the handlers.
type Server struct {
	relay    Relay
	events   Subscriber
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithEvents enables GET /threads/{id}/events.
func WithEvents(sub Subscriber) Option {
	return func(s *Server) {
		s.events = sub
	}
}

// WithMetrics enables GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for r.
func NewHandler(r Relay, opts ...Option) http.Handler {
	s := &Server{relay: r, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(enableCORS)

	router.Get("/", s.GetInfo)
	router.Get("/health", s.GetHealth)
	router.Get("/graph", s.GetGraph)
	router.Post("/documents", s.PostDocument)
	router.Route("/threads", func(tr chi.Router) {
		tr.Get("/", s.ListThreads)
		tr.Get("/new", s.NewThread)
		tr.Get("/{id}", s.GetThread)
		tr.Delete("/{id}", s.DeleteThread)
		tr.Post("/{id}/turns", s.PostTurn)
		if s.events != nil {
			tr.Get("/{id}/events", s.SubscribeEvents)
		}
	})
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetInfo handles GET /.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "relay-http",
		"version": relay.Version,
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetGraph handles GET /graph. It returns a Mermaid flowchart.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(s.relay.Inspect(), nil))
}

// NewThread handles GET /threads/new.
func (s *Server) NewThread(w http.ResponseWriter, r *http.Request) {
	id, err := s.relay.NewThread(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"thread_id": id})
}

// ListThreads handles GET /threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	ids, err := s.relay.ListThreads(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"threads": ids})
}

// GetThread handles GET /threads/{id}.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	state, err := s.relay.GetState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// DeleteThread handles DELETE /threads/{id}.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.relay.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostTurn handles POST /threads/{id}/turns.
func (s *Server) PostTurn(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		s.writeBadRequest(w, "message is required")
		return
	}

	answer, err := s.relay.SubmitTurn(r.Context(), chi.URLParam(r, "id"), body.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

// PostDocument handles POST /documents.
func (s *Server) PostDocument(w http.ResponseWriter, r *http.Request) {
	var body DocumentRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Source == "" || strings.TrimSpace(body.Content) == "" {
		s.writeBadRequest(w, "source and content are required")
		return
	}
	switch body.Format {
	case "":
		body.Format = ingest.FormatMarkdown
	case ingest.FormatText, ingest.FormatMarkdown, ingest.FormatHTML:
	default:
		s.writeBadRequest(w, fmt.Sprintf("unsupported format %q", body.Format))
		return
	}

	report, err := s.relay.Ingest(r.Context(), body.Source, body.Content, body.Format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, report)
}

// SubscribeEvents handles GET /threads/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	threadID := chi.URLParam(r, "id")
	messages, err := s.events.Subscribe(r.Context(), threadID)
	if err != nil {
		s.writeError(w, errors.Wrap(err, "failed to subscribe"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE client subscribed", "thread_id", threadID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "thread_id", threadID)
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Metadata.Get(observability.MetaEventType), msg.Payload)
			flusher.Flush()
			msg.Ack()
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		s.writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}

// writeError maps the error taxonomy to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrThreadBusy):
		status, code = http.StatusConflict, "thread_busy"
	case domain.IsValidation(err):
		code = "validation_error"
	case domain.IsConfiguration(err):
		code = "configuration_error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
