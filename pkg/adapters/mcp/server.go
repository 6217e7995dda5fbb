// Package mcp exposes relay threads as Model Context Protocol tools, so that
// other agents can hold conversations through it.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/internal/presentation/graph"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
)

// GraphURI is the resource holding the Mermaid diagram of the graph.
const GraphURI = "relay://graph"

// Relay is the part of the facade the server needs.
type Relay interface {
	NewThread(ctx context.Context) (string, error)
	SubmitTurn(ctx context.Context, threadID, message string) (relay.Answer, error)
	GetState(ctx context.Context, threadID string) (*domain.ConversationState, error)
	ListThreads(ctx context.Context) ([]string, error)
	Inspect() *domain.Graph
}

// ThreadResponse carries a thread id.
type ThreadResponse struct {
	ThreadID string `json:"thread_id" jsonschema_description:"Opaque id of the conversation thread"`
}

// ThreadList carries the stored thread ids.
type ThreadList struct {
	Threads []string `json:"threads" jsonschema_description:"Thread ids in lexical order"`
}

// Server wraps a Relay and exposes it as an MCP Server.
type Server struct {
	relay     Relay
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to stdout when serving stdio.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(r Relay, opts ...Option) *Server {
	s := &Server{
		relay:     r,
		mcpServer: server.NewMCPServer("relay-mcp", relay.Version),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "could not stop server gracefully")
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("submit_turn",
		mcp.WithDescription("Send a message to a conversation thread and get the synthesized answer. "+
			"Omit thread_id to start a new thread. Prefix a document with 'SUMMARIZE DOCUMENT:' to summarize it."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message")),
		mcp.WithString("thread_id", mcp.Description("Thread to continue (optional)")),
		mcp.WithOutputSchema[relay.Answer](),
	), mcp.NewStructuredToolHandler(s.handleSubmitTurn))

	s.mcpServer.AddTool(mcp.NewTool("new_thread",
		mcp.WithDescription("Create an empty conversation thread."),
		mcp.WithOutputSchema[ThreadResponse](),
	), mcp.NewStructuredToolHandler(s.handleNewThread))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the persisted state of a thread: history, route, retrieved documents and summaries."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread id")),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("list_threads",
		mcp.WithDescription("List the ids of stored threads."),
		mcp.WithOutputSchema[ThreadList](),
	), mcp.NewStructuredToolHandler(s.handleListThreads))
}

func (s *Server) handleSubmitTurn(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (relay.Answer, error) {
	message, _ := args["message"].(string)
	threadID, _ := args["thread_id"].(string)

	if threadID == "" {
		id, err := s.relay.NewThread(ctx)
		if err != nil {
			return relay.Answer{}, errors.Wrap(err, "failed to create thread")
		}
		threadID = id
	}

	answer, err := s.relay.SubmitTurn(ctx, threadID, message)
	if err != nil {
		s.logger.Warn("MCP submit_turn failed", "thread_id", threadID, "err", err)
		return relay.Answer{}, errors.Wrap(err, "turn failed")
	}
	return answer, nil
}

func (s *Server) handleNewThread(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ThreadResponse, error) {
	id, err := s.relay.NewThread(ctx)
	if err != nil {
		return ThreadResponse{}, errors.Wrap(err, "failed to create thread")
	}
	return ThreadResponse{ThreadID: id}, nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (*domain.ConversationState, error) {
	threadID, _ := args["thread_id"].(string)
	state, err := s.relay.GetState(ctx, threadID)
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		return nil, errors.Errorf("thread %s not found", threadID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load thread")
	}
	return state, nil
}

func (s *Server) handleListThreads(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ThreadList, error) {
	ids, err := s.relay.ListThreads(ctx)
	if err != nil {
		return ThreadList{}, errors.Wrap(err, "failed to list threads")
	}
	if ids == nil {
		ids = []string{}
	}
	return ThreadList{Threads: ids}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Orchestration Graph",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "text/plain",
				Text:     graph.GenerateMermaid(s.relay.Inspect(), nil),
			},
		}, nil
	})
}
