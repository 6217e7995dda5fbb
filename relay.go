package relay

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/internal/runtime"
	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/agents"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ingest"
	"github.com/aretw0/relay/pkg/knowledge"
	memagent "github.com/aretw0/relay/pkg/memory"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/router"
	"github.com/aretw0/relay/pkg/session"
	"github.com/aretw0/relay/pkg/summarizer"
	"github.com/aretw0/relay/pkg/synthesizer"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Answer is the outcome of a turn.
type Answer struct {
	ThreadID string            `json:"thread_id"`
	Text     string            `json:"text"`
	Degraded bool              `json:"degraded"`
	Route    domain.Route      `json:"route"`
	Sources  []domain.Document `json:"sources,omitempty"`
}

// Relay is the high-level entry point: it owns the orchestration graph, the
// engine running it and the sessions holding conversation state.
type Relay struct {
	engine   *runtime.Engine
	sessions *session.Manager
	index    ports.DocumentIndex
	ingester *ingest.Ingester
	settings Settings
	logger   *slog.Logger
}

type config struct {
	completer ports.Completer
	index     ports.DocumentIndex
	search    ports.WebSearcher
	store     ports.CheckpointStore
	locker    ports.DistributedLocker
	hooks     domain.LifecycleHooks
	counter   summarizer.Counter
	settings  Settings
	logger    *slog.Logger
}

// Option configures a Relay.
type Option func(*config)

// WithCompleter sets the language model used by every agent. Required.
func WithCompleter(c ports.Completer) Option {
	return func(cfg *config) {
		cfg.completer = c
	}
}

// WithIndex sets the internal document index (default: in-memory, lexical).
func WithIndex(index ports.DocumentIndex) Option {
	return func(cfg *config) {
		cfg.index = index
	}
}

// WithWebSearch enables the external search fallback of the knowledge path.
func WithWebSearch(s ports.WebSearcher) Option {
	return func(cfg *config) {
		cfg.search = s
	}
}

// WithStore sets where conversation checkpoints live (default: in-memory).
func WithStore(store ports.CheckpointStore) Option {
	return func(cfg *config) {
		cfg.store = store
	}
}

// WithLocker serializes turns across processes sharing the store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(cfg *config) {
		cfg.locker = locker
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(cfg *config) {
		cfg.hooks = hooks
	}
}

// WithTokenCounter replaces the cl100k counter used to size chunks.
func WithTokenCounter(c summarizer.Counter) Option {
	return func(cfg *config) {
		cfg.counter = c
	}
}

// WithSettings overrides DefaultSettings.
func WithSettings(s Settings) Option {
	return func(cfg *config) {
		cfg.settings = s
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// New builds the agents, validates the graph and prepares the engine.
func New(opts ...Option) (*Relay, error) {
	cfg := &config{
		settings: DefaultSettings(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.completer == nil {
		return nil, &domain.ConfigurationError{Reason: "a completer is required"}
	}
	if cfg.index == nil {
		cfg.index = memory.NewIndex()
	}
	if cfg.store == nil {
		cfg.store = memory.NewStore()
	}
	s := cfg.settings

	completer := ports.WithCompleterTimeout(cfg.completer, s.CallTimeout)
	index := ports.WithIndexTimeout(cfg.index, s.CallTimeout)

	retrieverOpts := []knowledge.Option{
		knowledge.WithTopK(s.TopK),
		knowledge.WithMinRelevant(s.MinRelevant),
		knowledge.WithGrader(knowledge.ScoreGrader{MinScore: s.MinScore, ExternalMinScore: s.ExternalMinScore}),
		knowledge.WithLogger(cfg.logger),
	}
	if s.LLMGrading {
		retrieverOpts = append(retrieverOpts, knowledge.WithGrader(knowledge.NewLLMGrader(completer)))
	}
	if s.RefineQuery {
		retrieverOpts = append(retrieverOpts, knowledge.WithQueryRefinement(completer))
	}
	if cfg.search != nil {
		retrieverOpts = append(retrieverOpts, knowledge.WithWebSearch(ports.WithSearchTimeout(cfg.search, s.CallTimeout)))
	}

	sizer := summarizer.NewSizer()
	if cfg.counter != nil {
		sizer.Count = cfg.counter
	}
	if s.TargetChunks > 0 {
		sizer.TargetChunks = s.TargetChunks
	}

	var routerOpts []router.Option
	if s.TieBreak != domain.RouteNone {
		routerOpts = append(routerOpts, router.WithTieBreak(s.TieBreak))
	}

	graph, err := agents.NewGraph(agents.Agents{
		Router:    router.New(routerOpts...),
		Retriever: knowledge.New(index, retrieverOpts...),
		Summarizer: summarizer.New(completer,
			summarizer.WithSizer(sizer),
			summarizer.WithFanIn(s.FanIn),
			summarizer.WithLogger(cfg.logger),
		),
		Synthesizer: synthesizer.New(completer, synthesizer.WithLogger(cfg.logger)),
		Compactor: memagent.New(completer,
			memagent.WithThreshold(s.CompactThreshold),
			memagent.WithKeepRecent(s.KeepRecent),
			memagent.WithLogger(cfg.logger),
		),
		Concurrency: s.Concurrency,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build orchestration graph")
	}

	engineOpts := []runtime.Option{
		runtime.WithStore(cfg.store),
		runtime.WithRetryPolicy(s.Retry),
		runtime.WithTurnTimeout(s.TurnTimeout),
		runtime.WithFallbackAnswer(synthesizer.Fallback),
		runtime.WithLifecycleHooks(cfg.hooks),
		runtime.WithLogger(cfg.logger),
	}
	if s.MaxSteps > 0 {
		engineOpts = append(engineOpts, runtime.WithMaxSteps(s.MaxSteps))
	}
	engine, err := runtime.NewEngine(graph, engineOpts...)
	if err != nil {
		return nil, err
	}

	sessionOpts := []session.Option{session.WithLogger(cfg.logger)}
	if cfg.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(cfg.locker))
	}

	var ingestOpts []ingest.Option
	ingestOpts = append(ingestOpts, ingest.WithLogger(cfg.logger))
	if cfg.counter != nil {
		ingestOpts = append(ingestOpts, ingest.WithCounter(cfg.counter))
	}

	return &Relay{
		engine:   engine,
		sessions: session.NewManager(cfg.store, sessionOpts...),
		index:    cfg.index,
		ingester: ingest.New(cfg.index, ingestOpts...),
		settings: s,
		logger:   cfg.logger,
	}, nil
}

// NewThread reserves a new thread and returns its id.
func (r *Relay) NewThread(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := r.sessions.Start(ctx, id); err != nil {
		return "", err
	}
	r.logger.Debug("thread created", "thread_id", id)
	return id, nil
}

// SubmitTurn runs one turn of the thread, creating the thread on first use.
// Turns of one thread run one at a time; the checkpoint is written before
// SubmitTurn returns. Collaborator failures degrade the answer instead of
// failing the call; only invalid input and graph defects return an error.
func (r *Relay) SubmitTurn(ctx context.Context, threadID, message string) (Answer, error) {
	if strings.TrimSpace(threadID) == "" {
		return Answer{}, &domain.ValidationError{Reason: "thread id is required"}
	}
	if strings.TrimSpace(message) == "" {
		return Answer{}, &domain.ValidationError{Reason: "message is empty"}
	}

	var answer Answer
	err := r.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		state, err := r.sessions.LoadOrCreate(ctx, threadID)
		if err != nil {
			return err
		}
		state.BeginTurn(domain.NewMessage(domain.RoleUser, message))

		state, text, err := r.engine.Run(ctx, state, "")
		if err != nil {
			return err
		}
		answer = Answer{
			ThreadID: threadID,
			Text:     text,
			Degraded: state.Degraded,
			Route:    state.Route,
			Sources:  state.RetrievedDocuments,
		}
		return nil
	})
	if err != nil {
		return Answer{}, err
	}
	return answer, nil
}

// GetState returns the last checkpoint of the thread.
func (r *Relay) GetState(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	return r.sessions.Load(ctx, threadID)
}

// Discard deletes the thread.
func (r *Relay) Discard(ctx context.Context, threadID string) error {
	return r.sessions.Delete(ctx, threadID)
}

// ListThreads returns the ids of every stored thread.
func (r *Relay) ListThreads(ctx context.Context) ([]string, error) {
	return r.sessions.List(ctx)
}

// Ingest indexes a document for the knowledge path.
func (r *Relay) Ingest(ctx context.Context, source, content string, format ingest.Format) (ingest.Report, error) {
	return r.ingester.Text(ctx, source, content, format)
}

// IngestPath indexes a file or every supported file in a directory.
func (r *Relay) IngestPath(ctx context.Context, path string) (ingest.Report, error) {
	return r.ingester.Path(ctx, path)
}

// Inspect returns the orchestration graph for visualization.
func (r *Relay) Inspect() *domain.Graph {
	return r.engine.Graph()
}

// Settings returns the effective settings.
func (r *Relay) Settings() Settings {
	return r.settings
}
