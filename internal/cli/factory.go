package cli

import (
	"context"
	"encoding/base64"
	"log/slog"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/config"
	"github.com/aretw0/relay/pkg/adapters/anthropic"
	"github.com/aretw0/relay/pkg/adapters/file"
	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/adapters/openai"
	"github.com/aretw0/relay/pkg/adapters/redis"
	"github.com/aretw0/relay/pkg/adapters/tavily"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/persistence/middleware"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	go_openai "github.com/sashabaranov/go-openai"
)

// App bundles a configured Relay with the infrastructure the commands expose.
type App struct {
	Relay    *relay.Relay
	Events   *observability.EventBus
	Registry *prometheus.Registry
	Logger   *slog.Logger

	closers []func() error
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Storage holds the checkpoint store and, for redis, the shared client.
type Storage struct {
	Store  ports.CheckpointStore
	Client *backend.Client
}

// NewStorage builds the checkpoint store with its middlewares.
func NewStorage(cfg config.Config) (*Storage, error) {
	s := &Storage{}
	var store ports.CheckpointStore
	switch cfg.Store.Kind {
	case "file":
		store = file.New(cfg.Store.Dir)
	case "redis":
		client, err := s.redis(cfg)
		if err != nil {
			return nil, err
		}
		var opts []redis.Option
		if cfg.Store.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Store.TTL))
		}
		if cfg.Store.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Store.Prefix+"thread:"))
		}
		store = redis.NewFromClient(client, opts...)
	default:
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if cfg.Store.MaskPII {
		pii, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.Store.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, &domain.ConfigurationError{Reason: "store.encryption_key must be base64"}
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, &domain.ConfigurationError{Reason: err.Error()}
		}
		mws = append(mws, enc)
	}
	s.Store = middleware.Chain(store, mws...)
	return s, nil
}

// redis returns the shared client, connecting on first use.
func (s *Storage) redis(cfg config.Config) (*backend.Client, error) {
	if s.Client != nil {
		return s.Client, nil
	}
	opts, err := backend.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return nil, &domain.ConfigurationError{Reason: "invalid store.redis_url: " + err.Error()}
	}
	s.Client = backend.NewClient(opts)
	return s.Client, nil
}

// Close closes the redis client, if any.
func (s *Storage) Close() error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

// NewCompleter builds the configured model client. The embedder is nil for
// providers without embeddings.
func NewCompleter(p config.ProviderConfig) (ports.Completer, ports.Embedder, error) {
	if p.APIKey == "" && p.BaseURL == "" {
		return nil, nil, &domain.ConfigurationError{Reason: "provider.api_key is required (or set " + vendorKey(p.Name) + ")"}
	}
	switch p.Name {
	case "anthropic":
		c := anthropic.New(func(o *anthropic.Options) {
			o.APIKey = p.APIKey
			if p.Model != "" {
				o.Model = anthropicsdk.Model(p.Model)
			}
			if p.Temperature > 0 {
				o.Temperature = float64(p.Temperature)
			}
			if p.MaxTokens > 0 {
				o.MaxTokens = int64(p.MaxTokens)
			}
		})
		return c, nil, nil
	default:
		c := openai.New(func(o *openai.Options) {
			o.APIKey = p.APIKey
			o.BaseURL = p.BaseURL
			if p.Model != "" {
				o.Model = p.Model
			}
			if p.EmbeddingModel != "" {
				o.EmbeddingModel = go_openai.EmbeddingModel(p.EmbeddingModel)
			}
			if p.Temperature > 0 {
				o.Temperature = p.Temperature
			}
			o.MaxTokens = p.MaxTokens
		})
		return c, c, nil
	}
}

func vendorKey(provider string) string {
	if provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// Build wires the whole application from configuration.
func Build(cfg config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Logger: logger}

	completer, embedder, err := NewCompleter(cfg.Provider)
	if err != nil {
		return nil, err
	}

	storage, err := NewStorage(cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, storage.Close)

	opts := []relay.Option{
		relay.WithCompleter(completer),
		relay.WithStore(storage.Store),
		relay.WithSettings(cfg.Settings()),
		relay.WithLogger(logger),
	}

	switch cfg.Index.Kind {
	case "redis":
		client, err := storage.redis(cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		opts = append(opts, relay.WithIndex(redis.NewIndex(client, prefixOf(cfg))))
	default:
		var indexOpts []memory.IndexOption
		if cfg.Index.Embeddings {
			if embedder == nil {
				app.Close()
				return nil, &domain.ConfigurationError{Reason: "provider " + cfg.Provider.Name + " has no embeddings"}
			}
			indexOpts = append(indexOpts, memory.WithEmbedder(embedder))
		}
		opts = append(opts, relay.WithIndex(memory.NewIndex(indexOpts...)))
	}

	if cfg.Store.Lock {
		client, err := storage.redis(cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		opts = append(opts, relay.WithLocker(redis.NewLocker(client, prefixOf(cfg))))
	}

	if cfg.Search.Provider == "tavily" {
		if cfg.Search.APIKey == "" {
			app.Close()
			return nil, &domain.ConfigurationError{Reason: "search.api_key is required (or set TAVILY_API_KEY)"}
		}
		opts = append(opts, relay.WithWebSearch(tavily.New(cfg.Search.APIKey, func(s *tavily.Searcher) {
			if cfg.Search.MaxResults > 0 {
				s.MaxResults = cfg.Search.MaxResults
			}
			if cfg.Search.Depth != "" {
				s.Depth = cfg.Search.Depth
			}
		})))
	}

	app.Events = observability.NewEventBus(observability.WithEventLogger(logger))
	app.closers = append(app.closers, app.Events.Close)

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(app.Registry)
	if err != nil {
		app.Close()
		return nil, err
	}

	hooks := []domain.LifecycleHooks{app.Events.Hooks(), metrics.Hooks()}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		hooks = append(hooks, DebugHooks(logger))
	}
	opts = append(opts, relay.WithLifecycleHooks(observability.Compose(hooks...)))

	app.Relay, err = relay.New(opts...)
	if err != nil {
		app.Close()
		return nil, errors.Wrap(err, "failed to initialize relay")
	}
	return app, nil
}

// Inspector builds a Relay whose only purpose is graph inspection; its
// model always fails.
func Inspector(cfg config.Config) (*relay.Relay, error) {
	unavailable := ports.CompleterFunc(func(ctx context.Context, prompt string, history []domain.Message) (string, error) {
		return "", errors.New("model not configured")
	})
	return relay.New(relay.WithCompleter(unavailable), relay.WithSettings(cfg.Settings()))
}

func prefixOf(cfg config.Config) string {
	if cfg.Store.Prefix != "" {
		return cfg.Store.Prefix
	}
	return redis.DefaultPrefix
}
