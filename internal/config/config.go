// Package config loads the relay configuration from a YAML (or JSON) file,
// a .env file and RELAY_* environment variables, in increasing precedence.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "relay.yaml"

// EnvPrefix marks variables that override file settings. Nested keys are
// separated by a double underscore: RELAY_STORE__KIND sets store.kind.
const EnvPrefix = "RELAY_"

// Config is the full application configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Index    IndexConfig    `mapstructure:"index" yaml:"index"`
	Agents   AgentsConfig   `mapstructure:"agents" yaml:"agents"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// ProviderConfig selects the language model.
type ProviderConfig struct {
	Name           string  `mapstructure:"name" yaml:"name"`
	Model          string  `mapstructure:"model" yaml:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature    float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// SearchConfig enables the web search fallback.
type SearchConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	MaxResults int    `mapstructure:"max_results" yaml:"max_results"`
	Depth      string `mapstructure:"depth" yaml:"depth"`
}

// StoreConfig selects where conversation checkpoints live.
type StoreConfig struct {
	Kind          string        `mapstructure:"kind" yaml:"kind"`
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	RedisURL      string        `mapstructure:"redis_url" yaml:"redis_url"`
	Prefix        string        `mapstructure:"prefix" yaml:"prefix"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	EncryptionKey string        `mapstructure:"encryption_key" yaml:"encryption_key"`
	MaskPII       bool          `mapstructure:"mask_pii" yaml:"mask_pii"`
	Lock          bool          `mapstructure:"lock" yaml:"lock"`
}

// IndexConfig selects the internal document index.
type IndexConfig struct {
	Kind       string `mapstructure:"kind" yaml:"kind"`
	Embeddings bool   `mapstructure:"embeddings" yaml:"embeddings"`
}

// AgentsConfig tunes routing, retrieval, summarization and compaction.
type AgentsConfig struct {
	TieBreak         string             `mapstructure:"tie_break" yaml:"tie_break"`
	TopK             int                `mapstructure:"top_k" yaml:"top_k"`
	MinRelevant      int                `mapstructure:"min_relevant" yaml:"min_relevant"`
	MinScore         float64            `mapstructure:"min_score" yaml:"min_score"`
	ExternalMinScore float64            `mapstructure:"external_min_score" yaml:"external_min_score"`
	LLMGrading       bool               `mapstructure:"llm_grading" yaml:"llm_grading"`
	RefineQuery      bool               `mapstructure:"refine_query" yaml:"refine_query"`
	FanIn            int                `mapstructure:"fan_in" yaml:"fan_in"`
	Concurrency      int                `mapstructure:"concurrency" yaml:"concurrency"`
	TargetChunks     int                `mapstructure:"target_chunks" yaml:"target_chunks"`
	CompactThreshold int                `mapstructure:"compact_threshold" yaml:"compact_threshold"`
	KeepRecent       int                `mapstructure:"keep_recent" yaml:"keep_recent"`
	Retry            domain.RetryPolicy `mapstructure:"retry" yaml:"retry"`
	CallTimeout      time.Duration      `mapstructure:"call_timeout" yaml:"call_timeout"`
	TurnTimeout      time.Duration      `mapstructure:"turn_timeout" yaml:"turn_timeout"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Metrics bool   `mapstructure:"metrics" yaml:"metrics"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	s := relay.DefaultSettings()
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Provider:  ProviderConfig{Name: "openai", MaxTokens: 2048},
		Search:    SearchConfig{MaxResults: 5, Depth: "basic"},
		Store:     StoreConfig{Kind: "memory", Dir: ".relay/threads"},
		Index:     IndexConfig{Kind: "memory"},
		Agents: AgentsConfig{
			TieBreak:         string(s.TieBreak),
			TopK:             s.TopK,
			MinRelevant:      s.MinRelevant,
			MinScore:         s.MinScore,
			ExternalMinScore: s.ExternalMinScore,
			FanIn:            s.FanIn,
			Concurrency:      s.Concurrency,
			TargetChunks:     s.TargetChunks,
			CompactThreshold: s.CompactThreshold,
			KeepRecent:       s.KeepRecent,
			Retry:            s.Retry,
			CallTimeout:      s.CallTimeout,
			TurnTimeout:      s.TurnTimeout,
		},
		Server: ServerConfig{Addr: ":8080", Metrics: true},
	}
}

// Load reads path (DefaultFile when empty and present), then .env, then the
// environment. A missing explicit path is an error; a missing default is not.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	raw := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if raw, err = parse(path, data); err != nil {
			return Config{}, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}

	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "failed to load .env")
	}
	applyEnv(raw, os.Environ())

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyVendorKeys()
	return cfg, cfg.Validate()
}

func parse(path string, data []byte) (map[string]any, error) {
	raw := map[string]any{}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", path)
		}
		return raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return raw, nil
}

// applyEnv merges RELAY_* variables into raw.
func applyEnv(raw map[string]any, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__")
		set(raw, path, value)
	}
}

func set(m map[string]any, path []string, value string) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to build config decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// applyVendorKeys falls back to the variables the vendor SDKs document.
func (c *Config) applyVendorKeys() {
	if c.Provider.APIKey == "" {
		switch c.Provider.Name {
		case "openai":
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Search.APIKey == "" && c.Search.Provider == "tavily" {
		c.Search.APIKey = os.Getenv("TAVILY_API_KEY")
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.Provider.Name {
	case "openai", "anthropic", "":
	default:
		return &domain.ConfigurationError{Reason: "unknown provider " + c.Provider.Name}
	}
	switch c.Search.Provider {
	case "tavily", "":
	default:
		return &domain.ConfigurationError{Reason: "unknown search provider " + c.Search.Provider}
	}
	switch c.Store.Kind {
	case "memory", "file", "redis":
	default:
		return &domain.ConfigurationError{Reason: "unknown store kind " + c.Store.Kind}
	}
	switch c.Index.Kind {
	case "memory", "redis":
	default:
		return &domain.ConfigurationError{Reason: "unknown index kind " + c.Index.Kind}
	}
	if (c.Store.Kind == "redis" || c.Index.Kind == "redis" || c.Store.Lock) && c.Store.RedisURL == "" {
		return &domain.ConfigurationError{Reason: "store.redis_url is required for redis"}
	}
	switch domain.Route(c.Agents.TieBreak) {
	case domain.RouteKnowledge, domain.RouteSummarize, domain.RouteQuickAnswer:
	default:
		return &domain.ConfigurationError{Reason: "tie_break must be knowledge, summarize or quick_answer"}
	}
	return nil
}

// Settings maps the agents section to engine settings.
func (c Config) Settings() relay.Settings {
	a := c.Agents
	return relay.Settings{
		TieBreak:         domain.Route(a.TieBreak),
		TopK:             a.TopK,
		MinRelevant:      a.MinRelevant,
		MinScore:         a.MinScore,
		ExternalMinScore: a.ExternalMinScore,
		LLMGrading:       a.LLMGrading,
		RefineQuery:      a.RefineQuery,
		FanIn:            a.FanIn,
		Concurrency:      a.Concurrency,
		TargetChunks:     a.TargetChunks,
		CompactThreshold: a.CompactThreshold,
		KeepRecent:       a.KeepRecent,
		Retry:            a.Retry,
		CallTimeout:      a.CallTimeout,
		TurnTimeout:      a.TurnTimeout,
	}
}
