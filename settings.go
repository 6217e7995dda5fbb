package relay

import (
	"time"

	"github.com/aretw0/relay/internal/runtime"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/knowledge"
	"github.com/aretw0/relay/pkg/memory"
	"github.com/aretw0/relay/pkg/summarizer"
)

// Settings tunes the agents and the engine.
type Settings struct {
	// Router
	TieBreak domain.Route

	// Knowledge retrieval
	TopK        int
	MinRelevant int
	MinScore    float64
	// ExternalMinScore applies to web results, whose scores are not on the
	// index's scale.
	ExternalMinScore float64
	LLMGrading       bool
	RefineQuery      bool

	// Summarizer
	FanIn        int
	Concurrency  int
	TargetChunks int

	// Memory compaction
	CompactThreshold int
	KeepRecent       int

	// Engine
	Retry       domain.RetryPolicy
	CallTimeout time.Duration
	TurnTimeout time.Duration
	MaxSteps    int
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		TieBreak:         domain.RouteKnowledge,
		TopK:             knowledge.DefaultTopK,
		MinRelevant:      knowledge.DefaultMinRelevant,
		MinScore:         knowledge.DefaultMinScore,
		FanIn:            summarizer.DefaultFanIn,
		Concurrency:      runtime.DefaultConcurrency,
		TargetChunks:     summarizer.DefaultTargetChunks,
		CompactThreshold: memory.DefaultThreshold,
		KeepRecent:       memory.DefaultKeepRecent,
		Retry:            domain.DefaultRetryPolicy(),
		CallTimeout:      30 * time.Second,
		TurnTimeout:      2 * time.Minute,
	}
}
