package domain

import (
	"time"

	"github.com/huandu/go-clone"
)

// ConversationState is the record carried through the graph for one thread.
//
// Nodes never mutate it directly: they receive a copy and return a Delta,
// which the engine validates against the node's write contract and applies.
type ConversationState struct {
	// CheckpointID identifies the thread. It is stable across turns.
	CheckpointID string `json:"checkpoint_id"`

	// Messages is the conversation history. Append-only except for compaction.
	Messages []Message `json:"messages"`

	// Route is the path selected by the router for the current turn.
	Route         Route  `json:"route,omitempty"`
	RoutingReason string `json:"routing_reason,omitempty"`

	// Query is the retrieval query derived for this turn.
	Query string `json:"query,omitempty"`

	// DocumentContent is the payload the router extracted for summarization.
	DocumentContent string `json:"document,omitempty"`

	RetrievedDocuments []Document `json:"retrieved_documents,omitempty"`
	KnowledgeAttempted bool       `json:"knowledge_attempted,omitempty"`
	ExternalSearches   int        `json:"external_searches,omitempty"`

	PendingChunks    []Chunk          `json:"pending_chunks,omitempty"`
	PartialSummaries []PartialSummary `json:"partial_summaries,omitempty"`
	Summary          string           `json:"summary,omitempty"`

	// ConversationSummary is the running memory maintained by compaction.
	ConversationSummary string `json:"conversation_summary,omitempty"`

	FinalAnswer string `json:"final_answer,omitempty"`
	TurnCount   int    `json:"turn_count"`

	// Degraded is set when any node of the current turn failed or returned
	// partial results. Failures holds one note per incident.
	Degraded bool     `json:"degraded,omitempty"`
	Failures []string `json:"failures,omitempty"`

	// Trace lists the nodes visited during the current turn.
	Trace     []string  `json:"trace,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	// Sealed holds the whole state in encrypted form when written through an
	// encrypting store. Only identification fields are kept beside it.
	Sealed string `json:"sealed,omitempty"`
}

// NewConversationState creates an empty state for the given thread.
func NewConversationState(checkpointID string) *ConversationState {
	return &ConversationState{
		CheckpointID: checkpointID,
		Messages:     []Message{},
		UpdatedAt:    time.Now().UTC(),
	}
}

// Clone returns a deep copy of the state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	return clone.Clone(s).(*ConversationState)
}

// BeginTurn clears every turn-scoped field, appends the user message and
// advances the turn counter.
func (s *ConversationState) BeginTurn(msg Message) {
	s.Route = RouteNone
	s.RoutingReason = ""
	s.Query = ""
	s.DocumentContent = ""
	s.RetrievedDocuments = nil
	s.KnowledgeAttempted = false
	s.ExternalSearches = 0
	s.PendingChunks = nil
	s.PartialSummaries = nil
	s.Summary = ""
	s.FinalAnswer = ""
	s.Degraded = false
	s.Failures = nil
	s.Trace = nil
	s.Messages = append(s.Messages, msg)
	s.TurnCount++
}

// LastMessage returns the most recent message, if any.
func (s *ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUserMessage returns the content of the most recent user message.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// MarkDegraded flags the turn as degraded and records a failure note.
func (s *ConversationState) MarkDegraded(note string) {
	s.Degraded = true
	if note != "" {
		s.Failures = append(s.Failures, note)
	}
}
