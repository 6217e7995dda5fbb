package domain

import (
	"strings"
	"time"
)

// Field names a group of ConversationState fields a node may write.
type Field uint16

const (
	FieldRoute     Field = 1 << iota // Route, RoutingReason
	FieldDocument                    // DocumentContent
	FieldQuery                       // Query
	FieldRetrieved                   // RetrievedDocuments, KnowledgeAttempted, ExternalSearches
	FieldChunks                      // PendingChunks
	FieldPartials                    // PartialSummaries
	FieldSummary                     // Summary; clears PendingChunks and PartialSummaries
	FieldAnswer                      // FinalAnswer; appends the assistant message
	FieldHistory                     // Messages, ConversationSummary

	FieldNone Field = 0
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldRoute, "route"},
	{FieldDocument, "document"},
	{FieldQuery, "query"},
	{FieldRetrieved, "retrieved_documents"},
	{FieldChunks, "pending_chunks"},
	{FieldPartials, "partial_summaries"},
	{FieldSummary, "summary"},
	{FieldAnswer, "final_answer"},
	{FieldHistory, "messages"},
}

// Has reports whether every field in o is also in f.
func (f Field) Has(o Field) bool { return f&o == o }

// Outside returns the fields of f that are not in allowed.
func (f Field) Outside(allowed Field) Field { return f &^ allowed }

func (f Field) String() string {
	if f == FieldNone {
		return "none"
	}
	var parts []string
	for _, fn := range fieldNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Delta is a set of proposed writes. Only fields flagged in Set are applied.
type Delta struct {
	Set Field

	Route         Route
	RoutingReason string

	DocumentContent string
	Query           string

	RetrievedDocuments []Document
	KnowledgeAttempted bool
	ExternalSearches   int

	PendingChunks    []Chunk
	PartialSummaries []PartialSummary
	Summary          string

	FinalAnswer string

	Messages            []Message
	ConversationSummary string
}

// Empty reports whether the delta writes nothing.
func (d Delta) Empty() bool { return d.Set == FieldNone }

// Apply writes the flagged fields of d into s. Callers enforce write contracts.
func (s *ConversationState) Apply(d Delta) {
	if d.Set.Has(FieldRoute) {
		s.Route = d.Route
		s.RoutingReason = d.RoutingReason
	}
	if d.Set.Has(FieldDocument) {
		s.DocumentContent = d.DocumentContent
	}
	if d.Set.Has(FieldQuery) {
		s.Query = d.Query
	}
	if d.Set.Has(FieldRetrieved) {
		s.RetrievedDocuments = d.RetrievedDocuments
		s.KnowledgeAttempted = d.KnowledgeAttempted
		s.ExternalSearches = d.ExternalSearches
	}
	if d.Set.Has(FieldChunks) {
		s.PendingChunks = d.PendingChunks
	}
	if d.Set.Has(FieldPartials) {
		s.PartialSummaries = d.PartialSummaries
	}
	if d.Set.Has(FieldSummary) {
		s.Summary = d.Summary
		s.PendingChunks = nil
		s.PartialSummaries = nil
	}
	if d.Set.Has(FieldAnswer) {
		s.FinalAnswer = d.FinalAnswer
		s.Messages = append(s.Messages, NewMessage(RoleAssistant, d.FinalAnswer))
	}
	if d.Set.Has(FieldHistory) {
		s.Messages = d.Messages
		s.ConversationSummary = d.ConversationSummary
	}
	s.UpdatedAt = time.Now().UTC()
}
