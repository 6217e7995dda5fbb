package router

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWith(msg string) *domain.ConversationState {
	s := domain.NewConversationState("t")
	s.BeginTurn(domain.NewMessage(domain.RoleUser, msg))
	return s
}

func TestDecide(t *testing.T) {
	longDoc := strings.Repeat("The quarterly report shows steady growth. ", 10)

	tests := []struct {
		name    string
		msg     string
		want    domain.Route
		wantDoc string
	}{
		{"explicit prefix", domain.SummarizePrefix + "\n\n" + longDoc, domain.RouteSummarize, strings.TrimSpace(longDoc)},
		{"prefix is case insensitive", "summarize document: short text", domain.RouteSummarize, "short text"},
		{"inline document", "Please summarize this:\n" + longDoc, domain.RouteSummarize, strings.TrimSpace(longDoc)},
		{"inline payload too short", "summarize this: hello", domain.RouteQuickAnswer, ""},
		{"prefix without payload", domain.SummarizePrefix, domain.RouteKnowledge, ""},
		{"sourced question", "What does the documentation say about retries?", domain.RouteKnowledge, ""},
		{"interrogative without mark", "how does the engine checkpoint state", domain.RouteKnowledge, ""},
		{"knowledge keyword", "find the latest figures on inflation", domain.RouteKnowledge, ""},
		{"greeting", "hi", domain.RouteQuickAnswer, ""},
		{"thanks", "Thanks!", domain.RouteQuickAnswer, ""},
		{"short greeting", "hello there friend", domain.RouteQuickAnswer, ""},
		{"small talk question", "how are you?", domain.RouteQuickAnswer, ""},
		{"chit chat", "Tell me a joke", domain.RouteQuickAnswer, ""},
		{"summary of the chat", "summarize our chat", domain.RouteQuickAnswer, ""},
		{"ambiguous defaults to knowledge", "Can you summarize what the sources say about retries?", domain.RouteKnowledge, ""},
		{"keyword needs word boundary", "resourceful people", domain.RouteQuickAnswer, ""},
		{"greeting prefix needs word boundary", "history of rome?", domain.RouteKnowledge, ""},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Decide(stateWith(tt.msg))
			assert.Equal(t, tt.want, d.Route, "reason: %s", d.Reason)
			assert.Equal(t, tt.wantDoc, d.Document)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func afterSourcedAnswer(msg string) *domain.ConversationState {
	s := domain.NewConversationState("t")
	s.BeginTurn(domain.NewMessage(domain.RoleUser, "What is the refund policy?"))
	s.Messages = append(s.Messages, domain.NewMessage(domain.RoleAssistant,
		"Refunds are accepted within 30 days [1].\n\n"+domain.SourcesHeading+"\n[1] Internal - Refunds (handbook.md#0)"))
	s.BeginTurn(domain.NewMessage(domain.RoleUser, msg))
	return s
}

func TestDecide_FollowUpAfterSourcedAnswer(t *testing.T) {
	r := New()

	tests := []struct {
		msg  string
		want domain.Route
	}{
		{"Tell me more about that", domain.RouteKnowledge},
		{"and for digital items, does it apply too", domain.RouteKnowledge},
		{"give me an example", domain.RouteKnowledge},
		{"thanks!", domain.RouteQuickAnswer},
		{"Tell me a joke", domain.RouteQuickAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			d := r.Decide(afterSourcedAnswer(tt.msg))
			assert.Equal(t, tt.want, d.Route, "reason: %s", d.Reason)
		})
	}

	d := r.Decide(afterSourcedAnswer("Tell me more about that"))
	assert.Equal(t, "follow-up to a sourced answer", d.Reason)
}

func TestDecide_FollowUpWithoutSourcesIsConversational(t *testing.T) {
	s := domain.NewConversationState("t")
	s.BeginTurn(domain.NewMessage(domain.RoleUser, "hi"))
	s.Messages = append(s.Messages, domain.NewMessage(domain.RoleAssistant, "Hello! How can I help?"))
	s.BeginTurn(domain.NewMessage(domain.RoleUser, "Tell me more about that"))

	d := New().Decide(s)
	assert.Equal(t, domain.RouteQuickAnswer, d.Route)
}

func TestDecide_EmptyHistory(t *testing.T) {
	d := New().Decide(domain.NewConversationState("t"))
	assert.Equal(t, domain.RouteKnowledge, d.Route)
}

func TestDecide_TieBreak(t *testing.T) {
	r := New(WithTieBreak(domain.RouteQuickAnswer))
	d := r.Decide(stateWith("Can you summarize what the sources say about retries?"))
	assert.Equal(t, domain.RouteQuickAnswer, d.Route)

	// Only path routes are accepted as tie-breaks.
	r = New(WithTieBreak(domain.RouteEnd))
	d = r.Decide(stateWith("Can you summarize what the sources say about retries?"))
	assert.Equal(t, domain.RouteKnowledge, d.Route)
}

func TestDecide_CustomKeywords(t *testing.T) {
	r := New(WithKnowledgeKeywords("Wiki"), WithSummarizeKeywords("digest"), WithMinDocumentLength(5))
	assert.Equal(t, domain.RouteKnowledge, r.Decide(stateWith("check the wiki")).Route)
	assert.Equal(t, domain.RouteSummarize, r.Decide(stateWith("digest: some text here")).Route)
}

func TestRouter_Closure(t *testing.T) {
	r := New()
	for _, route := range r.Routes() {
		assert.True(t, route.Valid(), "route %q", route)
		assert.NotEmpty(t, route.Node())
	}
	assert.ElementsMatch(t,
		[]string{domain.NodeKnowledge, domain.NodeSummarize, domain.NodeQuickAnswer},
		r.Targets(),
	)
}

func TestRouter_Node(t *testing.T) {
	r := New()
	state := stateWith(domain.SummarizePrefix + " body")

	delta, err := r.Node()(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, domain.FieldRoute|domain.FieldDocument, delta.Set)
	assert.Equal(t, domain.RouteSummarize, delta.Route)
	assert.Equal(t, "body", delta.DocumentContent)

	state.Apply(delta)
	assert.Equal(t, domain.NodeSummarize, r.Next(state))
}
