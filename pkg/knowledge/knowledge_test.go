package knowledge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	docs  []domain.Document
	err   error
	calls atomic.Int32
	k     int
}

func (f *fakeIndex) Query(ctx context.Context, text string, k int) ([]domain.Document, error) {
	f.calls.Add(1)
	f.k = k
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Document(nil), f.docs...), nil
}

func (f *fakeIndex) Upsert(ctx context.Context, doc domain.Document) error { return nil }

type fakeSearch struct {
	docs  []domain.Document
	err   error
	calls atomic.Int32
	query string
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]domain.Document, error) {
	f.calls.Add(1)
	f.query = query
	return f.docs, f.err
}

func turn(msg string) *domain.ConversationState {
	s := domain.NewConversationState("t")
	s.BeginTurn(domain.NewMessage(domain.RoleUser, msg))
	return s
}

func TestLookup_RelevantInternalSkipsSearch(t *testing.T) {
	index := &fakeIndex{docs: []domain.Document{
		{Content: "low", Source: "a.md", Score: 0.6},
		{Content: "high", Source: "b.md", Score: 0.9},
		{Content: "noise", Source: "c.md", Score: 0.1},
	}}
	search := &fakeSearch{}
	r := New(index, WithWebSearch(search))

	res, err := r.Lookup(context.Background(), turn("what is relay?"))
	require.NoError(t, err)

	assert.Equal(t, "what is relay?", res.Query)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "high", res.Documents[0].Content, "sorted by score")
	assert.Equal(t, domain.SourceInternal, res.Documents[0].SourceType)
	assert.Zero(t, res.ExternalSearches)
	assert.Zero(t, search.calls.Load())
	assert.Equal(t, DefaultTopK, index.k)
}

func TestLookup_FallsBackToOneSearch(t *testing.T) {
	index := &fakeIndex{docs: []domain.Document{{Content: "noise", Score: 0.2}}}
	search := &fakeSearch{docs: []domain.Document{
		{Content: "web b", Title: "B", Source: "https://b", Score: 0.7},
		{Content: "web a", Title: "A", Source: "https://a", Score: 0.95},
	}}
	r := New(index, WithWebSearch(search), WithTopK(3))

	res, err := r.Lookup(context.Background(), turn("latest go release"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), search.calls.Load())
	assert.Equal(t, "latest go release", search.query)
	assert.Equal(t, 1, res.ExternalSearches)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "web a", res.Documents[0].Content)
	for _, d := range res.Documents {
		assert.Equal(t, domain.SourceExternal, d.SourceType)
		assert.False(t, d.Timestamp.IsZero())
	}
}

func TestLookup_KeepsLowScoredWebResults(t *testing.T) {
	index := &fakeIndex{docs: []domain.Document{{Content: "noise", Score: 0.2}}}
	search := &fakeSearch{docs: []domain.Document{
		{Content: "Purchases can be refunded within 30 days.", Title: "Refunds", Source: "https://example.com/refunds", Score: 0.3},
	}}
	r := New(index, WithWebSearch(search))

	res, err := r.Lookup(context.Background(), turn("What is the refund policy?"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), search.calls.Load())
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "https://example.com/refunds", res.Documents[0].Source)
}

func TestScoreGrader_ThresholdPerSourceType(t *testing.T) {
	g := ScoreGrader{MinScore: 0.5, ExternalMinScore: 0.25}
	docs := []domain.Document{
		{Source: "weak.md", SourceType: domain.SourceInternal, Score: 0.3},
		{Source: "strong.md", SourceType: domain.SourceInternal, Score: 0.7},
		{Source: "https://weak", SourceType: domain.SourceExternal, Score: 0.2},
		{Source: "https://ok", SourceType: domain.SourceExternal, Score: 0.3},
	}

	relevant, err := g.Grade(context.Background(), "q", docs)
	require.NoError(t, err)
	var sources []string
	for _, d := range relevant {
		sources = append(sources, d.Source)
	}
	assert.Equal(t, []string{"strong.md", "https://ok"}, sources)
}

func TestLookup_SearchFailureKeepsInternalResults(t *testing.T) {
	index := &fakeIndex{docs: []domain.Document{{Content: "partial match", Score: 0.6}}}
	search := &fakeSearch{err: errors.New("quota exceeded")}
	r := New(index, WithWebSearch(search), WithMinRelevant(2))

	res, err := r.Lookup(context.Background(), turn("q"))
	require.Error(t, err)
	assert.True(t, domain.IsPartial(err))
	assert.False(t, domain.IsTransient(err), "a failed search must never be retried")
	require.Len(t, res.Documents, 1)
	assert.Equal(t, 1, res.ExternalSearches)
}

func TestLookup_IndexFailureIsTransientAndSearchesNothing(t *testing.T) {
	index := &fakeIndex{err: errors.New("connection reset")}
	search := &fakeSearch{}
	r := New(index, WithWebSearch(search))

	_, err := r.Lookup(context.Background(), turn("q"))
	assert.True(t, domain.IsTransient(err))
	assert.Zero(t, search.calls.Load())
}

func TestLookup_NoSearcherReturnsEmpty(t *testing.T) {
	r := New(&fakeIndex{})
	res, err := r.Lookup(context.Background(), turn("q"))
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
}

func TestLookup_QueryRefinement(t *testing.T) {
	index := &fakeIndex{}
	var history []domain.Message
	refiner := ports.CompleterFunc(func(ctx context.Context, prompt string, h []domain.Message) (string, error) {
		history = h
		return "  relay checkpoint format  ", nil
	})
	r := New(index, WithQueryRefinement(refiner))

	state := turn("first")
	state.Apply(domain.Delta{Set: domain.FieldAnswer, FinalAnswer: "reply"})
	state.BeginTurn(domain.NewMessage(domain.RoleUser, "and its format?"))

	res, err := r.Lookup(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "relay checkpoint format", res.Query)
	assert.Len(t, history, 2, "latest message is excluded from the context")

	failing := ports.CompleterFunc(func(ctx context.Context, prompt string, h []domain.Message) (string, error) {
		return "", errors.New("down")
	})
	res, err = New(index, WithQueryRefinement(failing)).Lookup(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "and its format?", res.Query)
}

func TestNode_WritesRetrievalFields(t *testing.T) {
	index := &fakeIndex{docs: []domain.Document{{Content: "x", Score: 0.8}}}
	delta, err := New(index).Node()(context.Background(), turn("q"))
	require.NoError(t, err)
	assert.Equal(t, domain.FieldQuery|domain.FieldRetrieved, delta.Set)
	assert.True(t, delta.KnowledgeAttempted)
	assert.Len(t, delta.RetrievedDocuments, 1)
}

func TestNode_PartialFailureCarriesDelta(t *testing.T) {
	index := &fakeIndex{}
	search := &fakeSearch{err: errors.New("down")}
	delta, err := New(index, WithWebSearch(search)).Node()(context.Background(), turn("q"))
	assert.True(t, domain.IsPartial(err))
	assert.False(t, delta.Empty())
	assert.Equal(t, 1, delta.ExternalSearches)
}

func TestLLMGrader(t *testing.T) {
	docs := []domain.Document{{Content: "one"}, {Content: "two"}, {Content: "three"}}

	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"plain json", `{"relevant": [1, 3]}`, []string{"one", "three"}},
		{"code fence and prose", "Sure!\n```json\n{\"relevant\": [2]}\n```", []string{"two"}},
		{"trailing comma", `{"relevant": [2, 3,]}`, []string{"two", "three"}},
		{"out of range and duplicates", `{"relevant": [0, 2, 2, 9]}`, []string{"two"}},
		{"none", `{"relevant": []}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLLMGrader(ports.CompleterFunc(func(ctx context.Context, prompt string, h []domain.Message) (string, error) {
				return tt.reply, nil
			}))
			got, err := g.Grade(context.Background(), "q", docs)
			require.NoError(t, err)
			var contents []string
			for _, d := range got {
				contents = append(contents, d.Content)
			}
			assert.Equal(t, tt.want, contents)
		})
	}
}

func TestFormatContext(t *testing.T) {
	out := FormatContext([]domain.Document{
		{Content: "alpha", Source: "notes.md", SourceType: domain.SourceInternal},
		{Content: "beta", Source: "https://go.dev", Title: "Go", SourceType: domain.SourceExternal},
	})
	assert.Equal(t, "Source 1 [Internal - notes.md]: alpha\n\nSource 2 [Web - Go (https://go.dev)]: beta", out)
}
