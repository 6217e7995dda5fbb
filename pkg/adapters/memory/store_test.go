package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	state := domain.NewConversationState("t1")
	state.BeginTurn(domain.NewMessage(domain.RoleUser, "hi"))
	require.NoError(t, store.Save(ctx, "t1", state))

	state.Messages[0].Content = "mutated after save"
	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "hi", loaded.Messages[0].Content)

	loaded.Messages[0].Content = "mutated after load"
	again, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Content)
}

func TestIndex_Contract(t *testing.T) {
	tests.DocumentIndexContractTest(t, memory.NewIndex())
}

func TestIndex_LexicalScore(t *testing.T) {
	idx := memory.NewIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, domain.Document{Content: "refund policy: 30 days", Source: "policy.md"}))

	docs, err := idx.Query(ctx, "refund window days policy", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.InDelta(t, 0.75, docs[0].Score, 1e-9)

	docs, err = idx.Query(ctx, "weather", 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// letterEmbedder embeds a text as counts of the letters a, b and c.
type letterEmbedder struct{}

func (letterEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{
			float32(strings.Count(t, "a")),
			float32(strings.Count(t, "b")),
			float32(strings.Count(t, "c")),
		}
	}
	return out, nil
}

func TestIndex_EmbeddingScore(t *testing.T) {
	idx := memory.NewIndex(memory.WithEmbedder(letterEmbedder{}))
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, domain.Document{Content: "aaa", Source: "a"}))
	require.NoError(t, idx.Upsert(ctx, domain.Document{Content: "bbb", Source: "b"}))
	require.NoError(t, idx.Upsert(ctx, domain.Document{Content: "aab", Source: "ab"}))

	docs, err := idx.Query(ctx, "a", 5)
	require.NoError(t, err)
	require.Len(t, docs, 2, "orthogonal documents score zero")
	assert.Equal(t, "a", docs[0].Source)
	assert.InDelta(t, 1.0, docs[0].Score, 1e-6)
	assert.Equal(t, "ab", docs[1].Source)
	assert.Equal(t, 3, idx.Len())
}
