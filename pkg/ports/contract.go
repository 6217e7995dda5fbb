package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-test-thread-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewConversationState(threadID)
		state.BeginTurn(domain.NewMessage(domain.RoleUser, "what is relay?"))
		state.Route = domain.RouteKnowledge
		state.RetrievedDocuments = []domain.Document{
			{Content: "relay routes turns", Source: "doc.md", SourceType: domain.SourceInternal, Score: 0.8},
		}
		state.FinalAnswer = "a graph engine"
		state.ConversationSummary = "earlier"

		err := store.Save(ctx, threadID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, threadID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.CheckpointID, loaded.CheckpointID)
		assert.Equal(t, state.TurnCount, loaded.TurnCount)
		assert.Equal(t, state.Route, loaded.Route)
		assert.Equal(t, state.FinalAnswer, loaded.FinalAnswer)
		assert.Equal(t, state.ConversationSummary, loaded.ConversationSummary)
		require.Len(t, loaded.Messages, 1)
		assert.Equal(t, state.Messages[0].Content, loaded.Messages[0].Content)
		assert.Equal(t, state.Messages[0].ID, loaded.Messages[0].ID)
		require.Len(t, loaded.RetrievedDocuments, 1)
		assert.Equal(t, domain.SourceInternal, loaded.RetrievedDocuments[0].SourceType)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, threadID, domain.NewConversationState(threadID))
		require.NoError(t, err)

		err = store.Delete(ctx, threadID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, threadID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Load after Delete should return ErrCheckpointNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-1"
		id2 := threadID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewConversationState(id1)))
		require.NoError(t, store.Save(ctx, id2, domain.NewConversationState(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
	})
}
