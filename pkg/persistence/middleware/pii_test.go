package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	state := domain.NewConversationState("t1")
	state.BeginTurn(domain.NewMessage(domain.RoleUser, "mail me at jane.doe@example.com or pay with 4111 1111 1111 1111"))
	state.FinalAnswer = "Sure, jane.doe@example.com."

	require.NoError(t, store.Save(ctx, "t1", state))

	assert.Contains(t, state.Messages[0].Content, "jane.doe@example.com", "in-memory state is not modified")

	stored, err := underlying.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "mail me at *** or pay with ***", stored.Messages[0].Content)
	assert.Equal(t, "Sure, ***.", stored.FinalAnswer)
}

func TestPIIMiddleware_BadPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_Order(t *testing.T) {
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{`secret`})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "t1", secretState("t1")))

	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "my-***-sauce", loaded.Messages[0].Content, "masking runs before encryption")
}
