package mcp

import (
	"context"
	"testing"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/testutils"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	r, err := relay.New(relay.WithCompleter(testutils.NewFakeModel()))
	require.NoError(t, err)
	return NewServer(r)
}

func TestSubmitTurn_CreatesThread(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	answer, err := s.handleSubmitTurn(ctx, mcp.CallToolRequest{}, map[string]interface{}{"message": "hello there"})
	require.NoError(t, err)
	assert.NotEmpty(t, answer.ThreadID)
	assert.Equal(t, "Direct reply.", answer.Text)
	assert.Equal(t, domain.RouteQuickAnswer, answer.Route)

	again, err := s.handleSubmitTurn(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"message":   "hello again",
		"thread_id": answer.ThreadID,
	})
	require.NoError(t, err)
	assert.Equal(t, answer.ThreadID, again.ThreadID)

	state, err := s.handleGetState(ctx, mcp.CallToolRequest{}, map[string]interface{}{"thread_id": answer.ThreadID})
	require.NoError(t, err)
	assert.Equal(t, 2, state.TurnCount)
}

func TestSubmitTurn_EmptyMessage(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleSubmitTurn(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{"thread_id": "t1"})
	assert.Error(t, err)
}

func TestThreads(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.handleNewThread(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)

	list, err := s.handleListThreads(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ThreadID}, list.Threads)

	_, err = s.handleGetState(ctx, mcp.CallToolRequest{}, map[string]interface{}{"thread_id": "missing"})
	assert.ErrorContains(t, err, "not found")
}

func TestServer_RegistersTools(t *testing.T) {
	s := newTestServer(t)
	tools := s.MCPServer().ListTools()
	for _, name := range []string{"submit_turn", "new_thread", "get_state", "list_threads"} {
		assert.Contains(t, tools, name)
	}
}
