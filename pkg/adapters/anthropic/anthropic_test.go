package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/relay/pkg/adapters/anthropic"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Completer = (*anthropic.Completer)(nil)

func newCompleter(t *testing.T, handler http.HandlerFunc) *anthropic.Completer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return anthropic.New(func(o *anthropic.Options) {
		o.APIKey = "test"
		o.RequestOptions = []option.RequestOption{
			option.WithBaseURL(srv.URL + "/"),
			option.WithMaxRetries(0),
		}
	})
}

func TestComplete(t *testing.T) {
	var got struct {
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	c := newCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there."}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`))
	})

	out, err := c.Complete(context.Background(), "greet me", []domain.Message{
		domain.NewMessage(domain.RoleSystem, "Previous conversation summary: hi"),
		domain.NewMessage(domain.RoleAssistant, "earlier reply"),
		domain.NewMessage(domain.RoleUser, "first"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", out)

	require.Len(t, got.System, 1)
	assert.Equal(t, "Previous conversation summary: hi", got.System[0].Text)
	roles := make([]string, len(got.Messages))
	for i, m := range got.Messages {
		roles[i] = m.Role
	}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles, "opens with user and merges consecutive user turns")
}

func TestComplete_ErrorClassification(t *testing.T) {
	for status, transient := range map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadRequest:          false,
	} {
		c := newCompleter(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
		})
		_, err := c.Complete(context.Background(), "x", nil)
		require.Error(t, err)
		assert.Equal(t, transient, domain.IsTransient(err), "status %d", status)
	}
}
