package tavily_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/tavily"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.WebSearcher = (*tavily.Searcher)(nil)

func searcher(t *testing.T, handler http.HandlerFunc) *tavily.Searcher {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return tavily.New("key", func(s *tavily.Searcher) { s.Endpoint = srv.URL })
}

func TestSearch(t *testing.T) {
	var got map[string]any
	s := searcher(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Refunds","url":"https://shop.example/refunds","content":"30 days","score":0.91},
			{"title":"FAQ","url":"https://shop.example/faq","content":"ask us","score":0.4}]}`))
	})

	docs, err := s.Search(context.Background(), "refund policy")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "refund policy", got["query"])
	assert.Equal(t, "key", got["api_key"])
	assert.Equal(t, domain.SourceExternal, docs[0].SourceType)
	assert.Equal(t, "https://shop.example/refunds", docs[0].Source)
	assert.Equal(t, "Refunds", docs[0].Title)
	assert.InDelta(t, 0.91, docs[0].Score, 1e-9)
	assert.False(t, docs[0].Timestamp.IsZero())
}

func TestSearch_Errors(t *testing.T) {
	calls := 0
	s := searcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, 1, calls, "the searcher never retries on its own")

	s = searcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err = s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))

	_, err = tavily.New("").Search(context.Background(), "q")
	assert.Error(t, err)
}
