// Package tavily calls the Tavily search API as the external WebSearcher.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/pkg/errors"
)

const (
	DefaultEndpoint   = "https://api.tavily.com/search"
	DefaultMaxResults = 5
)

// Searcher implements ports.WebSearcher.
//
// It never retries on its own: the knowledge path issues at most one search
// per turn.
type Searcher struct {
	APIKey     string
	Endpoint   string
	Depth      string
	MaxResults int

	client *http.Client
}

// New constructs a Tavily searcher.
func New(apiKey string, opts ...func(s *Searcher)) *Searcher {
	s := &Searcher{
		APIKey:     apiKey,
		Endpoint:   DefaultEndpoint,
		Depth:      "basic",
		MaxResults: DefaultMaxResults,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithHTTPClient overrides the HTTP client, for example to change the timeout.
func WithHTTPClient(c *http.Client) func(s *Searcher) {
	return func(s *Searcher) {
		s.client = c
	}
}

type request struct {
	Query       string `json:"query"`
	APIKey      string `json:"api_key"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type response struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search posts a query to Tavily and returns the results as external documents.
func (s *Searcher) Search(ctx context.Context, query string) ([]domain.Document, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(request{
		Query:       query,
		APIKey:      s.APIKey,
		SearchDepth: s.Depth,
		MaxResults:  s.MaxResults,
	})
	if err != nil {
		return nil, errors.Wrap(err, "tavily: encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "tavily: building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.Transient("tavily", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Errorf("tavily http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, domain.Transient("tavily", err)
		}
		return nil, err
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "tavily: decoding response")
	}

	now := time.Now().UTC()
	docs := make([]domain.Document, 0, len(out.Results))
	for _, r := range out.Results {
		docs = append(docs, domain.Document{
			Content:    r.Content,
			Source:     r.URL,
			Title:      r.Title,
			SourceType: domain.SourceExternal,
			Score:      r.Score,
			Timestamp:  now,
		})
		if s.MaxResults > 0 && len(docs) >= s.MaxResults {
			break
		}
	}
	return docs, nil
}
