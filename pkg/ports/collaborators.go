package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// Completer invokes a language model.
// Implementations return domain.TransientError for failures worth retrying.
type Completer interface {
	Complete(ctx context.Context, prompt string, history []domain.Message) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, history []domain.Message) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	return f(ctx, prompt, history)
}

// DocumentIndex is the internal knowledge base.
type DocumentIndex interface {
	// Query returns up to k documents ordered by descending score.
	Query(ctx context.Context, text string, k int) ([]domain.Document, error)

	// Upsert stores a document, replacing any with the same source.
	Upsert(ctx context.Context, doc domain.Document) error
}

// WebSearcher queries an external search provider.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]domain.Document, error)
}

// WebSearcherFunc adapts a function to the WebSearcher interface.
type WebSearcherFunc func(ctx context.Context, query string) ([]domain.Document, error)

func (f WebSearcherFunc) Search(ctx context.Context, query string) ([]domain.Document, error) {
	return f(ctx, query)
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
