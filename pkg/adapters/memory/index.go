package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
)

// Index implements ports.DocumentIndex in memory.
//
// Without an embedder, a document scores the fraction of query terms it
// contains. With one, it scores the cosine similarity of the embeddings.
// Documents scoring zero or less are never returned.
type Index struct {
	embedder ports.Embedder

	mu      sync.RWMutex
	entries []indexEntry
}

type indexEntry struct {
	doc    domain.Document
	terms  map[string]struct{}
	vector []float32
}

// IndexOption configures the Index.
type IndexOption func(*Index)

// WithEmbedder scores documents by embedding similarity.
func WithEmbedder(e ports.Embedder) IndexOption {
	return func(i *Index) {
		i.embedder = e
	}
}

// NewIndex creates an empty index.
func NewIndex(opts ...IndexOption) *Index {
	i := &Index{}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Upsert stores a document, replacing any with the same source.
func (i *Index) Upsert(ctx context.Context, doc domain.Document) error {
	entry := indexEntry{doc: doc, terms: termSet(doc.Title + " " + doc.Content)}
	if entry.doc.SourceType == "" {
		entry.doc.SourceType = domain.SourceInternal
	}
	if entry.doc.Timestamp.IsZero() {
		entry.doc.Timestamp = time.Now().UTC()
	}
	if i.embedder != nil {
		vectors, err := i.embedder.Embed(ctx, []string{doc.Content})
		if err != nil {
			return errors.Wrapf(err, "embedding %s", doc.Source)
		}
		if len(vectors) != 1 {
			return errors.Errorf("embedding %s: got %d vectors", doc.Source, len(vectors))
		}
		entry.vector = vectors[0]
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for n := range i.entries {
		if i.entries[n].doc.Source == doc.Source {
			i.entries[n] = entry
			return nil
		}
	}
	i.entries = append(i.entries, entry)
	return nil
}

// Query returns up to k documents ordered by descending score.
func (i *Index) Query(ctx context.Context, text string, k int) ([]domain.Document, error) {
	var vector []float32
	if i.embedder != nil {
		vectors, err := i.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, errors.Wrap(err, "embedding query")
		}
		if len(vectors) != 1 {
			return nil, errors.Errorf("embedding query: got %d vectors", len(vectors))
		}
		vector = vectors[0]
	}
	query := termSet(text)

	i.mu.RLock()
	var docs []domain.Document
	for _, e := range i.entries {
		var score float64
		if vector != nil {
			score = cosine(vector, e.vector)
		} else {
			score = overlap(query, e.terms)
		}
		if score <= 0 {
			continue
		}
		d := e.doc
		d.Score = score
		docs = append(docs, d)
	}
	i.mu.RUnlock()

	sort.SliceStable(docs, func(a, b int) bool { return docs[a].Score > docs[b].Score })
	if k > 0 && len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// LexicalScore is the fraction of the query's distinct terms found in text.
func LexicalScore(query, text string) float64 {
	return overlap(termSet(query), termSet(text))
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[t] = struct{}{}
	}
	return set
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for n := range a {
		dot += float64(a[n]) * float64(b[n])
		na += float64(a[n]) * float64(a[n])
		nb += float64(b[n]) * float64(b[n])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
