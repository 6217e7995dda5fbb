package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/pkg/errors"
	backend "github.com/redis/go-redis/v9"
)

// Index implements ports.DocumentIndex over a Redis hash keyed by source.
// Scoring is lexical and happens client side, which suits small knowledge
// bases shared between processes.
type Index struct {
	client *backend.Client
	key    string
}

// NewIndex creates an index stored under prefix+"documents".
func NewIndex(client *backend.Client, prefix string) *Index {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Index{client: client, key: prefix + "documents"}
}

// Upsert stores a document, replacing any with the same source.
func (i *Index) Upsert(ctx context.Context, doc domain.Document) error {
	if doc.SourceType == "" {
		doc.SourceType = domain.SourceInternal
	}
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}
	doc.Score = 0
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}
	return errors.Wrap(i.client.HSet(ctx, i.key, doc.Source, data).Err(), "failed to store document")
}

// Query returns up to k documents ordered by descending score.
func (i *Index) Query(ctx context.Context, text string, k int) ([]domain.Document, error) {
	raw, err := i.client.HGetAll(ctx, i.key).Result()
	if err != nil {
		return nil, domain.Transient("redis index", err)
	}

	var docs []domain.Document
	for source, val := range raw {
		var d domain.Document
		if err := json.Unmarshal([]byte(val), &d); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal document %s", source)
		}
		d.Score = memory.LexicalScore(text, d.Title+" "+d.Content)
		if d.Score <= 0 {
			continue
		}
		docs = append(docs, d)
	}

	sort.SliceStable(docs, func(a, b int) bool {
		if docs[a].Score != docs[b].Score {
			return docs[a].Score > docs[b].Score
		}
		return docs[a].Source < docs[b].Source
	})
	if k > 0 && len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}
