package tests

import (
	"context"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// DocumentIndexContractTest is a reusable test suite that verifies if an adapter complies with ports.DocumentIndex.
// The index must be empty when passed in.
func DocumentIndexContractTest(t *testing.T, index ports.DocumentIndex) {
	t.Helper()
	ctx := context.Background()

	t.Run("Query_Empty", func(t *testing.T) {
		docs, err := index.Query(ctx, "anything", 5)
		if err != nil {
			t.Fatalf("unexpected error querying empty index: %v", err)
		}
		if len(docs) != 0 {
			t.Errorf("expected no documents, got %d", len(docs))
		}
	})

	seed := []domain.Document{
		{Content: "Redis is an in-memory key value store used for caching.", Source: "redis.md", Title: "Redis"},
		{Content: "Go channels let goroutines communicate safely.", Source: "go.md", Title: "Go"},
		{Content: "Prometheus scrapes metrics over HTTP.", Source: "prom.md", Title: "Prometheus"},
	}
	for _, d := range seed {
		if err := index.Upsert(ctx, d); err != nil {
			t.Fatalf("unexpected error upserting %s: %v", d.Source, err)
		}
	}

	t.Run("Query_Ranking", func(t *testing.T) {
		docs, err := index.Query(ctx, "in-memory key value caching with redis", 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(docs) == 0 {
			t.Fatal("expected results")
		}
		if docs[0].Source != "redis.md" {
			t.Errorf("expected redis.md first, got %s", docs[0].Source)
		}
		for i := 1; i < len(docs); i++ {
			if docs[i].Score > docs[i-1].Score {
				t.Errorf("results not sorted by score at %d", i)
			}
		}
		for _, d := range docs {
			if d.SourceType != domain.SourceInternal {
				t.Errorf("expected internal source type, got %q", d.SourceType)
			}
		}
	})

	t.Run("Query_Limit", func(t *testing.T) {
		docs, err := index.Query(ctx, "redis go prometheus", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(docs) > 2 {
			t.Errorf("expected at most 2 documents, got %d", len(docs))
		}
	})

	t.Run("Upsert_Replaces", func(t *testing.T) {
		if err := index.Upsert(ctx, domain.Document{Content: "Redis streams and pub/sub.", Source: "redis.md"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		docs, err := index.Query(ctx, "redis", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count := 0
		for _, d := range docs {
			if d.Source == "redis.md" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected exactly one redis.md document, got %d", count)
		}
	})
}
