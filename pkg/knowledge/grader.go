package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/kaptinlin/jsonrepair"
	"github.com/pkg/errors"
)

// Grader keeps the documents relevant to a query.
type Grader interface {
	Grade(ctx context.Context, query string, docs []domain.Document) ([]domain.Document, error)
}

// ScoreGrader keeps documents whose score reaches the threshold of their
// source type. Index similarity and search engine relevance use different
// scales, so external results have their own threshold (zero keeps them all).
type ScoreGrader struct {
	MinScore         float64
	ExternalMinScore float64
}

// Grade implements Grader.
func (g ScoreGrader) Grade(ctx context.Context, query string, docs []domain.Document) ([]domain.Document, error) {
	var relevant []domain.Document
	for _, d := range docs {
		threshold := g.MinScore
		if d.SourceType == domain.SourceExternal {
			threshold = g.ExternalMinScore
		}
		if d.Score >= threshold {
			relevant = append(relevant, d)
		}
	}
	return relevant, nil
}

// LLMGrader asks a model which documents answer the query.
type LLMGrader struct {
	completer ports.Completer
}

// NewLLMGrader creates a grader backed by the given completer.
func NewLLMGrader(c ports.Completer) *LLMGrader {
	return &LLMGrader{completer: c}
}

type gradeResponse struct {
	Relevant []int `json:"relevant"`
}

const gradePrompt = `You are grading retrieved documents for relevance to a user question.

Question: %s

Documents:
%s

Reply with JSON only, in the form {"relevant": [1, 3]}, listing the numbers of
the documents that contain information useful to answer the question. Reply
{"relevant": []} when none do.`

// Grade implements Grader.
func (g *LLMGrader) Grade(ctx context.Context, query string, docs []domain.Document) ([]domain.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, d.Content)
	}

	out, err := g.completer.Complete(ctx, fmt.Sprintf(gradePrompt, query, b.String()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "grading documents")
	}

	indices, err := parseGrade(out)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(indices))
	var relevant []domain.Document
	for _, i := range indices {
		if i < 1 || i > len(docs) || seen[i] {
			continue
		}
		seen[i] = true
		relevant = append(relevant, docs[i-1])
	}
	return relevant, nil
}

// parseGrade decodes the grader reply, repairing malformed JSON such as
// trailing commas, code fences or single quotes.
func parseGrade(out string) ([]int, error) {
	content := strings.TrimSpace(out)
	if start := strings.Index(content, "{"); start > 0 {
		content = content[start:]
	}
	if end := strings.LastIndex(content, "}"); end >= 0 && end < len(content)-1 {
		content = content[:end+1]
	}

	var resp gradeResponse
	if err := json.Unmarshal([]byte(content), &resp); err == nil {
		return resp.Relevant, nil
	}
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, errors.Wrapf(err, "unparseable grade %q", out)
	}
	if err := json.Unmarshal([]byte(repaired), &resp); err != nil {
		return nil, errors.Wrapf(err, "unparseable grade %q", out)
	}
	return resp.Relevant, nil
}
