// Package testutils provides deterministic collaborators for tests that
// drive whole turns through the graph.
package testutils

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/relay/pkg/domain"
)

// Prompt kinds recognized by FakeModel.
const (
	KindChunk   = "chunk"
	KindReduce  = "reduce"
	KindCited   = "cited"
	KindDirect  = "direct"
	KindMemory  = "memory"
	KindRefine  = "refine"
	KindGrade   = "grade"
	KindUnknown = "unknown"
)

var paragraphRe = regexp.MustCompile(`Paragraph (\d+)`)

// FakeModel is a Completer that answers by prompt kind:
//
//   - chunk: "sentence NN." for the first "Paragraph NN" in the section, else the section text
//   - reduce: the parts joined by a space, in order
//   - cited: "Answer from sources."
//   - direct: "Direct reply."
//   - memory: "summary N" where N counts memory calls
//
// Failures can be injected per kind. It is safe for concurrent use.
type FakeModel struct {
	// Jitter delays each call by a random duration up to this value.
	Jitter time.Duration

	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	prompts  []string

	memoryCalls atomic.Int32
}

// NewFakeModel creates a FakeModel.
func NewFakeModel() *FakeModel {
	return &FakeModel{
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// FailNext makes the next calls of kind return errs, one per call.
func (m *FakeModel) FailNext(kind string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind] = append(m.failures[kind], errs...)
}

// Calls returns how many calls of kind were made.
func (m *FakeModel) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// Prompts returns every prompt received, in call order.
func (m *FakeModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Complete implements ports.Completer.
func (m *FakeModel) Complete(ctx context.Context, prompt string, history []domain.Message) (string, error) {
	kind := Classify(prompt)

	m.mu.Lock()
	m.calls[kind]++
	m.prompts = append(m.prompts, prompt)
	var injected error
	if errs := m.failures[kind]; len(errs) > 0 {
		injected, m.failures[kind] = errs[0], errs[1:]
	}
	m.mu.Unlock()

	if m.Jitter > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(m.Jitter)))):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if injected != nil {
		return "", injected
	}

	switch kind {
	case KindChunk:
		section := prompt[strings.Index(prompt, "Section "):]
		if match := paragraphRe.FindStringSubmatch(section); match != nil {
			return "sentence " + match[1] + ".", nil
		}
		return section, nil
	case KindReduce:
		var parts []string
		for _, line := range strings.Split(prompt, "\n") {
			if strings.HasPrefix(line, "[Part ") {
				parts = append(parts, line[strings.Index(line, "] ")+2:])
			}
		}
		return strings.Join(parts, " "), nil
	case KindCited:
		return "Answer from sources.", nil
	case KindDirect:
		return "Direct reply.", nil
	case KindMemory:
		return "summary " + strconv.Itoa(int(m.memoryCalls.Add(1))), nil
	case KindGrade:
		return `{"relevant": []}`, nil
	}
	return "", nil
}

// Classify names the kind of prompt.
func Classify(prompt string) string {
	switch {
	case strings.Contains(prompt, "\nSection "):
		return KindChunk
	case strings.Contains(prompt, "[Part "):
		return KindReduce
	case strings.Contains(prompt, "numbered sources"):
		return KindCited
	case strings.Contains(prompt, "latest message. Be concise"):
		return KindDirect
	case strings.Contains(prompt, "summary of the conversation"):
		return KindMemory
	case strings.Contains(prompt, "standalone search query"):
		return KindRefine
	case strings.Contains(prompt, "grading retrieved documents"):
		return KindGrade
	}
	return KindUnknown
}

// SearchStub is a WebSearcher returning fixed results and counting calls.
type SearchStub struct {
	Results []domain.Document
	Err     error

	calls atomic.Int32
}

// Search implements ports.WebSearcher.
func (s *SearchStub) Search(ctx context.Context, query string) ([]domain.Document, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]domain.Document(nil), s.Results...), nil
}

// Calls returns how many searches were issued.
func (s *SearchStub) Calls() int {
	return int(s.calls.Load())
}

// Paragraphs builds a document of n paragraphs "¶ Paragraph NN ...", one
// paragraph per block, for deterministic chunking with ParagraphCounter.
func Paragraphs(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("¶ Paragraph %02d describes step %d of the procedure.", i, i)
	}
	return strings.Join(parts, "\n\n")
}

// ParagraphCounter measures every paragraph built by Paragraphs as 100 tokens.
func ParagraphCounter(text string) int {
	return 100 * strings.Count(text, "¶")
}
