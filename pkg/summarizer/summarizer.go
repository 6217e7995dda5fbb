// Package summarizer implements map-reduce summarization of long documents.
//
// A document is cut into chunks sized from its token count, every chunk is
// summarized independently (the engine runs these map tasks in parallel),
// and the partial summaries are combined in chunk order. When there are more
// partials than fit one combine call they are reduced level by level.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultFanIn is the number of partial summaries combined per reduce call.
const DefaultFanIn = 8

// Summarizer summarizes documents through a Completer. It is safe for concurrent use.
type Summarizer struct {
	completer ports.Completer
	sizer     *Sizer
	fanIn     int
	logger    *slog.Logger
}

// Option configures the Summarizer.
type Option func(*Summarizer)

// WithSizer replaces the default cl100k sizer.
func WithSizer(s *Sizer) Option {
	return func(sm *Summarizer) {
		if s != nil {
			sm.sizer = s
		}
	}
}

// WithFanIn sets how many partials one reduce call combines. Values below 2
// are ignored.
func WithFanIn(n int) Option {
	return func(sm *Summarizer) {
		if n >= 2 {
			sm.fanIn = n
		}
	}
}

// WithLogger configures a logger for the Summarizer.
func WithLogger(logger *slog.Logger) Option {
	return func(sm *Summarizer) {
		sm.logger = logger
	}
}

// New creates a Summarizer.
func New(c ports.Completer, opts ...Option) *Summarizer {
	s := &Summarizer{
		completer: c,
		fanIn:     DefaultFanIn,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sizer == nil {
		s.sizer = NewSizer()
	}
	return s
}

// Chunk splits the document. A positive sizeHint forces the chunk size in
// tokens; otherwise the size is derived from the document length.
func (s *Summarizer) Chunk(document string, sizeHint int) []domain.Chunk {
	size, overlap := s.sizer.Plan(document)
	if sizeHint > 0 {
		size = clamp(sizeHint, MinChunkTokens, MaxChunkTokens)
		overlap = OverlapFor(size)
	}
	return Split(document, size, overlap, s.sizer.Count)
}

const chunkPrompt = `Summarize the following section of a larger document. Keep every
key fact, name and figure. Reply with the summary only.

Section %d:
%s`

// SummarizeChunk summarizes one chunk. The result carries the chunk's index.
func (s *Summarizer) SummarizeChunk(ctx context.Context, chunk domain.Chunk) (domain.PartialSummary, error) {
	out, err := s.completer.Complete(ctx, fmt.Sprintf(chunkPrompt, chunk.Index+1, chunk.Text), nil)
	if err != nil {
		return domain.PartialSummary{}, errors.Wrapf(err, "summarizing chunk %d", chunk.Index)
	}
	return domain.PartialSummary{Index: chunk.Index, Text: strings.TrimSpace(out)}, nil
}

const reducePrompt = `Combine these consecutive partial summaries of one document into a
single coherent summary. Preserve their order and do not invent facts.

%s`

// Reduce merges partial summaries in chunk order. It refuses to start unless
// there is exactly one partial per chunk.
func (s *Summarizer) Reduce(ctx context.Context, partials []domain.PartialSummary, chunkCount int) (string, error) {
	if len(partials) != chunkCount {
		return "", &domain.ValidationError{
			Node:   domain.NodeSummarizeReduce,
			Reason: fmt.Sprintf("have %d partial summaries for %d chunks", len(partials), chunkCount),
		}
	}
	ordered := append([]domain.PartialSummary(nil), partials...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for i, p := range ordered {
		if p.Index != i {
			return "", &domain.ValidationError{
				Node:   domain.NodeSummarizeReduce,
				Reason: fmt.Sprintf("partial summaries do not cover chunks 0..%d (found index %d at %d)", chunkCount-1, p.Index, i),
			}
		}
	}

	level := make([]string, len(ordered))
	for i, p := range ordered {
		level[i] = p.Text
	}
	if len(level) == 0 {
		return "", nil
	}

	depth := 0
	for len(level) > 1 {
		depth++
		next, err := s.reduceLevel(ctx, level)
		if err != nil {
			return "", errors.Wrapf(err, "reduce level %d", depth)
		}
		s.logger.Debug("reduced summaries", "level", depth, "in", len(level), "out", len(next))
		level = next
	}
	return level[0], nil
}

// reduceLevel combines consecutive groups of at most fanIn texts. Groups are
// combined concurrently; the output keeps group order.
func (s *Summarizer) reduceLevel(ctx context.Context, texts []string) ([]string, error) {
	groups := (len(texts) + s.fanIn - 1) / s.fanIn
	out := make([]string, groups)

	g, gctx := errgroup.WithContext(ctx)
	for gi := 0; gi < groups; gi++ {
		lo := gi * s.fanIn
		hi := min(lo+s.fanIn, len(texts))
		group := texts[lo:hi]
		if len(group) == 1 {
			out[gi] = group[0]
			continue
		}
		g.Go(func() error {
			combined, err := s.combine(gctx, group)
			if err != nil {
				return err
			}
			out[gi] = combined
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Summarizer) combine(ctx context.Context, texts []string) (string, error) {
	var b strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&b, "[Part %d] %s\n\n", i+1, t)
	}
	out, err := s.completer.Complete(ctx, fmt.Sprintf(reducePrompt, b.String()), nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SplitNode returns the node that chunks the routed document.
func (s *Summarizer) SplitNode() domain.NodeFunc {
	return func(ctx context.Context, state *domain.ConversationState) (domain.Delta, error) {
		if strings.TrimSpace(state.DocumentContent) == "" {
			return domain.Delta{}, errors.New("no document to summarize")
		}
		chunks := s.Chunk(state.DocumentContent, 0)
		s.logger.Debug("document chunked", "thread_id", state.CheckpointID, "chunks", len(chunks))
		return domain.Delta{Set: domain.FieldChunks, PendingChunks: chunks}, nil
	}
}

// MapFunc returns the per-chunk task of the fan-out region.
func (s *Summarizer) MapFunc() domain.MapFunc {
	return s.SummarizeChunk
}

// ReduceNode returns the node that merges the partial summaries.
func (s *Summarizer) ReduceNode() domain.NodeFunc {
	return func(ctx context.Context, state *domain.ConversationState) (domain.Delta, error) {
		summary, err := s.Reduce(ctx, state.PartialSummaries, len(state.PendingChunks))
		if err != nil {
			return domain.Delta{}, err
		}
		return domain.Delta{Set: domain.FieldSummary, Summary: summary}, nil
	}
}
