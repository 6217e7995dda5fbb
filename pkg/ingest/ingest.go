// Package ingest loads text, markdown and HTML documents into a DocumentIndex.
// HTML is converted to markdown first; every document is split into
// token-bounded chunks that are upserted as separate index entries.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/summarizer"
	"github.com/pkg/errors"
)

// DefaultChunkTokens is the size of an indexed chunk.
const DefaultChunkTokens = 400

// Format is the markup of an ingested document.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// FormatOf infers the format from a file name. Unknown extensions are not ingested.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return FormatText, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".html", ".htm":
		return FormatHTML, true
	}
	return "", false
}

// Report counts what an ingestion wrote.
type Report struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

func (r *Report) add(o Report) {
	r.Documents += o.Documents
	r.Chunks += o.Chunks
}

// Ingester writes chunked documents to an index.
type Ingester struct {
	index     ports.DocumentIndex
	chunkSize int
	count     summarizer.Counter
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithChunkTokens sets the chunk size in tokens.
func WithChunkTokens(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.chunkSize = n
		}
	}
}

// WithCounter replaces the cl100k token counter.
func WithCounter(c summarizer.Counter) Option {
	return func(i *Ingester) {
		if c != nil {
			i.count = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) {
		i.logger = logger
	}
}

// New creates an Ingester over index.
func New(index ports.DocumentIndex, opts ...Option) *Ingester {
	i := &Ingester{
		index:     index,
		chunkSize: DefaultChunkTokens,
		logger:    logging.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.count == nil {
		i.count = summarizer.TokenCounter()
	}
	return i
}

// Text ingests one document. Source identifies it; chunk sources get a
// "#n" suffix so re-ingesting a document replaces its chunks.
func (i *Ingester) Text(ctx context.Context, source, content string, format Format) (Report, error) {
	if i.index == nil {
		return Report{}, &domain.ConfigurationError{Reason: "ingest requires a document index"}
	}
	if format == FormatHTML {
		md, err := htmltomarkdown.ConvertString(content)
		if err != nil {
			return Report{}, errors.Wrapf(err, "failed to convert %s to markdown", source)
		}
		content = md
	}

	title := Title(content, source)
	chunks := summarizer.Split(content, i.chunkSize, summarizer.OverlapFor(i.chunkSize), i.count)
	if len(chunks) == 0 {
		i.logger.Debug("skipping empty document", "source", source)
		return Report{}, nil
	}

	stamp := i.now()
	for _, c := range chunks {
		doc := domain.Document{
			Content:    c.Text,
			Source:     fmt.Sprintf("%s#%d", source, c.Index),
			Title:      title,
			SourceType: domain.SourceInternal,
			Timestamp:  stamp,
		}
		if err := i.index.Upsert(ctx, doc); err != nil {
			return Report{}, errors.Wrapf(err, "failed to index %s", doc.Source)
		}
	}
	i.logger.Info("document ingested", "source", source, "chunks", len(chunks))
	return Report{Documents: 1, Chunks: len(chunks)}, nil
}

// Path ingests a file, or every supported file below a directory.
func (i *Ingester) Path(ctx context.Context, path string) (Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Report{}, errors.Wrap(err, "failed to stat ingest path")
	}
	if !info.IsDir() {
		return i.file(ctx, path)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := FormatOf(p); ok {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return Report{}, errors.Wrap(err, "failed to walk ingest directory")
	}
	sort.Strings(files)

	var total Report
	for _, f := range files {
		r, err := i.file(ctx, f)
		if err != nil {
			return total, err
		}
		total.add(r)
	}
	return total, nil
}

func (i *Ingester) file(ctx context.Context, path string) (Report, error) {
	format, ok := FormatOf(path)
	if !ok {
		return Report{}, &domain.ValidationError{Reason: fmt.Sprintf("unsupported document type %q", filepath.Ext(path))}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, errors.Wrapf(err, "failed to read %s", path)
	}
	return i.Text(ctx, filepath.ToSlash(path), string(data), format)
}

// Title returns the first markdown heading, or the base name of source.
func Title(markdown, source string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return t
			}
		}
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
