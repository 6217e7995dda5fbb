package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// SortByScore orders documents by descending score, keeping ties stable.
func SortByScore(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
}

// Label renders the provenance of a document for citations.
func Label(d domain.Document) string {
	if d.SourceType == domain.SourceExternal {
		title := d.Title
		if title == "" {
			title = "Unknown Title"
		}
		return fmt.Sprintf("Web - %s (%s)", title, d.Source)
	}
	source := d.Source
	if source == "" {
		source = "Unknown"
	}
	return "Internal - " + source
}

// FormatContext renders documents as numbered sources for a model prompt.
func FormatContext(docs []domain.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("Source %d [%s]: %s", i+1, Label(d), d.Content)
	}
	return strings.Join(parts, "\n\n")
}
