package domain

import "time"

// SourceType tells whether a document came from the internal index or the web.
type SourceType string

const (
	SourceInternal SourceType = "internal"
	SourceExternal SourceType = "external"
)

// Document is a retrieved piece of content with its provenance.
type Document struct {
	Content    string     `json:"content"`
	Source     string     `json:"source"`
	Title      string     `json:"title,omitempty"`
	SourceType SourceType `json:"source_type"`
	Score      float64    `json:"score"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Chunk is a contiguous segment of a document scheduled for summarization.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// PartialSummary is the summary of one chunk. Index matches the chunk index.
type PartialSummary struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}
