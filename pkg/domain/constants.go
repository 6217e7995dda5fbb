package domain

// Node names of the orchestration graph.
const (
	NodeRouter          = "router"
	NodeKnowledge       = "knowledge"
	NodeSummarize       = "summarize"
	NodeSummarizeMap    = "summarize_map"
	NodeSummarizeReduce = "summarize_reduce"
	NodeQuickAnswer     = "quick_answer"
	NodeSynthesize      = "synthesize"
	NodeCompact         = "compact"

	// NodeEnd is the terminal marker. It is never registered as a node.
	NodeEnd = "end"
)

// SummarizePrefix marks a user message as an explicit request to summarize
// the document that follows it.
const SummarizePrefix = "SUMMARIZE DOCUMENT:"

// ConversationSummaryPrefix prefixes the system message produced by compaction.
const ConversationSummaryPrefix = "Previous conversation summary: "

// SourcesHeading opens the citation list of a cited answer.
const SourcesHeading = "Sources:"
