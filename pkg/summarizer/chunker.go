package summarizer

import (
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// separators are tried in order: paragraphs, lines, sentences, words.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Split breaks text into chunks of at most size tokens (as measured by count),
// cutting on the coarsest boundary that fits. Consecutive chunks share up to
// overlap tokens of trailing context. A single word longer than size is kept
// whole.
func Split(text string, size, overlap int, count Counter) []domain.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkTokens
	}
	if overlap >= size/2 {
		overlap = size / 4
	}

	segments := splitRecursive(text, separators, size, count)
	texts := pack(segments, size, overlap, count)

	chunks := make([]domain.Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, domain.Chunk{Index: len(chunks), Text: t})
	}
	return chunks
}

func splitRecursive(text string, seps []string, size int, count Counter) []string {
	if count(text) <= size || len(seps) == 0 {
		return []string{text}
	}
	pieces := splitKeep(text, seps[0])
	if len(pieces) == 1 {
		return splitRecursive(text, seps[1:], size, count)
	}
	var out []string
	for _, p := range pieces {
		if count(p) > size {
			out = append(out, splitRecursive(p, seps[1:], size, count)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitKeep splits on sep, keeping sep attached to the preceding piece so
// that concatenating the pieces restores the text.
func splitKeep(text, sep string) []string {
	var out []string
	for {
		i := strings.Index(text, sep)
		if i < 0 {
			break
		}
		out = append(out, text[:i+len(sep)])
		text = text[i+len(sep):]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// pack greedily joins segments into chunks of at most size tokens, seeding
// each chunk with the trailing segments of the previous one up to overlap.
func pack(segments []string, size, overlap int, count Counter) []string {
	var (
		out    []string
		cur    []string
		counts []int
		total  int
	)
	emit := func() {
		if t := strings.TrimSpace(strings.Join(cur, "")); t != "" {
			out = append(out, t)
		}
	}

	for _, seg := range segments {
		n := count(seg)
		if total+n > size && len(cur) > 0 {
			emit()

			// Keep a tail of the previous chunk as overlap.
			keep, kept := len(cur), 0
			for keep > 0 && kept+counts[keep-1] <= overlap {
				keep--
				kept += counts[keep]
			}
			cur = append([]string(nil), cur[keep:]...)
			counts = append([]int(nil), counts[keep:]...)
			total = kept
			if total+n > size {
				cur, counts, total = nil, nil, 0
			}
		}
		cur = append(cur, seg)
		counts = append(counts, n)
		total += n
	}
	if len(cur) > 0 {
		emit()
	}
	return out
}
