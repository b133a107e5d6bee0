// Package knowledge implements the tenant knowledge base: document
// chunking, embedding ingestion, and vector similarity search with
// per-search analytics.
package knowledge

import (
	"strings"
)

// DefaultMaxChunkSize is the character limit per chunk.
const DefaultMaxChunkSize = 1000

// ChunkDocument splits content into chunks of at most maxChunkSize
// characters. Paragraphs (blank-line separated) are greedily packed first;
// a paragraph that alone exceeds the limit is split again at sentence
// boundaries with the same greedy packing. A single sentence longer than
// the limit passes through unsplit. Never returns empty chunks; input
// order is preserved.
func ChunkDocument(content string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= maxChunkSize {
		return []string{trimmed}
	}

	paragraphs := splitParagraphs(trimmed)

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		if len(para) > maxChunkSize {
			// Oversized paragraph: flush what we have, then pack by sentence.
			flush()
			chunks = append(chunks, packSentences(para, maxChunkSize)...)
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(para) > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// splitParagraphs splits on blank lines and drops empty segments.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// packSentences greedily packs sentences into chunks of at most
// maxChunkSize characters. A sentence that alone exceeds the limit
// becomes its own chunk unsplit.
func packSentences(text string, maxChunkSize int) []string {
	sentences := splitSentences(text)

	var chunks []string
	var current strings.Builder
	for _, s := range sentences {
		if len(s) > maxChunkSize {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, s)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(s) > maxChunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences splits text after terminal punctuation followed by
// whitespace. Terminators stay attached to their sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
