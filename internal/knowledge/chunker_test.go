package knowledge

import (
	"strings"
	"testing"
)

func TestChunkDocumentShortContent(t *testing.T) {
	chunks := ChunkDocument("hello world", 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("unexpected chunk: %q", chunks[0])
	}
}

func TestChunkDocumentEmpty(t *testing.T) {
	if chunks := ChunkDocument("", 100); chunks != nil {
		t.Errorf("expected nil for empty content, got %v", chunks)
	}
	if chunks := ChunkDocument("   \n\n  ", 100); chunks != nil {
		t.Errorf("expected nil for whitespace content, got %v", chunks)
	}
}

func TestChunkDocumentPacksParagraphs(t *testing.T) {
	content := "Para one here.\n\nPara two here.\n\nPara three here."
	chunks := ChunkDocument(content, 35)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "Para one here.\n\nPara two here." {
		t.Errorf("unexpected first chunk: %q", chunks[0])
	}
	if chunks[1] != "Para three here." {
		t.Errorf("unexpected second chunk: %q", chunks[1])
	}
}

func TestChunkDocumentSentenceFallback(t *testing.T) {
	// One paragraph over the limit splits at sentence boundaries.
	content := "First sentence is here. Second sentence is here. Third sentence is here."
	chunks := ChunkDocument(content, 50)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d exceeds limit: %d chars", i, len(c))
		}
	}
	if chunks[0] != "First sentence is here. Second sentence is here." {
		t.Errorf("unexpected first chunk: %q", chunks[0])
	}
}

func TestChunkDocumentOversizedSentencePassesThrough(t *testing.T) {
	long := strings.Repeat("x", 200) + "."
	content := "Short one. " + long + " Short two."
	chunks := ChunkDocument(content, 50)

	found := false
	for _, c := range chunks {
		if c == long {
			found = true
		} else if len(c) > 50 {
			t.Errorf("non-oversized chunk exceeds limit: %d chars", len(c))
		}
	}
	if !found {
		t.Error("oversized sentence should pass through as its own chunk")
	}
}

func TestChunkDocumentNoEmptyChunks(t *testing.T) {
	content := "A.\n\n\n\nB.\n\n  \n\nC."
	for _, c := range ChunkDocument(content, 3) {
		if strings.TrimSpace(c) == "" {
			t.Error("produced an empty chunk")
		}
	}
}

func TestChunkDocumentOrderPreserved(t *testing.T) {
	var parts []string
	for _, w := range []string{"alpha", "bravo", "charlie", "delta", "echo"} {
		parts = append(parts, "The word is "+w+".")
	}
	content := strings.Join(parts, "\n\n")
	chunks := ChunkDocument(content, 40)

	joined := strings.Join(chunks, " ")
	last := -1
	for _, w := range []string{"alpha", "bravo", "charlie", "delta", "echo"} {
		idx := strings.Index(joined, w)
		if idx < 0 {
			t.Fatalf("word %q missing from chunks", w)
		}
		if idx < last {
			t.Errorf("word %q out of order", w)
		}
		last = idx
	}
}

func TestChunkDocumentRoundTrip(t *testing.T) {
	content := "One two three. Four five six!\n\nSeven eight nine? Ten eleven twelve.\n\nThirteen fourteen."
	chunks := ChunkDocument(content, 30)

	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	if got, want := normalize(strings.Join(chunks, " ")), normalize(content); got != want {
		t.Errorf("round trip mismatch:\ngot  %q\nwant %q", got, want)
	}
}
