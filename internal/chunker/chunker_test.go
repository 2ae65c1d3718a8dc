package chunker

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// distinctWords builds a text of numbered words so every span is unique and
// chunk positions can be located unambiguously.
func distinctWords(approxLen int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < approxLen; i++ {
		fmt.Fprintf(&sb, "word%04d ", i)
	}
	return strings.TrimSpace(sb.String())
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(DefaultChunkSize, DefaultChunkOverlap)

	for _, input := range []string{"", "   ", "\n\t  \n"} {
		if got := c.Chunk(input, "src", "f.txt"); got != nil {
			t.Errorf("Chunk(%q) = %d chunks, want none", input, len(got))
		}
	}
}

func TestChunkShortInput(t *testing.T) {
	c := New(DefaultChunkSize, DefaultChunkOverlap)

	text := distinctWords(2000) // below the 2048-char window
	chunks := c.Chunk(text, "doc1", "resume.txt")
	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != text {
		t.Errorf("single chunk should span the whole text")
	}
	if chunks[0].Metadata.ChunkIndex != 0 {
		t.Errorf("expected chunk_index 0, got %d", chunks[0].Metadata.ChunkIndex)
	}
	if chunks[0].Metadata.SourceID != "doc1" || chunks[0].Metadata.Filename != "resume.txt" {
		t.Errorf("metadata not carried through: %+v", chunks[0].Metadata)
	}
}

func TestChunkLongInput(t *testing.T) {
	c := New(DefaultChunkSize, DefaultChunkOverlap)

	text := distinctWords(8000)
	chunks := c.Chunk(text, "doc1", "kb.txt")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for 8000-char input, got %d", len(chunks))
	}

	for i, ch := range chunks {
		if ch.Content == "" {
			t.Fatalf("chunk %d has empty content", i)
		}
		if ch.Metadata.ChunkIndex != i {
			t.Errorf("chunk %d has chunk_index %d", i, ch.Metadata.ChunkIndex)
		}
		if ch.Metadata.TokenCount <= 0 {
			t.Errorf("chunk %d has token_count %d", i, ch.Metadata.TokenCount)
		}
		// Boundaries fall on whitespace: no chunk starts or ends mid-word.
		if strings.HasPrefix(ch.Content, " ") || strings.HasSuffix(ch.Content, " ") {
			t.Errorf("chunk %d not trimmed: %q", i, ch.Content)
		}
	}
}

func TestChunkCoverage(t *testing.T) {
	c := New(128, 16)

	text := distinctWords(6000)
	chunks := c.Chunk(text, "doc1", "")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Consecutive chunks must overlap or abut: no span of the original text
	// may fall between the end of one chunk and the start of the next.
	prevEnd := 0
	for i, ch := range chunks {
		pos := strings.Index(text, ch.Content)
		if pos < 0 {
			t.Fatalf("chunk %d content not found in input", i)
		}
		if pos > prevEnd {
			t.Fatalf("gap before chunk %d: starts at %d, previous ended at %d", i, pos, prevEnd)
		}
		end := pos + len(ch.Content)
		if end <= prevEnd && i > 0 {
			t.Fatalf("chunk %d does not advance past chunk %d", i, i-1)
		}
		prevEnd = end
	}
	if prevEnd != len(text) {
		t.Errorf("chunks cover %d of %d chars", prevEnd, len(text))
	}
}

func TestChunkDeterminism(t *testing.T) {
	c := New(256, 32)
	text := distinctWords(10000)

	first := c.Chunk(text, "doc1", "a.txt")
	second := c.Chunk(text, "doc1", "a.txt")
	if !reflect.DeepEqual(first, second) {
		t.Error("chunking the same input twice produced different results")
	}
}

func TestChunkStableIDs(t *testing.T) {
	c := New(128, 16)
	text := distinctWords(3000)

	chunks := c.Chunk(text, "kb-42", "")
	for i, ch := range chunks {
		want := fmt.Sprintf("kb-42-%d", i)
		if ch.ID != want {
			t.Errorf("chunk %d id = %q, want %q", i, ch.ID, want)
		}
	}

	// Without a source id, ids are random but must still be unique.
	anon := c.Chunk(text, "", "")
	seen := make(map[string]bool)
	for _, ch := range anon {
		if ch.ID == "" || seen[ch.ID] {
			t.Fatalf("duplicate or empty anonymous chunk id %q", ch.ID)
		}
		seen[ch.ID] = true
	}
}

func TestChunkWhitespaceNormalization(t *testing.T) {
	c := New(DefaultChunkSize, DefaultChunkOverlap)

	chunks := c.Chunk("  hello \n\n world\t again  ", "", "")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "hello world again" {
		t.Errorf("expected collapsed whitespace, got %q", chunks[0].Content)
	}
}

func TestNewClampsOverlap(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 500},
		{"negative overlap", 100, -1},
		{"zero size", 0, 50},
	}

	text := distinctWords(20000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.size, tt.overlap)
			// Must terminate and produce chunks regardless of parameters.
			chunks := c.Chunk(text, "doc", "")
			if len(chunks) == 0 {
				t.Error("expected chunks")
			}
		})
	}
}
