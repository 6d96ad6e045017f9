package ingestion_engine

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

// sentences builds n runes of prose with no paragraph or line breaks.
func sentences(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "Section %d obliges the tenant to notify the landlord within %d days. ", i, i+3)
	}
	return b.String()[:n]
}

// digits builds n bytes of counting digits: no spaces and no repeating period.
func digits(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprint(&b, i)
	}
	return b.String()[:n]
}

func split(t *testing.T, c *Chunker, text string) []string {
	t.Helper()
	chunks, err := c.Split(text)
	if err != nil {
		t.Fatal(err)
	}
	return chunks
}

func TestChunkerNoParagraphScenario(t *testing.T) {
	text := sentences(2000)
	chunks := split(t, NewChunker(800, 200), text)

	if len(chunks) == 0 || len(chunks) > 4 {
		t.Fatalf("got %d chunks, want 1..4", len(chunks))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("chunk %d is empty", i)
		}
		if n := utf8.RuneCountInString(c); n > 800 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	for i := 0; i+1 < len(chunks); i++ {
		head := chunks[i+1][:30]
		if !strings.Contains(chunks[i], head) {
			t.Fatalf("chunk %d does not overlap chunk %d: %q", i+1, i, head)
		}
	}
}

func TestChunkerIsDeterministic(t *testing.T) {
	text := sentences(5000) + "\n\nSecond part.\nWith lines.\n\n" + sentences(1200)
	c := NewChunker(800, 200)
	if !slices.Equal(split(t, c, text), split(t, c, text)) {
		t.Fatal("two runs over the same text differ")
	}
}

func TestChunkerCoversEveryCharacter(t *testing.T) {
	text := "Heading\n\n" + sentences(1900) + "\nShort line.\n\n" + digits(1700) + "\n\nTail."
	chunks := split(t, NewChunker(800, 200), text)

	covered := make([]bool, len(text))
	from := 0
	for i, c := range chunks {
		at := strings.Index(text[from:], c)
		if at < 0 {
			t.Fatalf("chunk %d is not a substring of the input at or after offset %d", i, from)
		}
		start := from + at
		for j := start; j < start+len(c); j++ {
			covered[j] = true
		}
		from = start
	}
	for i, ch := range text {
		if !unicode.IsSpace(ch) && !covered[i] {
			t.Fatalf("byte %d (%q) not covered by any chunk", i, ch)
		}
	}
}

func TestChunkerPrefersParagraphBoundaries(t *testing.T) {
	text := "First paragraph is short.\n\nSecond paragraph is short too."
	chunks := split(t, NewChunker(40, 5), text)
	want := []string{"First paragraph is short.", "Second paragraph is short too."}
	if !slices.Equal(chunks, want) {
		t.Fatalf("got %q, want %q", chunks, want)
	}
}

func TestChunkerSmallTextIsOneChunk(t *testing.T) {
	chunks := split(t, NewChunker(800, 200), "  The lease term is twelve months.  ")
	if len(chunks) != 1 || chunks[0] != "The lease term is twelve months." {
		t.Fatalf("got %q", chunks)
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\t\n"} {
		if got := split(t, NewChunker(800, 200), in); len(got) != 0 {
			t.Fatalf("Split(%q) = %q, want no chunks", in, got)
		}
	}
}

func TestChunkerCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 1000)
	for i, c := range split(t, NewChunker(800, 200), text) {
		if n := utf8.RuneCountInString(c); n > 800 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
}
