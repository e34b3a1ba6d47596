package assemble

import (
	"strings"
	"testing"
)

func TestAssembleSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := Assemble("head\n\n", "body text", "\n\nfoot", 4000)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "head\n\nbody text\n\nfoot" {
		t.Fatalf("unexpected chunk content: %q", chunks[0])
	}
}

func TestAssembleEmpty(t *testing.T) {
	t.Parallel()

	if chunks := Assemble("", "", "", 100); chunks != nil {
		t.Fatalf("expected nil for empty input, got %v", chunks)
	}
}

func TestAssembleLossFree(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("lorem ipsum ", 30))
		b.WriteString("\n\n")
	}
	header := "**Transcript**\n\n"
	footer := "\n\n---\nstt: a · llm: b/c"
	body := b.String()

	chunks := Assemble(header, body, footer, 500)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != header+body+footer {
		t.Fatal("concatenated chunks do not reproduce the input")
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 500 {
			t.Fatalf("chunk %d exceeds ceiling: %d runes", i, n)
		}
	}
	if !strings.HasPrefix(chunks[0], header) {
		t.Fatal("header not in first chunk")
	}
	if !strings.HasSuffix(chunks[len(chunks)-1], footer) {
		t.Fatal("footer not at end of final chunk")
	}
}

func TestAssembleLongUnbrokenText(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("x", 9000)
	chunks := Assemble("", body, "", 4000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for 9000 runes at ceiling 4000, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c)); n > 4000 {
			t.Fatalf("chunk %d exceeds ceiling: %d runes", i, n)
		}
	}
	if strings.Join(chunks, "") != body {
		t.Fatal("hard cut lost or duplicated text")
	}
}

func TestAssembleNonASCIIRuneCeiling(t *testing.T) {
	t.Parallel()

	// 3 bytes per rune; a byte-based cut would split mid-rune.
	body := strings.Repeat("م", 9000)
	chunks := Assemble("", body, "", 4000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != body {
		t.Fatal("rune cut corrupted the text")
	}
}

func TestAssemblePrefersParagraphBoundaries(t *testing.T) {
	t.Parallel()

	p1 := strings.Repeat("a", 300) + "\n\n"
	p2 := strings.Repeat("b", 300) + "\n\n"
	p3 := strings.Repeat("c", 300)
	chunks := Assemble("", p1+p2+p3, "", 400)

	if len(chunks) != 3 {
		t.Fatalf("expected one paragraph per chunk, got %d chunks", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Fatalf("first cut not at a paragraph boundary: %q", chunks[0][len(chunks[0])-4:])
	}
}

func TestAssembleFooterNeverSplitFromLastChunk(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("y", 3990)
	footer := "\n\n---\nstt: google-speech · llm: vertex-gemini/gemini-1.5-pro"
	chunks := Assemble("", body, footer, 4000)

	last := chunks[len(chunks)-1]
	if !strings.Contains(last, footer) {
		t.Fatal("footer split across chunks")
	}
	if strings.Join(chunks, "") != body+footer {
		t.Fatal("assembly not loss-free")
	}
}
