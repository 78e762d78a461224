package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplitWindowPositions(t *testing.T) {
	c, err := NewChunker(400, 50)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}

	chunks := c.Split(words(1000))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	// Windows start every size-overlap words: 0, 350, 700.
	for i, wantStart := range []int{0, 350, 700} {
		first := strings.Fields(chunks[i])[0]
		if first != fmt.Sprintf("w%d", wantStart) {
			t.Errorf("chunk %d starts at %s, want w%d", i, first, wantStart)
		}
	}

	if got := len(strings.Fields(chunks[2])); got != 300 {
		t.Errorf("final chunk has %d words, want 300", got)
	}
}

func TestSplitChunkCountFormula(t *testing.T) {
	c, err := NewChunker(400, 50)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}

	// ceil((n-overlap)/(size-overlap)) for n > size
	cases := map[int]int{
		1:    1,
		399:  1,
		400:  1,
		401:  2,
		750:  2,
		751:  3,
		1000: 3,
		1100: 3,
		1101: 4,
	}

	for n, want := range cases {
		if got := len(c.Split(words(n))); got != want {
			t.Errorf("%d words: got %d chunks, want %d", n, got, want)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	c, _ := NewChunker(10, 3)
	text := words(57)

	a := c.Split(text)
	b := c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c, _ := NewChunker(400, 50)

	for _, input := range []string{"", "   ", "\n\t  \n"} {
		if chunks := c.Split(input); len(chunks) != 0 {
			t.Errorf("input %q: expected no chunks, got %d", input, len(chunks))
		}
	}
}

func TestNewChunkerRejectsBadConfig(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-1, 0},
		{100, 100},
		{100, 150},
		{100, -1},
	}

	for _, tc := range cases {
		_, err := NewChunker(tc.size, tc.overlap)
		if !errors.Is(err, ErrChunkerConfig) {
			t.Errorf("size=%d overlap=%d: expected ErrChunkerConfig, got %v", tc.size, tc.overlap, err)
		}
	}
}

func TestCleanText(t *testing.T) {
	in := "Hello\n\n  world!\tThis   has odd spacing © and symbols ™."
	got := CleanText(in)

	if strings.Contains(got, "\n") || strings.Contains(got, "\t") || strings.Contains(got, "  ") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
	if strings.Contains(got, "©") || strings.Contains(got, "™") {
		t.Errorf("special characters not removed: %q", got)
	}
	if !strings.Contains(got, "Hello world!") {
		t.Errorf("content mangled: %q", got)
	}
}
