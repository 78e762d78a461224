package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrChunkerConfig is returned when the window parameters cannot make
// progress over the input.
var ErrChunkerConfig = errors.New("invalid chunker configuration")

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	specialsRe   = regexp.MustCompile(`[^\w\s.,!?;:()\-'"]`)
)

// Chunker splits cleaned text into overlapping word windows. Windows are
// word-aligned so a chunk never cuts a word in half.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrChunkerConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size), got %d", ErrChunkerConfig, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// CleanText normalizes extracted text before chunking: collapse runs of
// whitespace to single spaces, strip characters outside the word,
// whitespace, and basic punctuation classes, and trim the ends.
func CleanText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = specialsRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Split cuts text into windows of up to size words, each window starting
// size-overlap words after the previous one. The final window may be
// shorter; it is kept as long as it contains at least one word. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, (len(words)+step-1)/step)

	for start := 0; start < len(words); start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks
}
