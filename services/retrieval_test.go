package services

import (
	"context"
	"strings"
	"testing"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/index"
)

// End-to-end pipeline: clean, chunk, index, retrieve. A 1000-word document
// with the default window parameters yields three chunks, and a query drawn
// from the middle of the document must rank the middle chunk first.
func TestRetrievePipelineRanksCorrectChunk(t *testing.T) {
	embedder := ai.NewHashEmbedder(testDim)
	manager := index.NewManager(t.TempDir(), testDim, 8, embedder)
	retrieval := NewRetrievalService(embedder, manager, 3, nil)
	ctx := context.Background()

	chunker, err := NewChunker(400, 50)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}

	text := CleanText(words(1000))
	chunks := chunker.Split(text)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	if err := manager.AddChunks(ctx, "alice", "doc1", chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	// Words 450-649 appear only in the second chunk (windows cover 0-399,
	// 350-749, and 700-999).
	query := strings.Join(strings.Fields(words(1000))[450:650], " ")

	results, err := retrieval.Retrieve(ctx, "alice", query)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if results[0].ChunkIndex != 1 {
		t.Errorf("top result is chunk %d, want 1", results[0].ChunkIndex)
	}
	if results[0].Content != chunks[1] {
		t.Errorf("top result content does not match the middle chunk")
	}

	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not in descending similarity order at %d", i)
		}
	}
}

func TestRetrieveTopKClamped(t *testing.T) {
	embedder := ai.NewHashEmbedder(testDim)
	manager := index.NewManager(t.TempDir(), testDim, 8, embedder)
	retrieval := NewRetrievalService(embedder, manager, 10, nil)
	ctx := context.Background()

	if err := manager.AddChunks(ctx, "bob", "doc1", []string{"only one chunk here"}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	results, err := retrieval.Retrieve(ctx, "bob", "one chunk")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}
