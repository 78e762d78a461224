package index

import (
	"context"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docqa-platform/internal/ai"
)

const testDim = 64

type failEmbedder struct{}

func (failEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, ai.ErrEmbeddingUnavailable
}

func (failEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return nil, ai.ErrEmbeddingUnavailable
}

func (failEmbedder) Dimension() int { return testDim }

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	return NewManager(dir, testDim, 8, ai.NewHashEmbedder(testDim))
}

func TestAddChunksAndSearch(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	ctx := context.Background()

	chunks := []string{
		"the solar system has eight planets orbiting the sun",
		"gothic cathedrals were built across medieval europe",
		"tcp connections begin with a three way handshake",
	}
	if err := m.AddChunks(ctx, "alice", "doc1", chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	embedder := ai.NewHashEmbedder(testDim)
	query, _ := embedder.EmbedOne(ctx, "how many planets orbit the sun")

	results, err := m.Search("alice", query, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	top := results[0]
	if top.ChunkIndex != 0 || top.DocumentID != "doc1" {
		t.Errorf("top result = doc %s chunk %d, want doc1 chunk 0", top.DocumentID, top.ChunkIndex)
	}
	for i, r := range results {
		if r.Similarity <= 0 || r.Similarity > 1 {
			t.Errorf("result %d similarity %v outside (0,1]", i, r.Similarity)
		}
		if i > 0 && r.Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted by similarity at %d", i)
		}
	}
}

func TestSearchEmptyUser(t *testing.T) {
	m := newTestManager(t, t.TempDir())

	query := make([]float32, testDim)
	results, err := m.Search("nobody", query, 5)
	if err != nil {
		t.Fatalf("Search on empty user: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for empty user, want 0", len(results))
	}
}

func TestUserIsolation(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	ctx := context.Background()

	if err := m.AddChunks(ctx, "alice", "doc1", []string{"alice private notes about quantum computing"}); err != nil {
		t.Fatalf("AddChunks alice: %v", err)
	}
	if err := m.AddChunks(ctx, "bob", "doc2", []string{"bob shopping list milk eggs bread"}); err != nil {
		t.Fatalf("AddChunks bob: %v", err)
	}

	embedder := ai.NewHashEmbedder(testDim)
	query, _ := embedder.EmbedOne(ctx, "quantum computing notes")

	results, err := m.Search("bob", query, 10)
	if err != nil {
		t.Fatalf("Search bob: %v", err)
	}
	for _, r := range results {
		if r.DocumentID == "doc1" {
			t.Fatalf("bob's search surfaced alice's document")
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m1 := newTestManager(t, dir)
	chunks := []string{"first stored chunk", "second stored chunk"}
	if err := m1.AddChunks(ctx, "carol", "doc9", chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	// A fresh manager over the same directory must see the same state.
	m2 := newTestManager(t, dir)
	n, err := m2.VectorCount("carol")
	if err != nil {
		t.Fatalf("VectorCount after reload: %v", err)
	}
	if n != 2 {
		t.Fatalf("reloaded vector count = %d, want 2", n)
	}

	embedder := ai.NewHashEmbedder(testDim)
	query, _ := embedder.EmbedOne(ctx, "second stored chunk")
	results, err := m2.Search("carol", query, 1)
	if err != nil {
		t.Fatalf("Search after reload: %v", err)
	}
	if len(results) != 1 || results[0].Content != "second stored chunk" {
		t.Fatalf("reloaded search returned %+v", results)
	}
}

func TestAddChunksEmbeddingFailureLeavesNoState(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, testDim, 8, failEmbedder{})

	err := m.AddChunks(context.Background(), "dave", "doc1", []string{"some text"})
	if !errors.Is(err, ai.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}

	n, err := m.VectorCount("dave")
	if err != nil {
		t.Fatalf("VectorCount: %v", err)
	}
	if n != 0 {
		t.Errorf("failed append left %d vectors, want 0", n)
	}

	if _, err := os.Stat(filepath.Join(dir, "dave.index")); !os.IsNotExist(err) {
		t.Errorf("failed append left an index artifact on disk")
	}
}

func TestAddChunksPersistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// First append succeeds. Replacing the meta artifact with a directory
	// makes the next persist's rename fail, which must roll back the
	// in-memory append.
	m := newTestManager(t, dir)
	if err := m.AddChunks(ctx, "erin", "doc1", []string{"chunk one"}); err != nil {
		t.Fatalf("first AddChunks: %v", err)
	}
	metaFile := filepath.Join(dir, "erin.meta")
	if err := os.Remove(metaFile); err != nil {
		t.Fatalf("remove meta: %v", err)
	}
	if err := os.Mkdir(metaFile, 0755); err != nil {
		t.Fatalf("mkdir over meta: %v", err)
	}

	if err := m.AddChunks(ctx, "erin", "doc2", []string{"chunk two"}); err == nil {
		t.Fatalf("expected persist failure, got nil")
	}

	n, err := m.VectorCount("erin")
	if err != nil {
		t.Fatalf("VectorCount: %v", err)
	}
	if n != 1 {
		t.Errorf("vector count after rollback = %d, want 1", n)
	}
}

func TestLoadDetectsMissingPartnerArtifact(t *testing.T) {
	dir := t.TempDir()

	// An index file with no matching meta file must be rejected.
	f, err := os.Create(filepath.Join(dir, "frank.index"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gob.NewEncoder(f).Encode(flatSnapshot{Dimension: testDim})
	f.Close()

	m := newTestManager(t, dir)
	query := make([]float32, testDim)
	_, err = m.Search("frank", query, 1)
	if !errors.Is(err, ErrCorruptIndexState) {
		t.Fatalf("expected ErrCorruptIndexState, got %v", err)
	}
}

func TestLoadDetectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m1 := NewManager(dir, 32, 8, ai.NewHashEmbedder(32))
	if err := m1.AddChunks(ctx, "grace", "doc1", []string{"stored at dimension 32"}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	m2 := newTestManager(t, dir) // configured for testDim, not 32
	_, err := m2.VectorCount("grace")
	if !errors.Is(err, ErrCorruptIndexState) {
		t.Fatalf("expected ErrCorruptIndexState, got %v", err)
	}
}

func TestRemoveDocumentRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := newTestManager(t, dir)

	if err := m.AddChunks(ctx, "henry", "keep", []string{"kept chunk alpha", "kept chunk beta"}); err != nil {
		t.Fatalf("AddChunks keep: %v", err)
	}
	if err := m.AddChunks(ctx, "henry", "drop", []string{"dropped chunk gamma"}); err != nil {
		t.Fatalf("AddChunks drop: %v", err)
	}

	if err := m.RemoveDocument("henry", "drop"); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}

	n, _ := m.VectorCount("henry")
	if n != 2 {
		t.Fatalf("vector count after removal = %d, want 2", n)
	}

	embedder := ai.NewHashEmbedder(testDim)
	query, _ := embedder.EmbedOne(ctx, "dropped chunk gamma")
	results, err := m.Search("henry", query, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.DocumentID == "drop" {
			t.Fatalf("removed document still in search results")
		}
	}

	// Removal must survive a reload.
	m2 := newTestManager(t, dir)
	n, err = m2.VectorCount("henry")
	if err != nil {
		t.Fatalf("VectorCount after reload: %v", err)
	}
	if n != 2 {
		t.Errorf("reloaded vector count = %d, want 2", n)
	}
}

func TestReplaceDocumentReprocessingKeepsPairsUnique(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := newTestManager(t, dir)

	if err := m.AddChunks(ctx, "kate", "other", []string{"unrelated document chunk"}); err != nil {
		t.Fatalf("AddChunks other: %v", err)
	}

	chunks := []string{"first passage", "second passage"}
	for run := 0; run < 3; run++ {
		if err := m.ReplaceDocument(ctx, "kate", "doc1", chunks); err != nil {
			t.Fatalf("ReplaceDocument run %d: %v", run, err)
		}
	}

	n, err := m.VectorCount("kate")
	if err != nil {
		t.Fatalf("VectorCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("vector count = %d after reprocessing, want 3", n)
	}

	embedder := ai.NewHashEmbedder(testDim)
	query, _ := embedder.EmbedOne(ctx, "first passage")
	results, err := m.Search("kate", query, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	seen := make(map[[2]interface{}]int)
	for _, r := range results {
		seen[[2]interface{}{r.DocumentID, r.ChunkIndex}]++
	}
	for pair, count := range seen {
		if count > 1 {
			t.Errorf("pair %v returned %d times, want 1", pair, count)
		}
	}
	if seen[[2]interface{}{"other", 0}] != 1 {
		t.Errorf("unrelated document lost during reprocessing")
	}
}

func TestReplaceDocumentNewContentWins(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := newTestManager(t, dir)

	if err := m.ReplaceDocument(ctx, "leo", "doc1", []string{"old draft text"}); err != nil {
		t.Fatalf("first ReplaceDocument: %v", err)
	}
	if err := m.ReplaceDocument(ctx, "leo", "doc1", []string{"revised final text"}); err != nil {
		t.Fatalf("second ReplaceDocument: %v", err)
	}

	embedder := ai.NewHashEmbedder(testDim)
	query, _ := embedder.EmbedOne(ctx, "old draft text")
	results, err := m.Search("leo", query, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Content != "revised final text" {
		t.Errorf("stale content survived replacement: %q", results[0].Content)
	}

	// Replacement must also survive a reload.
	m2 := newTestManager(t, dir)
	n, err := m2.VectorCount("leo")
	if err != nil {
		t.Fatalf("VectorCount after reload: %v", err)
	}
	if n != 1 {
		t.Errorf("reloaded vector count = %d, want 1", n)
	}
}

func TestRemoveDocumentUnknownIsNoOp(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := newTestManager(t, dir)

	if err := m.AddChunks(ctx, "iris", "doc1", []string{"only chunk"}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}
	if err := m.RemoveDocument("iris", "never-existed"); err != nil {
		t.Fatalf("RemoveDocument unknown: %v", err)
	}

	n, _ := m.VectorCount("iris")
	if n != 1 {
		t.Errorf("vector count = %d, want 1", n)
	}
}

func TestCacheEvictionReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := NewManager(dir, testDim, 1, ai.NewHashEmbedder(testDim))

	if err := m.AddChunks(ctx, "user-a", "doc1", []string{"alpha content"}); err != nil {
		t.Fatalf("AddChunks a: %v", err)
	}
	if err := m.AddChunks(ctx, "user-b", "doc2", []string{"beta content"}); err != nil {
		t.Fatalf("AddChunks b: %v", err)
	}

	if got := m.CachedUsers(); got > 1 {
		t.Errorf("cache holds %d users, capacity is 1", got)
	}

	// The evicted user must still be fully usable via reload.
	na, err := m.VectorCount("user-a")
	if err != nil {
		t.Fatalf("VectorCount user-a: %v", err)
	}
	nb, err := m.VectorCount("user-b")
	if err != nil {
		t.Fatalf("VectorCount user-b: %v", err)
	}
	if na != 1 || nb != 1 {
		t.Errorf("counts after eviction: a=%d b=%d, want 1 and 1", na, nb)
	}
}

func TestEvictIdle(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	m := newTestManager(t, dir)

	if err := m.AddChunks(ctx, "jane", "doc1", []string{"some content"}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	if evicted := m.EvictIdle(0); evicted != 1 {
		t.Errorf("EvictIdle(0) evicted %d entries, want 1", evicted)
	}
	if m.CachedUsers() != 0 {
		t.Errorf("cache not empty after eviction")
	}

	// State reloads transparently after eviction.
	n, err := m.VectorCount("jane")
	if err != nil {
		t.Fatalf("VectorCount after eviction: %v", err)
	}
	if n != 1 {
		t.Errorf("vector count = %d, want 1", n)
	}
}

func TestRejectsUnsafeUserIDs(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	query := make([]float32, testDim)

	for _, id := range []string{"", "../escape", "a/b", "a\\b"} {
		if _, err := m.Search(id, query, 1); err == nil {
			t.Errorf("user id %q accepted, want error", id)
		}
	}
}
