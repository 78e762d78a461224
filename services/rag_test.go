package services

import (
	"context"
	"strings"
	"testing"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/index"
)

const testDim = 64

type mockCompletion struct {
	calls       int
	lastPrompt  string
	hadDeadline bool
	fail        bool
	reply       string
}

func (m *mockCompletion) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	m.calls++
	m.lastPrompt = req.Prompt
	_, m.hadDeadline = ctx.Deadline()
	if m.fail {
		return "", ai.ErrCompletionUnavailable
	}
	return m.reply, nil
}

func newAnswerFixture(t *testing.T, completion *mockCompletion) (*AnswerService, *index.Manager) {
	t.Helper()
	embedder := ai.NewHashEmbedder(testDim)
	manager := index.NewManager(t.TempDir(), testDim, 8, embedder)
	retrieval := NewRetrievalService(embedder, manager, 3, nil)
	return NewAnswerService(retrieval, completion, 0.7), manager
}

func TestAnswerBelowThresholdSkipsModel(t *testing.T) {
	completion := &mockCompletion{reply: "should never be returned"}
	svc, manager := newAnswerFixture(t, completion)
	ctx := context.Background()

	if err := manager.AddChunks(ctx, "alice", "doc1", []string{"medieval cathedral architecture in france"}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	resp, err := svc.Answer(ctx, "alice", "kubernetes pod scheduling internals")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if resp.Answer != NoRelevantInfoAnswer {
		t.Errorf("answer = %q, want the fixed no-info answer", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("got %d sources, want 0", len(resp.Sources))
	}
	if completion.calls != 0 {
		t.Errorf("completion called %d times for irrelevant query, want 0", completion.calls)
	}
}

func TestAnswerEmptyCorpus(t *testing.T) {
	completion := &mockCompletion{}
	svc, _ := newAnswerFixture(t, completion)

	resp, err := svc.Answer(context.Background(), "nobody", "anything at all")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Answer != NoRelevantInfoAnswer {
		t.Errorf("answer = %q, want the fixed no-info answer", resp.Answer)
	}
	if completion.calls != 0 {
		t.Errorf("completion called for empty corpus")
	}
}

func TestAnswerGroundedInRelevantChunks(t *testing.T) {
	completion := &mockCompletion{reply: "The warranty lasts two years."}
	svc, manager := newAnswerFixture(t, completion)
	ctx := context.Background()

	chunk := "the product warranty period lasts two years from purchase"
	if err := manager.AddChunks(ctx, "bob", "doc7", []string{chunk}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	// An identical query embeds to the same vector, so similarity is 1.
	resp, err := svc.Answer(ctx, "bob", chunk)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if completion.calls != 1 {
		t.Fatalf("completion called %d times, want 1", completion.calls)
	}
	if resp.Answer != completion.reply {
		t.Errorf("answer = %q, want the model reply", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(resp.Sources))
	}

	src := resp.Sources[0]
	if src.DocumentID != "doc7" || src.ChunkIndex != 0 {
		t.Errorf("source = doc %s chunk %d, want doc7 chunk 0", src.DocumentID, src.ChunkIndex)
	}
	if src.Similarity < 0.7 {
		t.Errorf("source similarity %v below threshold", src.Similarity)
	}

	if !strings.Contains(completion.lastPrompt, "[Document doc7, Chunk 0]") {
		t.Errorf("prompt missing labeled context: %q", completion.lastPrompt)
	}
	if !strings.Contains(completion.lastPrompt, chunk) {
		t.Errorf("prompt missing chunk content")
	}
}

func TestAnswerBoundsModelCalls(t *testing.T) {
	completion := &mockCompletion{reply: "fine"}
	svc, manager := newAnswerFixture(t, completion)
	ctx := context.Background()

	chunk := "shipping takes three to five business days"
	if err := manager.AddChunks(ctx, "dora", "doc1", []string{chunk}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	// The caller passes a context without a deadline; the answer path must
	// impose one so a stalled model call cannot block the request forever.
	if _, err := svc.Answer(ctx, "dora", chunk); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !completion.hadDeadline {
		t.Error("completion call ran without a deadline")
	}
}

func TestAnswerDegradesWhenCompletionFails(t *testing.T) {
	completion := &mockCompletion{fail: true}
	svc, manager := newAnswerFixture(t, completion)
	ctx := context.Background()

	chunk := "quarterly revenue grew by twelve percent"
	if err := manager.AddChunks(ctx, "carol", "doc3", []string{chunk}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	resp, err := svc.Answer(ctx, "carol", chunk)
	if err != nil {
		t.Fatalf("completion failure must not fail the request: %v", err)
	}

	if completion.calls != 1 {
		t.Errorf("completion called %d times, want 1", completion.calls)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("degraded response carries %d sources, want 0", len(resp.Sources))
	}
	if resp.Answer == NoRelevantInfoAnswer || resp.Answer == "" {
		t.Errorf("degraded answer = %q", resp.Answer)
	}
}
