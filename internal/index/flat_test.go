package index

import (
	"errors"
	"testing"
)

func TestFlatSearchOrdering(t *testing.T) {
	f, err := NewFlat(2)
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}

	vectors := [][]float32{
		{10, 0}, // far
		{1, 0},  // closest
		{3, 0},  // middle
	}
	if err := f.Append(vectors); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := f.Search([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	wantOrder := []int{1, 2, 0}
	for i, n := range got {
		if n.Position != wantOrder[i] {
			t.Errorf("result %d: position %d, want %d", i, n.Position, wantOrder[i])
		}
	}

	if got[0].Distance != 1 {
		t.Errorf("closest distance = %v, want 1 (squared L2)", got[0].Distance)
	}
}

func TestFlatSearchClampsTopK(t *testing.T) {
	f, _ := NewFlat(2)
	f.Append([][]float32{{1, 0}, {2, 0}})

	got, err := f.Search([]float32{0, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d results, want 2", len(got))
	}

	got, _ = f.Search([]float32{0, 0}, 0)
	if len(got) != 0 {
		t.Errorf("topK=0: got %d results, want 0", len(got))
	}
}

func TestFlatSearchTiesKeepInsertionOrder(t *testing.T) {
	f, _ := NewFlat(2)
	f.Append([][]float32{
		{0, 2},
		{2, 0},
		{0, -2},
	})

	got, err := f.Search([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	for i, n := range got {
		if n.Position != i {
			t.Errorf("tied result %d has position %d, want insertion order", i, n.Position)
		}
	}
}

func TestFlatAppendDimensionMismatch(t *testing.T) {
	f, _ := NewFlat(3)

	err := f.Append([][]float32{{1, 2, 3}, {1, 2}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if f.Len() != 0 {
		t.Errorf("failed append left %d vectors behind, want 0", f.Len())
	}
}

func TestFlatSearchQueryDimensionMismatch(t *testing.T) {
	f, _ := NewFlat(3)
	f.Append([][]float32{{1, 2, 3}})

	if _, err := f.Search([]float32{1, 2}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFlatTruncate(t *testing.T) {
	f, _ := NewFlat(1)
	f.Append([][]float32{{1}, {2}, {3}})

	f.Truncate(1)
	if f.Len() != 1 {
		t.Fatalf("Len = %d after Truncate(1), want 1", f.Len())
	}

	f.Truncate(5) // past the end is a no-op
	if f.Len() != 1 {
		t.Errorf("Len = %d after out-of-range Truncate, want 1", f.Len())
	}
}
