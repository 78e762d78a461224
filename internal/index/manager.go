package index

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docqa-platform/internal/ai"
	"docqa-platform/models"
)

// ErrConcurrentMutation signals a vector/metadata count divergence. With
// per-user locking in place it should be unreachable; it exists as a
// last-line assertion so a future locking bug surfaces loudly instead of
// corrupting search results.
var ErrConcurrentMutation = errors.New("index invariant violation: vector and metadata counts diverged")

// Manager owns one Flat index per user, lazily loaded from disk and held in
// a bounded LRU cache. All mutation is serialized per user; distinct users
// never contend.
type Manager struct {
	mu       sync.Mutex
	dir      string
	dim      int
	capacity int
	embedder ai.Embedder
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used *userIndex
}

// userIndex is the cached in-memory state for one user. The entry lock
// guards flat and records; loaded only ever transitions false -> true, and
// evicted only false -> true (an evicted entry is abandoned, never reused).
type userIndex struct {
	userID   string
	mu       sync.RWMutex
	loaded   bool
	evicted  bool
	flat     *Flat
	records  []ChunkRecord
	lastUsed time.Time // guarded by Manager.mu
}

func NewManager(dir string, dimension, capacity int, embedder ai.Embedder) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		dir:      dir,
		dim:      dimension,
		capacity: capacity,
		embedder: embedder,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// getEntry returns the cache entry for userID, creating it (unloaded) on
// first access. Touches LRU position.
func (m *Manager) getEntry(userID string) (*userIndex, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[userID]; ok {
		m.lru.MoveToFront(el)
		e := el.Value.(*userIndex)
		e.lastUsed = time.Now()
		return e, nil
	}

	e := &userIndex{userID: userID, lastUsed: time.Now()}
	m.entries[userID] = m.lru.PushFront(e)

	for m.lru.Len() > m.capacity {
		if !m.evictOldestLocked() {
			break
		}
	}

	return e, nil
}

// evictOldestLocked drops the least recently used idle entry. Entries whose
// lock is held are skipped; state is persisted after every mutation, so
// dropping an idle entry loses nothing.
func (m *Manager) evictOldestLocked() bool {
	for el := m.lru.Back(); el != nil && el != m.lru.Front(); el = el.Prev() {
		e := el.Value.(*userIndex)
		if !e.mu.TryLock() {
			continue
		}
		e.evicted = true
		e.mu.Unlock()
		m.lru.Remove(el)
		delete(m.entries, e.userID)
		return true
	}
	return false
}

// loadedEntry returns the entry for userID with its persisted state loaded.
// At most one goroutine performs the load; concurrent first-access for the
// same user blocks on the entry lock. Retries if the entry is evicted
// between lookup and lock acquisition.
func (m *Manager) loadedEntry(userID string) (*userIndex, error) {
	for {
		e, err := m.getEntry(userID)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		if !e.loaded {
			flat, records, err := loadUserIndex(m.dir, userID, m.dim)
			if err != nil {
				e.mu.Unlock()
				return nil, err
			}
			if flat == nil {
				flat, err = NewFlat(m.dim)
				if err != nil {
					e.mu.Unlock()
					return nil, err
				}
			}
			e.flat = flat
			e.records = records
			e.loaded = true
		}
		e.mu.Unlock()
		return e, nil
	}
}

// AddChunks embeds the chunks, appends vectors and metadata to the user's
// index in order, and persists the updated pair. The whole operation runs
// inside the user's critical section; on any failure the in-memory index is
// rolled back so callers never observe a partial append.
func (m *Manager) AddChunks(ctx context.Context, userID, documentID string, chunks []string) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to index for document %s", documentID)
	}

	for {
		e, err := m.loadedEntry(userID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}

		err = m.appendLocked(ctx, e, documentID, chunks)
		e.mu.Unlock()
		return err
	}
}

func (m *Manager) appendLocked(ctx context.Context, e *userIndex, documentID string, chunks []string) error {
	vectors, err := m.embedder.Embed(ctx, chunks)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			ai.ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}

	prevLen := e.flat.Len()

	if err := e.flat.Append(vectors); err != nil {
		return err
	}
	for i, content := range chunks {
		e.records = append(e.records, ChunkRecord{
			DocumentID:  documentID,
			ChunkIndex:  i,
			Content:     content,
			EmbeddingID: fmt.Sprintf("%s_%d", documentID, i),
		})
	}

	if e.flat.Len() != len(e.records) {
		e.flat.Truncate(prevLen)
		e.records = e.records[:prevLen]
		return ErrConcurrentMutation
	}

	if err := saveUserIndex(m.dir, e.userID, e.flat, e.records); err != nil {
		e.flat.Truncate(prevLen)
		e.records = e.records[:prevLen]
		return fmt.Errorf("failed to persist index for user %s: %w", e.userID, err)
	}

	return nil
}

// Search runs an exact nearest-neighbor scan over the user's vectors and
// converts distances to similarities. Users with no stored vectors get an
// empty result; topK beyond the vector count is clamped, never an error.
func (m *Manager) Search(userID string, query []float32, topK int) ([]models.SearchResult, error) {
	for {
		e, err := m.loadedEntry(userID)
		if err != nil {
			return nil, err
		}

		e.mu.RLock()
		if e.evicted {
			e.mu.RUnlock()
			continue
		}

		results, err := searchLocked(e, query, topK)
		e.mu.RUnlock()
		return results, err
	}
}

func searchLocked(e *userIndex, query []float32, topK int) ([]models.SearchResult, error) {
	if e.flat.Len() == 0 {
		return nil, nil
	}

	neighbors, err := e.flat.Search(query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		record := e.records[n.Position]
		results = append(results, models.SearchResult{
			DocumentID: record.DocumentID,
			ChunkIndex: record.ChunkIndex,
			Content:    record.Content,
			Similarity: 1.0 / (1.0 + n.Distance),
		})
	}
	return results, nil
}

// ReplaceDocument atomically swaps a document's chunks: any vectors the
// document already has are dropped and the new chunks appended, all under
// one critical section. Processing a document is therefore idempotent; a
// retried pipeline run after a partial failure converges to exactly one
// copy of each (document, chunk) pair instead of appending duplicates.
func (m *Manager) ReplaceDocument(ctx context.Context, userID, documentID string, chunks []string) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to index for document %s", documentID)
	}

	for {
		e, err := m.loadedEntry(userID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}

		err = m.replaceLocked(ctx, e, documentID, chunks)
		e.mu.Unlock()
		return err
	}
}

func (m *Manager) replaceLocked(ctx context.Context, e *userIndex, documentID string, chunks []string) error {
	vectors, err := m.embedder.Embed(ctx, chunks)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			ai.ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}

	rebuilt, err := NewFlat(m.dim)
	if err != nil {
		return err
	}

	kept := make([]ChunkRecord, 0, len(e.records)+len(chunks))
	for i, record := range e.records {
		if record.DocumentID == documentID {
			continue
		}
		if err := rebuilt.Append([][]float32{e.flat.VectorAt(i)}); err != nil {
			return err
		}
		kept = append(kept, record)
	}

	if err := rebuilt.Append(vectors); err != nil {
		return err
	}
	for i, content := range chunks {
		kept = append(kept, ChunkRecord{
			DocumentID:  documentID,
			ChunkIndex:  i,
			Content:     content,
			EmbeddingID: fmt.Sprintf("%s_%d", documentID, i),
		})
	}

	// The old state stays live until the new pair is on disk.
	if err := saveUserIndex(m.dir, e.userID, rebuilt, kept); err != nil {
		return fmt.Errorf("failed to persist index for user %s: %w", e.userID, err)
	}

	e.flat = rebuilt
	e.records = kept
	return nil
}

// RemoveDocument drops a document's vectors from the user's index by
// rebuilding it from the surviving records. The rebuilt pair is persisted
// before the in-memory state is swapped, so a persistence failure leaves
// the old index intact.
func (m *Manager) RemoveDocument(userID, documentID string) error {
	for {
		e, err := m.loadedEntry(userID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}

		err = m.removeLocked(e, documentID)
		e.mu.Unlock()
		return err
	}
}

func (m *Manager) removeLocked(e *userIndex, documentID string) error {
	rebuilt, err := NewFlat(m.dim)
	if err != nil {
		return err
	}

	kept := make([]ChunkRecord, 0, len(e.records))
	for i, record := range e.records {
		if record.DocumentID == documentID {
			continue
		}
		if err := rebuilt.Append([][]float32{e.flat.VectorAt(i)}); err != nil {
			return err
		}
		kept = append(kept, record)
	}

	if len(kept) == len(e.records) {
		return nil // document had no vectors here
	}

	if err := saveUserIndex(m.dir, e.userID, rebuilt, kept); err != nil {
		return fmt.Errorf("failed to persist rebuilt index for user %s: %w", e.userID, err)
	}

	e.flat = rebuilt
	e.records = kept
	return nil
}

// VectorCount reports how many vectors a user currently has indexed.
func (m *Manager) VectorCount(userID string) (int, error) {
	for {
		e, err := m.loadedEntry(userID)
		if err != nil {
			return 0, err
		}

		e.mu.RLock()
		if e.evicted {
			e.mu.RUnlock()
			continue
		}
		n := e.flat.Len()
		e.mu.RUnlock()
		return n, nil
	}
}

// EvictIdle drops cached entries untouched for longer than maxIdle and
// returns how many were evicted. Busy entries are skipped.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	evicted := 0

	for el := m.lru.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*userIndex)
		if e.lastUsed.After(cutoff) {
			break // list is LRU-ordered; everything further forward is newer
		}
		if e.mu.TryLock() {
			e.evicted = true
			e.mu.Unlock()
			m.lru.Remove(el)
			delete(m.entries, e.userID)
			evicted++
		}
		el = prev
	}

	return evicted
}

// CachedUsers reports how many user indexes are currently resident.
func (m *Manager) CachedUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
