package services

import (
	"context"
	"fmt"
	"time"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/index"
	"docqa-platform/internal/telemetry"
	"docqa-platform/models"
)

// RetrievalService answers "which stored chunks are closest to this query"
// for a single user's corpus.
type RetrievalService struct {
	embedder ai.Embedder
	manager  *index.Manager
	topK     int
	metrics  *telemetry.Metrics
}

func NewRetrievalService(embedder ai.Embedder, manager *index.Manager, topK int, metrics *telemetry.Metrics) *RetrievalService {
	if topK <= 0 {
		topK = 3
	}
	return &RetrievalService{
		embedder: embedder,
		manager:  manager,
		topK:     topK,
		metrics:  metrics,
	}
}

// Retrieve embeds the query and returns up to topK of the user's chunks
// ranked by similarity. A user with no indexed documents gets an empty
// result, not an error.
func (r *RetrievalService) Retrieve(ctx context.Context, userID, query string) ([]models.SearchResult, error) {
	start := time.Now()

	vector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	results, err := r.manager.Search(userID, vector, r.topK)
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordSearch(time.Since(start).Seconds(), len(results))
	}

	return results, nil
}
