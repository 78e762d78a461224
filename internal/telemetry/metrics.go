package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	DocumentsProcessed metric.Int64Counter
	ProcessingDuration metric.Float64Histogram
	SearchDuration     metric.Float64Histogram
	ChunksIndexed      metric.Int64Counter
	TokensUsed         metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("docqa-platform")

	documentsProcessed, err := meter.Int64Counter(
		"documents.processed.total",
		metric.WithDescription("Total documents processed"),
	)
	if err != nil {
		return nil, err
	}

	processingDuration, err := meter.Float64Histogram(
		"documents.processing.duration",
		metric.WithDescription("Document processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"index.search.duration",
		metric.WithDescription("Vector index search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"index.chunks.total",
		metric.WithDescription("Total chunks appended to user indexes"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		DocumentsProcessed: documentsProcessed,
		ProcessingDuration: processingDuration,
		SearchDuration:     searchDuration,
		ChunksIndexed:      chunksIndexed,
		TokensUsed:         tokensUsed,
	}, nil
}

// RecordDocumentProcessed records a completed or failed document run
func (m *Metrics) RecordDocumentProcessed(kind, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("document.kind", kind),
		attribute.String("document.status", status),
	}

	m.DocumentsProcessed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.ProcessingDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordSearch records a vector index search
func (m *Metrics) RecordSearch(duration float64, results int) {
	attrs := []attribute.KeyValue{
		attribute.Int("search.results", results),
	}

	m.SearchDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordChunksIndexed records chunks appended to a user index
func (m *Metrics) RecordChunksIndexed(count int) {
	m.ChunksIndexed.Add(context.Background(), int64(count))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}
