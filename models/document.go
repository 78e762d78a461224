package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document processing statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document kinds
const (
	KindPDF = "pdf"
	KindWeb = "web"
)

// Document is the metadata record for an ingested document. The chunk text
// and vectors themselves live in the per-user index artifacts, not in Mongo.
type Document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       string             `bson:"user_id" json:"user_id"`
	Name         string             `bson:"name" json:"name"`
	Kind         string             `bson:"kind" json:"kind"` // pdf, web
	SourceURL    string             `bson:"source_url,omitempty" json:"source_url,omitempty"`
	FilePath     string             `bson:"file_path,omitempty" json:"-"`
	FileHash     string             `bson:"file_hash,omitempty" json:"-"`
	FileSize     int64              `bson:"file_size,omitempty" json:"file_size,omitempty"`
	Status       string             `bson:"status" json:"status"`
	Progress     int                `bson:"progress" json:"progress"`
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// SearchResult is a retrieved chunk ranked by similarity to a query.
// Similarity is 1/(1+distance), always in (0,1]; raw distances never leave
// the index layer.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// SourceRef is the attribution form of a SearchResult returned to callers.
// Content text is deliberately not echoed back.
type SourceRef struct {
	DocumentID string  `json:"document_id" bson:"document_id"`
	ChunkIndex int     `json:"chunk_index" bson:"chunk_index"`
	Similarity float64 `json:"similarity" bson:"similarity"`
}

// UploadResponse is returned after a document upload or website ingest.
type UploadResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	TaskID     string `json:"task_id,omitempty"` // set when processing is async
	Message    string `json:"message"`
}

// WebsiteIngestRequest is the body for ingesting a web page by URL.
type WebsiteIngestRequest struct {
	URL string `json:"url" binding:"required,url"`
}
