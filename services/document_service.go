package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docqa-platform/internal/config"
	"docqa-platform/internal/index"
	"docqa-platform/internal/logger"
	"docqa-platform/internal/telemetry"
	"docqa-platform/models"
)

// TaskEnqueuer hands a document off for background processing and returns
// a task ID. Implemented by the asynq queue client; nil disables the async
// path entirely.
type TaskEnqueuer interface {
	EnqueueDocumentProcessing(ctx context.Context, documentID string) (string, error)
}

// DocumentService owns the document lifecycle: upload or fetch, extract,
// chunk, index, and the Mongo metadata record tracking it all.
type DocumentService struct {
	config    *config.Config
	documents *mongo.Collection
	extractor *Extractor
	chunker   *Chunker
	manager   *index.Manager
	enqueuer  TaskEnqueuer
	metrics   *telemetry.Metrics

	uploadDir string
	tempDir   string
}

func NewDocumentService(cfg *config.Config, documents *mongo.Collection, chunker *Chunker,
	manager *index.Manager, enqueuer TaskEnqueuer, metrics *telemetry.Metrics) *DocumentService {

	uploadDir := filepath.Join(cfg.FileStorageDir, "documents")
	tempDir := filepath.Join(cfg.FileStorageDir, "temp")
	os.MkdirAll(uploadDir, 0755)
	os.MkdirAll(tempDir, 0755)

	return &DocumentService{
		config:    cfg,
		documents: documents,
		extractor: NewExtractor(),
		chunker:   chunker,
		manager:   manager,
		enqueuer:  enqueuer,
		metrics:   metrics,
		uploadDir: uploadDir,
		tempDir:   tempDir,
	}
}

// UploadPDF validates and stores an uploaded PDF, records it in Mongo, and
// kicks off processing. Small files process in-process; files above the
// sync limit go through the task queue.
func (s *DocumentService) UploadPDF(ctx context.Context, userID string, file multipart.File, header *multipart.FileHeader) (*models.UploadResponse, error) {
	if err := s.validateUpload(header); err != nil {
		return nil, err
	}

	stored, err := s.storeFile(file, userID)
	if err != nil {
		return nil, fmt.Errorf("file storage failed: %w", err)
	}

	existing, err := s.findDuplicate(ctx, userID, stored.Hash)
	if err != nil {
		os.Remove(stored.Path)
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	if existing != nil {
		os.Remove(stored.Path)
		return &models.UploadResponse{
			ID:         existing.ID.Hex(),
			Name:       existing.Name,
			Kind:       existing.Kind,
			Status:     existing.Status,
			ChunkCount: existing.ChunkCount,
			Message:    "This document was already uploaded",
		}, nil
	}

	doc := &models.Document{
		ID:         primitive.NewObjectID(),
		UserID:     userID,
		Name:       header.Filename,
		Kind:       models.KindPDF,
		FilePath:   stored.Path,
		FileHash:   stored.Hash,
		FileSize:   stored.Size,
		Status:     models.StatusPending,
		UploadedAt: time.Now(),
	}

	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		os.Remove(stored.Path)
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	resp := &models.UploadResponse{
		ID:     doc.ID.Hex(),
		Name:   doc.Name,
		Kind:   doc.Kind,
		Status: doc.Status,
	}

	if s.enqueuer != nil && stored.Size > s.config.SyncProcessingLimit {
		taskID, err := s.enqueuer.EnqueueDocumentProcessing(ctx, doc.ID.Hex())
		if err != nil {
			logger.Error("Failed to enqueue document processing", "document_id", doc.ID.Hex(), "error", err.Error())
			s.updateStatus(ctx, doc.ID, models.StatusFailed, "failed to enqueue processing")
			resp.Status = models.StatusFailed
			resp.Message = "Upload stored but processing could not be scheduled"
			return resp, nil
		}
		resp.TaskID = taskID
		resp.Message = "Upload accepted, processing in background"
		return resp, nil
	}

	go func() {
		processCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.Process(processCtx, doc.ID.Hex()); err != nil {
			logger.Error("Document processing failed", "document_id", doc.ID.Hex(), "error", err.Error())
		}
	}()

	resp.Message = "Upload accepted, processing started"
	return resp, nil
}

// IngestWebsite fetches a web page, records it, and processes it inline.
// Pages are small enough that the async path is not worth the indirection.
func (s *DocumentService) IngestWebsite(ctx context.Context, userID, url string) (*models.UploadResponse, error) {
	doc := &models.Document{
		ID:         primitive.NewObjectID(),
		UserID:     userID,
		Name:       url,
		Kind:       models.KindWeb,
		SourceURL:  url,
		Status:     models.StatusPending,
		UploadedAt: time.Now(),
	}

	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	if err := s.Process(ctx, doc.ID.Hex()); err != nil {
		return nil, err
	}

	var updated models.Document
	if err := s.documents.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&updated); err != nil {
		return nil, err
	}

	return &models.UploadResponse{
		ID:         updated.ID.Hex(),
		Name:       updated.Name,
		Kind:       updated.Kind,
		Status:     updated.Status,
		ChunkCount: updated.ChunkCount,
		Message:    "Website ingested",
	}, nil
}

// Process runs the full pipeline for a stored document: extract, clean,
// chunk, embed, index. Safe to call from the HTTP path or a queue worker.
func (s *DocumentService) Process(ctx context.Context, documentID string) error {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", documentID, err)
	}

	var doc models.Document
	if err := s.documents.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return fmt.Errorf("document %s not found: %w", documentID, err)
	}

	start := time.Now()
	if err := s.updateStatus(ctx, oid, models.StatusProcessing, ""); err != nil {
		return err
	}

	chunkCount, err := s.runPipeline(ctx, &doc)
	if err != nil {
		s.updateStatus(ctx, oid, models.StatusFailed, err.Error())
		if s.metrics != nil {
			s.metrics.RecordDocumentProcessed(doc.Kind, models.StatusFailed, time.Since(start).Seconds())
		}
		return err
	}

	now := time.Now()
	_, err = s.documents.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"status":       models.StatusCompleted,
			"progress":     100,
			"chunk_count":  chunkCount,
			"processed_at": now,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to finalize document %s: %w", documentID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordDocumentProcessed(doc.Kind, models.StatusCompleted, time.Since(start).Seconds())
		s.metrics.RecordChunksIndexed(chunkCount)
	}

	logger.Info("Document processed", "document_id", documentID, "user_id", doc.UserID,
		"kind", doc.Kind, "chunks", chunkCount, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *DocumentService) runPipeline(ctx context.Context, doc *models.Document) (int, error) {
	var raw string
	var err error

	switch doc.Kind {
	case models.KindPDF:
		raw, err = s.extractor.ExtractPDF(doc.FilePath)
	case models.KindWeb:
		raw, err = s.extractor.ExtractWebsite(ctx, doc.SourceURL)
	default:
		return 0, fmt.Errorf("unknown document kind %q", doc.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("text extraction failed: %w", err)
	}

	cleaned := CleanText(raw)
	chunks := s.chunker.Split(cleaned)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w after cleaning", ErrEmptyContent)
	}

	// Replace rather than append so a retried run (asynq re-delivery, a
	// failed finalize) cannot store the same chunks twice.
	if err := s.manager.ReplaceDocument(ctx, doc.UserID, doc.ID.Hex(), chunks); err != nil {
		return 0, fmt.Errorf("indexing failed: %w", err)
	}

	return len(chunks), nil
}

// List returns the user's documents, newest first.
func (s *DocumentService) List(ctx context.Context, userID string) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	cursor, err := s.documents.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []models.Document{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get returns one document owned by the user.
func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*models.Document, error) {
	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q", documentID)
	}

	var doc models.Document
	err = s.documents.FindOne(ctx, bson.M{"_id": oid, "user_id": userID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document: its vectors leave the user's index first, then
// the metadata record and the stored file. Vectors go first so a partial
// failure leaves orphaned metadata rather than orphaned vectors that could
// surface in search results for a deleted document.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return mongo.ErrNoDocuments
	}

	if err := s.manager.RemoveDocument(userID, documentID); err != nil {
		return fmt.Errorf("failed to remove document vectors: %w", err)
	}

	if _, err := s.documents.DeleteOne(ctx, bson.M{"_id": doc.ID, "user_id": userID}); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove stored file", "path", doc.FilePath, "error", err.Error())
		}
	}

	logger.Info("Document deleted", "document_id", documentID, "user_id", userID)
	return nil
}

type storedFile struct {
	Path string
	Hash string
	Size int64
}

// storeFile streams the upload to a temp file while hashing, then moves it
// into the user's directory. Hashing during the copy avoids a second pass
// over large files.
func (s *DocumentService) storeFile(file multipart.File, userID string) (*storedFile, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	userDir := filepath.Join(s.uploadDir, userID)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}

	tempPath := filepath.Join(s.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hasher := md5.New()
	size, err := io.Copy(io.MultiWriter(tempFile, hasher), file)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if size == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("file is empty")
	}

	finalPath := filepath.Join(userDir, uuid.NewString()+".pdf")
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &storedFile{
		Path: finalPath,
		Hash: hex.EncodeToString(hasher.Sum(nil)),
		Size: size,
	}, nil
}

func (s *DocumentService) validateUpload(header *multipart.FileHeader) error {
	if header.Size == 0 {
		return fmt.Errorf("file is empty")
	}
	if header.Size > s.config.MaxFileSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d", header.Size, s.config.MaxFileSize)
	}
	if header.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	if len(header.Filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters)")
	}
	for _, pattern := range []string{"../", "..\\", "\x00"} {
		if strings.Contains(header.Filename, pattern) {
			return fmt.Errorf("filename contains invalid characters")
		}
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		return fmt.Errorf("only PDF files (.pdf extension) are allowed")
	}
	return nil
}

func (s *DocumentService) findDuplicate(ctx context.Context, userID, fileHash string) (*models.Document, error) {
	var existing models.Document
	err := s.documents.FindOne(ctx, bson.M{
		"user_id":   userID,
		"file_hash": fileHash,
		"status":    bson.M{"$in": []string{models.StatusCompleted, models.StatusProcessing, models.StatusPending}},
	}).Decode(&existing)

	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *DocumentService) updateStatus(ctx context.Context, id primitive.ObjectID, status, errorMessage string) error {
	set := bson.M{"status": status}

	switch status {
	case models.StatusProcessing:
		set["progress"] = 50
	case models.StatusCompleted:
		set["progress"] = 100
	case models.StatusFailed:
		set["progress"] = 0
		set["processed_at"] = time.Now()
	}
	if errorMessage != "" {
		set["error_message"] = errorMessage
	}

	_, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}
