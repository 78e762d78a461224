package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"docqa-platform/internal/logger"
)

const TaskProcessDocument = "document:process"

// ProcessDocumentPayload is the task body for background document
// processing.
type ProcessDocumentPayload struct {
	DocumentID string `json:"document_id"`
}

// Client enqueues background tasks over Redis.
type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr, password string, db int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		}),
	}
}

// EnqueueDocumentProcessing schedules a document for the worker pool and
// returns the asynq task ID.
func (c *Client) EnqueueDocumentProcessing(ctx context.Context, documentID string) (string, error) {
	payload, err := json.Marshal(ProcessDocumentPayload{DocumentID: documentID})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskProcessDocument, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", TaskProcessDocument, err)
	}

	logger.Info("Enqueued document processing task", "task_id", info.ID, "document_id", documentID)
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// DocumentProcessor is the worker-side handler contract, satisfied by the
// document service.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) error
}

// TaskProcessor dispatches asynq tasks to their handlers.
type TaskProcessor struct {
	documents DocumentProcessor
}

func NewTaskProcessor(documents DocumentProcessor) *TaskProcessor {
	return &TaskProcessor{documents: documents}
}

func (p *TaskProcessor) HandleProcessDocument(ctx context.Context, task *asynq.Task) error {
	var payload ProcessDocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid %s payload: %v: %w", TaskProcessDocument, err, asynq.SkipRetry)
	}

	logger.Info("Processing document task", "document_id", payload.DocumentID)
	return p.documents.Process(ctx, payload.DocumentID)
}
