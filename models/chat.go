package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRequest is the body for a chat question.
type ChatRequest struct {
	Query          string `json:"query" binding:"required,min=1,max=1000"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse carries the grounded answer and its cited sources.
type ChatResponse struct {
	Answer         string      `json:"answer"`
	Sources        []SourceRef `json:"sources"`
	ConversationID string      `json:"conversation_id"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Message is a persisted chat turn.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Query          string             `bson:"query" json:"query"`
	Answer         string             `bson:"answer" json:"answer"`
	Sources        []SourceRef        `bson:"sources,omitempty" json:"sources,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
