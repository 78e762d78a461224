package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/logger"
	"docqa-platform/models"
)

// NoRelevantInfoAnswer is returned verbatim when no retrieved chunk clears
// the similarity threshold. No model call is made in that case.
const NoRelevantInfoAnswer = "I couldn't find relevant information in your documents to answer this question."

const answerSystemInstruction = "You are a helpful assistant that answers questions " +
	"based on the user's documents. Use only the provided context. If the context does " +
	"not contain the answer, say so instead of guessing."

// answerTimeout bounds one chat turn's external calls (query embedding plus
// completion, including any rate-limiter wait). Expiry surfaces as the
// models' unavailable errors, so a stuck upstream degrades instead of
// pinning the request forever.
const answerTimeout = 30 * time.Second

// AnswerService turns a question plus retrieved chunks into a grounded
// answer with source attribution.
type AnswerService struct {
	retrieval  *RetrievalService
	completion ai.CompletionClient
	threshold  float64
}

func NewAnswerService(retrieval *RetrievalService, completion ai.CompletionClient, threshold float64) *AnswerService {
	return &AnswerService{
		retrieval:  retrieval,
		completion: completion,
		threshold:  threshold,
	}
}

// Answer retrieves the user's closest chunks, keeps those at or above the
// similarity threshold, and asks the completion model for an answer grounded
// in them. When the model is unavailable the caller still gets the sources
// with a degraded answer rather than an error.
func (a *AnswerService) Answer(ctx context.Context, userID, query string) (*models.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, answerTimeout)
	defer cancel()

	results, err := a.retrieval.Retrieve(ctx, userID, query)
	if err != nil {
		return nil, err
	}

	relevant := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity >= a.threshold {
			relevant = append(relevant, r)
		}
	}

	if len(relevant) == 0 {
		return &models.ChatResponse{
			Answer:  NoRelevantInfoAnswer,
			Sources: []models.SourceRef{},
		}, nil
	}

	prompt := buildAnswerPrompt(query, relevant)

	answer, err := a.completion.Complete(ctx, ai.CompletionRequest{
		SystemInstruction: answerSystemInstruction,
		Prompt:            prompt,
		Temperature:       0.3,
		MaxOutputTokens:   500,
	})
	if err != nil {
		// A chat turn degrades instead of hard-failing when the model is down.
		logger.Warn("Completion unavailable, returning degraded answer",
			"user_id", userID, "error", err.Error())
		return &models.ChatResponse{
			Answer:  "I'm having trouble generating an answer right now. Please try again in a moment.",
			Sources: []models.SourceRef{},
		}, nil
	}

	return &models.ChatResponse{
		Answer:  answer,
		Sources: toSourceRefs(relevant),
	}, nil
}

// buildAnswerPrompt labels each chunk so the model can cite which document
// and chunk a statement came from.
func buildAnswerPrompt(query string, chunks []models.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Context from the user's documents:\n\n")
	for _, c := range chunks {
		sb.WriteString(fmt.Sprintf("[Document %s, Chunk %d]: %s\n\n", c.DocumentID, c.ChunkIndex, c.Content))
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer the question using only the context above.")
	return sb.String()
}

func toSourceRefs(results []models.SearchResult) []models.SourceRef {
	refs := make([]models.SourceRef, len(results))
	for i, r := range results {
		refs[i] = models.SourceRef{
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Similarity: r.Similarity,
		}
	}
	return refs
}
