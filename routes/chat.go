package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docqa-platform/internal/logger"
	"docqa-platform/middleware"
	"docqa-platform/models"
	"docqa-platform/services"
	"docqa-platform/utils"
)

type ChatRoutes struct {
	answer   *services.AnswerService
	messages *mongo.Collection
}

func NewChatRoutes(answer *services.AnswerService, messages *mongo.Collection) *ChatRoutes {
	return &ChatRoutes{answer: answer, messages: messages}
}

func (r *ChatRoutes) Register(group *gin.RouterGroup) {
	group.POST("/chat/send", r.Send)
	group.GET("/chat/history", r.History)
}

// Send answers a question against the user's indexed documents and records
// the exchange.
func (r *ChatRoutes) Send(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "A non-empty 'query' field is required", gin.H{"error": err.Error()})
		return
	}

	resp, err := r.answer.Answer(c.Request.Context(), userID, req.Query)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to answer question", gin.H{"error": err.Error()})
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	resp.ConversationID = conversationID
	resp.Timestamp = time.Now()

	message := models.Message{
		UserID:         userID,
		ConversationID: conversationID,
		Query:          req.Query,
		Answer:         resp.Answer,
		Sources:        resp.Sources,
		CreatedAt:      resp.Timestamp,
	}
	if _, err := r.messages.InsertOne(c.Request.Context(), message); err != nil {
		// The answer is already computed; a history write failure should not
		// cost the user their response.
		logger.Warn("Failed to persist chat message", "user_id", userID, "error", err.Error())
	}

	c.JSON(http.StatusOK, resp)
}

// History returns the user's past messages, optionally filtered by
// conversation, newest first.
func (r *ChatRoutes) History(c *gin.Context) {
	userID := middleware.GetUserID(c)

	filter := bson.M{"user_id": userID}
	if conversationID := c.Query("conversation_id"); conversationID != "" {
		filter["conversation_id"] = conversationID
	}

	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.messages.Find(c.Request.Context(), filter, opts)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load chat history", nil)
		return
	}
	defer cursor.Close(c.Request.Context())

	messages := []models.Message{}
	if err := cursor.All(c.Request.Context(), &messages); err != nil {
		utils.RespondWithInternalError(c, "Failed to decode chat history", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}
