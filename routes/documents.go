package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"docqa-platform/middleware"
	"docqa-platform/models"
	"docqa-platform/services"
	"docqa-platform/utils"
)

type DocumentRoutes struct {
	documents *services.DocumentService
}

func NewDocumentRoutes(documents *services.DocumentService) *DocumentRoutes {
	return &DocumentRoutes{documents: documents}
}

func (r *DocumentRoutes) Register(group *gin.RouterGroup) {
	group.POST("/documents/upload", r.Upload)
	group.POST("/documents/website", r.IngestWebsite)
	group.GET("/documents", r.List)
	group.GET("/documents/:id", r.Get)
	group.DELETE("/documents/:id", r.Delete)
}

// Upload accepts a multipart PDF upload under the "file" field.
func (r *DocumentRoutes) Upload(c *gin.Context) {
	userID := middleware.GetUserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.RespondWithBadRequest(c, "A PDF file is required under the 'file' field", gin.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.RespondWithBadRequest(c, "Failed to read uploaded file", gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	resp, err := r.documents.UploadPDF(c.Request.Context(), userID, file, fileHeader)
	if err != nil {
		utils.RespondWithBadRequest(c, "Upload rejected", gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// IngestWebsite fetches and indexes a web page by URL.
func (r *DocumentRoutes) IngestWebsite(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req models.WebsiteIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "A valid 'url' field is required", gin.H{"error": err.Error()})
		return
	}

	resp, err := r.documents.IngestWebsite(c.Request.Context(), userID, req.URL)
	if errors.Is(err, services.ErrEmptyContent) {
		utils.RespondWithBadRequest(c, "The page has no extractable text content", gin.H{"url": req.URL})
		return
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Website ingestion failed", gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (r *DocumentRoutes) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	docs, err := r.documents.List(c.Request.Context(), userID)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list documents", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (r *DocumentRoutes) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)

	doc, err := r.documents.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document id", nil)
		return
	}
	if doc == nil {
		utils.RespondWithNotFound(c, "Document not found")
		return
	}

	c.JSON(http.StatusOK, doc)
}

func (r *DocumentRoutes) Delete(c *gin.Context) {
	userID := middleware.GetUserID(c)

	err := r.documents.Delete(c.Request.Context(), userID, c.Param("id"))
	if err == mongo.ErrNoDocuments {
		utils.RespondWithNotFound(c, "Document not found")
		return
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to delete document", gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}
