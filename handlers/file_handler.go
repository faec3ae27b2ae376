package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"lexcounsel-backend/models"
	"lexcounsel-backend/repository"
	"lexcounsel-backend/service"
	"lexcounsel-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConversationLookup resolves the conversation an upload is attached to
type ConversationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
}

// FileHandler handles HTTP requests for file operations
type FileHandler struct {
	files            service.FileStore
	conversations    ConversationLookup
	storage          storage.Storage
	maxFileSize      int64
	allowedMimeTypes map[string]bool
}

// NewFileHandler creates a new file handler
func NewFileHandler(files service.FileStore, conversations ConversationLookup, store storage.Storage) *FileHandler {
	return &FileHandler{
		files:         files,
		conversations: conversations,
		storage:       store,
		maxFileSize:   20 * 1024 * 1024, // 20MB
		allowedMimeTypes: map[string]bool{
			"application/pdf": true,
			"image/png":       true,
			"image/jpeg":      true,
			"image/webp":      true,
		},
	}
}

// RegisterRoutes mounts the file routes under /api
func (h *FileHandler) RegisterRoutes(api *gin.RouterGroup) {
	files := api.Group("/files")
	files.POST("/upload", h.UploadFile)
	files.GET("/:id", h.GetFile)
	files.GET("/:id/content", h.DownloadFile)
}

// UploadFile handles POST /api/files/upload
func (h *FileHandler) UploadFile(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var conversationID *uuid.UUID
	if raw := c.PostForm("conversation_id"); raw != "" {
		cid, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_CONVERSATION_ID", "Invalid conversation_id format")
			return
		}
		conv, err := h.conversations.GetByID(c.Request.Context(), cid)
		if err != nil || conv.OwnerID != owner {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
			return
		}
		conversationID = &cid
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "File is required")
		return
	}

	if fileHeader.Size > h.maxFileSize {
		respondError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = storage.ContentType(fileHeader.Filename)
	}
	// Drop parameters such as "; charset=utf-8"
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !h.allowedMimeTypes[mimeType] && !strings.HasPrefix(mimeType, "text/") {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE",
			"File type not allowed. Allowed types: PDF, TXT, MD, PNG, JPEG, WEBP")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "FILE_OPEN_ERROR", "Failed to read uploaded file")
		return
	}
	defer file.Close()

	record := &models.File{
		ID:             uuid.New(),
		UserID:         owner,
		ConversationID: conversationID,
		Filename:       fileHeader.Filename,
		MimeType:       mimeType,
		Size:           fileHeader.Size,
	}

	record.StoragePath, err = h.storage.Upload(c.Request.Context(), storage.Object{
		ID:          record.ID,
		OwnerID:     owner,
		Filename:    record.Filename,
		ContentType: mimeType,
	}, file)
	if err != nil {
		log.Printf("Error: failed to upload file %s: %v", record.ID, err)
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store file")
		return
	}

	if err := h.files.Create(c.Request.Context(), record); err != nil {
		if delErr := h.storage.Delete(c.Request.Context(), record.StoragePath); delErr != nil {
			log.Printf("Warning: failed to clean up stored file %s: %v", record.StoragePath, delErr)
		}
		log.Printf("Error: failed to save file record %s: %v", record.ID, err)
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save file record")
		return
	}

	respondOK(c, http.StatusCreated, fileMetadata(record))
}

// GetFile handles GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	record, ok := h.ownedFile(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, fileMetadata(record))
}

// DownloadFile handles GET /api/files/:id/content
func (h *FileHandler) DownloadFile(c *gin.Context) {
	record, ok := h.ownedFile(c)
	if !ok {
		return
	}

	reader, err := h.storage.Download(c.Request.Context(), record.StoragePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "File not found")
		return
	}
	if err != nil {
		log.Printf("Error: failed to download file %s: %v", record.ID, err)
		respondError(c, http.StatusInternalServerError, "DOWNLOAD_FAILED", "Failed to download file")
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, record.Size, record.MimeType, reader, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", record.Filename),
	})
}

func (h *FileHandler) ownedFile(c *gin.Context) (*models.File, bool) {
	owner, ok := ownerID(c)
	if !ok {
		return nil, false
	}
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}

	record, err := h.files.GetByID(c.Request.Context(), id)
	if err != nil || record.UserID != owner {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.Printf("Error: failed to load file %s: %v", id, err)
			respondError(c, http.StatusInternalServerError, "PROCESSING_ERROR", genericErrorMessage)
			return nil, false
		}
		respondError(c, http.StatusNotFound, "NOT_FOUND", "File not found")
		return nil, false
	}
	return record, true
}

func fileMetadata(f *models.File) gin.H {
	return gin.H{
		"id":              f.ID,
		"filename":        f.Filename,
		"mime_type":       f.MimeType,
		"size":            f.Size,
		"conversation_id": f.ConversationID,
		"created_at":      f.CreatedAt,
	}
}
