package handlers

import (
	"errors"
	"log"
	"net/http"

	"lexcounsel-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIDHeader carries the caller identity set by the upstream auth gateway
const UserIDHeader = "X-User-ID"

const genericErrorMessage = "An error occurred while processing the request. Please try again."

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps service errors to HTTP responses. Unclassified
// errors are logged and reported with a generic message.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrModelUnavailable):
		respondError(c, http.StatusPreconditionFailed, "PRECONDITION_FAILED", "The assistant is not available right now.")
	case errors.Is(err, service.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, service.ErrConversationNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrAttachmentNotFound):
		respondError(c, http.StatusNotFound, "ATTACHMENT_NOT_FOUND", "Attachment not found")
	case errors.Is(err, service.ErrProposalNotFound):
		respondError(c, http.StatusNotFound, "PROPOSAL_NOT_FOUND", "Proposal not found")
	case errors.Is(err, service.ErrProposalNotConfirmable):
		respondError(c, http.StatusConflict, "PROPOSAL_NOT_PENDING", "Proposal was already confirmed or used")
	default:
		log.Printf("Error: %s %s: %v", c.Request.Method, c.FullPath(), err)
		respondError(c, http.StatusInternalServerError, "PROCESSING_ERROR", genericErrorMessage)
	}
}

// ownerID reads the caller identity. It writes the error response and
// reports false when the header is missing or malformed.
func ownerID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(UserIDHeader)
	if raw == "" {
		respondError(c, http.StatusUnauthorized, "MISSING_USER_ID", UserIDHeader+" header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_USER_ID", "Invalid "+UserIDHeader+" format")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}
