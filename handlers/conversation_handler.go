package handlers

import (
	"net/http"
	"strconv"

	"lexcounsel-backend/models"
	"lexcounsel-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConversationHandler handles HTTP requests for conversations and chat turns
type ConversationHandler struct {
	conversations *service.ConversationService
	chat          *service.ChatService
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations *service.ConversationService, chat *service.ChatService) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		chat:          chat,
	}
}

// RegisterRoutes mounts the conversation routes under /api
func (h *ConversationHandler) RegisterRoutes(api *gin.RouterGroup) {
	conv := api.Group("/conversations")
	conv.POST("", h.CreateConversation)
	conv.GET("", h.ListConversations)
	conv.GET("/:id", h.GetConversation)
	conv.POST("/:id/messages", h.SendMessage)
	conv.GET("/:id/knowledge", h.ListKnowledge)
	conv.GET("/:id/timeline", h.ListTimeline)
	conv.GET("/:id/proposals", h.ListProposals)
	conv.POST("/:id/proposals/:token/confirm", h.ConfirmProposal)
}

// CreateConversationRequest represents the request body for creating a conversation
type CreateConversationRequest struct {
	Title   string `json:"title"`
	Persona string `json:"persona"`
}

// CreateConversation handles POST /api/conversations
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	}

	conv, err := h.conversations.CreateConversation(c.Request.Context(), service.CreateConversationRequest{
		OwnerID: owner,
		Title:   req.Title,
		Persona: models.Persona(req.Persona),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, conv)
}

// ListConversations handles GET /api/conversations
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	convs, err := h.conversations.ListConversations(c.Request.Context(), owner, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	respondOK(c, http.StatusOK, convs)
}

// GetConversation handles GET /api/conversations/:id
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	owner, id, ok := ownerAndConversation(c)
	if !ok {
		return
	}

	conv, err := h.conversations.GetConversation(c.Request.Context(), owner, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, conv)
}

// SendMessageRequest represents the request body for a chat message
type SendMessageRequest struct {
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachment_ids"`
	Persona       string   `json:"persona"`
}

// SendMessage handles POST /api/conversations/:id/messages
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	owner, id, ok := ownerAndConversation(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	attachments := make([]uuid.UUID, 0, len(req.AttachmentIDs))
	for _, raw := range req.AttachmentIDs {
		fid, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_ATTACHMENT_ID", "Invalid attachment id: "+raw)
			return
		}
		attachments = append(attachments, fid)
	}

	result, err := h.chat.SendMessage(c.Request.Context(), service.SendMessageRequest{
		ConversationID: id,
		OwnerID:        owner,
		Content:        req.Content,
		AttachmentIDs:  attachments,
		Persona:        models.Persona(req.Persona),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	timeline := result.Timeline
	if timeline == nil {
		timeline = []models.TimelineEvent{}
	}
	proposals := result.PendingProposals
	if proposals == nil {
		proposals = []models.KnowledgeProposal{}
	}
	respondOK(c, http.StatusOK, gin.H{
		"message":           result.Turn,
		"timeline_events":   timeline,
		"pending_proposals": proposals,
		"iterations":        result.Iterations,
		"cap_reached":       result.CapReached,
	})
}

// ListKnowledge handles GET /api/conversations/:id/knowledge
func (h *ConversationHandler) ListKnowledge(c *gin.Context) {
	owner, id, ok := ownerAndConversation(c)
	if !ok {
		return
	}
	items, err := h.conversations.ListKnowledge(c.Request.Context(), owner, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if items == nil {
		items = []models.KnowledgeItem{}
	}
	respondOK(c, http.StatusOK, items)
}

// ListTimeline handles GET /api/conversations/:id/timeline
func (h *ConversationHandler) ListTimeline(c *gin.Context) {
	owner, id, ok := ownerAndConversation(c)
	if !ok {
		return
	}
	events, err := h.conversations.ListTimeline(c.Request.Context(), owner, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if events == nil {
		events = []models.TimelineEvent{}
	}
	respondOK(c, http.StatusOK, events)
}

// ListProposals handles GET /api/conversations/:id/proposals
func (h *ConversationHandler) ListProposals(c *gin.Context) {
	owner, id, ok := ownerAndConversation(c)
	if !ok {
		return
	}
	proposals, err := h.conversations.ListProposals(c.Request.Context(), owner, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if proposals == nil {
		proposals = []models.KnowledgeProposal{}
	}
	respondOK(c, http.StatusOK, proposals)
}

// ConfirmProposal handles POST /api/conversations/:id/proposals/:token/confirm
func (h *ConversationHandler) ConfirmProposal(c *gin.Context) {
	owner, id, ok := ownerAndConversation(c)
	if !ok {
		return
	}
	p, err := h.conversations.ConfirmProposal(c.Request.Context(), owner, id, c.Param("token"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func ownerAndConversation(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	owner, ok := ownerID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := pathID(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return owner, id, true
}
