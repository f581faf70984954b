package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kindred/internal/middleware"
	"kindred/internal/models"
	"kindred/internal/realtime"
	"kindred/internal/services"
)

type ChatHandler struct {
	service services.ChatService
	hub     *realtime.Hub
}

func NewChatHandler(service services.ChatService, hub *realtime.Hub) *ChatHandler {
	return &ChatHandler{service: service, hub: hub}
}

// ListChats returns the user's chats, most recently active first, each
// annotated with the caller's unread count.
func (h *ChatHandler) ListChats(c *gin.Context) {
	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	skip, take := pagination(c)

	chats, err := h.service.ListChats(c.Request.Context(), callerID, c.Param("user_id"), skip, take)
	if err != nil {
		respondError(c, err)
		return
	}
	if chats == nil {
		chats = []*models.ChatSummary{}
	}
	c.JSON(http.StatusOK, chats)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	skip, take := pagination(c)

	messages, err := h.service.ListMessages(c.Request.Context(), callerID, chatID, skip, take)
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) StartChat(c *gin.Context) {
	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var chat models.StartChat
	if err := c.ShouldBindJSON(&chat); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatID, err := h.service.StartChat(c.Request.Context(), callerID, &chat)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var msg models.ChatMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SendMessage(c.Request.Context(), callerID, &msg); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), callerID, chatID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) RenameChat(c *gin.Context) {
	var rename models.SetChatName
	if err := c.ShouldBindJSON(&rename); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rename.ChatID == uuid.Nil || rename.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id and name are required"})
		return
	}

	if err := h.service.RenameChat(c.Request.Context(), &rename); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FindExistingChat answers with the chat whose recipient set matches
// the queried user ids exactly, if the caller is among them.
func (h *ChatHandler) FindExistingChat(c *gin.Context) {
	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	userIDs := c.QueryArray("user_ids")
	if len(userIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_ids are required"})
		return
	}

	chatID, err := h.service.FindExistingChat(c.Request.Context(), callerID, userIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID})
}

// Stream upgrades to a websocket and registers the connection for the
// caller, so pushes reach all of their devices. Incoming frames are
// treated as send-message requests.
func (h *ChatHandler) Stream(c *gin.Context) {
	callerID, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conn, err := realtime.Upgrade(c.Writer, c.Request)
	if err != nil {
		return
	}
	h.hub.Register(callerID, conn)
	defer h.hub.Unregister(callerID, conn)

	for {
		var incoming models.ChatMessage
		if err := conn.ReadJSON(&incoming); err != nil {
			break
		}
		if incoming.ID == uuid.Nil {
			continue
		}
		if err := h.service.SendMessage(c.Request.Context(), callerID, &incoming); err != nil {
			_ = conn.WriteJSON(gin.H{"error": err.Error()})
		}
	}
}

// respondError maps pipeline rejections onto the HTTP surface. Anything
// unrecognized is an infrastructure failure.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrNotChatMember),
		errors.Is(err, services.ErrSenderMismatch):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrDuplicateChat),
		errors.Is(err, services.ErrDuplicateMessage),
		errors.Is(err, services.ErrNothingUnread):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
