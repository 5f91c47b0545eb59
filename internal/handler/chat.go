package handler

import (
	"errors"
	"net/http"

	"secretary-backend/internal/model"
	"secretary-backend/internal/service"
	"secretary-backend/internal/utils"
	"secretary-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chat: chat,
	}
}

// SendMessage relays one user message and re-streams the chat events to the
// browser as SSE. The "accepted" event fires before any backend I/O so the
// UI can clear its input field immediately.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sse *utils.SSEWriter
	events, err := h.chat.Send(req.SessionID, req.Message, req.Stream, func() {
		sse = utils.NewSSEWriter(c.Writer)
		sse.WriteJSON("accepted", gin.H{"session_id": req.SessionID})
	})
	if errors.Is(err, service.ErrStreamBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		// Empty input is a silent no-op.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	h.relayEvents(sse, events)
}

// SendAnalysis relays an SDG analysis request on its own stream.
func (h *ChatHandler) SendAnalysis(c *gin.Context) {
	var req model.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sse *utils.SSEWriter
	events, err := h.chat.SendAnalysis(req.SessionID, req.SDGs, req.Message, req.ContextLabel)
	if errors.Is(err, service.ErrStreamBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		// Missing text or topics drops the request silently.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	sse = utils.NewSSEWriter(c.Writer)
	h.relayEvents(sse, events)
}

func (h *ChatHandler) relayEvents(sse *utils.SSEWriter, events <-chan model.ChatEvent) {
	for ev := range events {
		if err := sse.WriteJSON(ev.Type, ev); err != nil {
			logger.Warnf("Failed to write SSE event: %v", err)
			// Keep draining so the service goroutine can finish.
			for range events {
			}
			return
		}
	}
	sse.Close()
}

func (h *ChatHandler) Stop(c *gin.Context) {
	var req model.StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.chat.Stop(req.SessionID)

	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	sessionID := c.Param("session_id")

	c.JSON(http.StatusOK, gin.H{
		"session_id":    sessionID,
		"messages":      h.chat.Messages(sessionID),
		"streaming":     h.chat.Streaming(sessionID),
		"policy_reason": h.chat.PolicyReason(sessionID),
	})
}

func (h *ChatHandler) ConfirmMessage(c *gin.Context) {
	messageID := c.Param("message_id")

	var req model.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.chat.ConfirmMessage(req.SessionID, messageID, req.Confirmed); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Confirmation updated"})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := h.chat.ClearSession(sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session cleared"})
}
