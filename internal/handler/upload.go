package handler

import (
	"net/http"

	"secretary-backend/internal/model"
	"secretary-backend/internal/service"
	"secretary-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	tracker   *service.UploadTracker
	publisher *service.PublishClient
	chat      *service.ChatService
}

func NewUploadHandler(tracker *service.UploadTracker, publisher *service.PublishClient, chat *service.ChatService) *UploadHandler {
	return &UploadHandler{
		tracker:   tracker,
		publisher: publisher,
		chat:      chat,
	}
}

func (h *UploadHandler) StartTask(c *gin.Context) {
	var req model.StartTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := h.tracker.Start(model.UploadTask{
		ID:   req.ID,
		Name: req.Name,
	})

	c.JSON(http.StatusOK, gin.H{"task_id": id})
}

func (h *UploadHandler) ListTasks(c *gin.Context) {
	tasks := h.tracker.Tasks()

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

func (h *UploadHandler) CancelTask(c *gin.Context) {
	h.tracker.Cancel(c.Param("id"))

	c.JSON(http.StatusOK, gin.H{"message": "Task cancelled"})
}

// Publish triggers the one-click CMS publish pipeline for a processed file
// and feeds the outcome back into the tracker.
func (h *UploadHandler) Publish(c *gin.Context) {
	var req model.PublishTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uploading := model.StageCMSUpload
	h.tracker.UpdateByID(req.TaskID, model.TaskUpdate{Stage: &uploading})

	result, err := h.publisher.Publish(c.Request.Context(), req.SessionID, req.FileID)
	if err != nil {
		logger.Errorf("Publish failed for task %s: %v", req.TaskID, err)
		failed := model.StageError
		msg := err.Error()
		h.tracker.UpdateByID(req.TaskID, model.TaskUpdate{Stage: &failed, Error: &msg})
		c.JSON(http.StatusBadGateway, gin.H{"error": msg})
		return
	}

	done := model.StageDone
	progress := 1.0
	link := result.Link()
	h.tracker.UpdateByID(req.TaskID, model.TaskUpdate{
		Stage:    &done,
		Progress: &progress,
		CMSLink:  &link,
		UUID:     &result.UUID,
	})

	// Let the secretary announce the published content in the conversation.
	if task, ok := h.tracker.Get(req.TaskID); ok {
		h.chat.AppendMessage(req.SessionID, model.ChatMessage{
			Sender: model.SenderAI,
			Type:   model.MessageTypeChart,
			Text:   task.Name + " has been published: " + link,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"uuid":     result.UUID,
		"cms_link": link,
	})
}
