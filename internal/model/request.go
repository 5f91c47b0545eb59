package model

// API requests accepted from the UI.

type SendMessageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message"`
	Stream    bool   `json:"stream"`
}

type AnalysisRequest struct {
	SessionID    string   `json:"session_id" binding:"required"`
	SDGs         []string `json:"sdgs"`
	Message      string   `json:"message"`
	ContextLabel string   `json:"context_label"`
}

type StopRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type ConfirmRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Confirmed bool   `json:"confirmed"`
}

type StartTaskRequest struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
}

type PublishTaskRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	TaskID    string `json:"task_id" binding:"required"`
	FileID    string `json:"file_id" binding:"required"`
}

// Requests sent to the backend service.

type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model    string              `json:"model"`
	Stream   bool                `json:"stream"`
	Messages []CompletionMessage `json:"messages"`
}

// AnalysisCompletionRequest carries the SDG topic ids as a comma separated
// string, matching the backend contract.
type AnalysisCompletionRequest struct {
	SDGs        string `json:"sdgs"`
	Model       string `json:"model"`
	Stream      bool   `json:"stream"`
	UserMessage string `json:"userMessage"`
}

type PublishRequest struct {
	FileID string `json:"file_id"`
}
