package storage

import (
	"secretary-backend/internal/model"
)

// Store persists session transcripts. Implementations must treat missing or
// corrupt data as an empty transcript, never as an error: the UI always gets
// a usable session back.
type Store interface {
	Load(sessionID string) ([]model.ChatMessage, error)
	Save(sessionID string, messages []model.ChatMessage) error
	Clear(sessionID string) error

	Init() error
	Close() error
}
