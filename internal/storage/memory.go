package storage

import (
	"sync"

	"secretary-backend/internal/model"
)

type MemoryStore struct {
	transcripts map[string][]model.ChatMessage
	mu          sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transcripts: make(map[string][]model.ChatMessage),
	}
}

func (m *MemoryStore) Init() error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) Load(sessionID string) ([]model.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.transcripts[sessionID]
	if !exists {
		return []model.ChatMessage{}, nil
	}

	messages := make([]model.ChatMessage, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (m *MemoryStore) Save(sessionID string, messages []model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]model.ChatMessage, len(messages))
	copy(stored, messages)
	m.transcripts[sessionID] = stored
	return nil
}

func (m *MemoryStore) Clear(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.transcripts, sessionID)
	return nil
}
