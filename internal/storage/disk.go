package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"secretary-backend/internal/model"
	"secretary-backend/pkg/logger"
)

// DiskStore keeps one JSON transcript file per session under dataDir.
type DiskStore struct {
	dataDir string
	mu      sync.RWMutex
	cache   map[string][]model.ChatMessage
}

func NewDiskStore(dataDir string) *DiskStore {
	return &DiskStore{
		dataDir: dataDir,
		cache:   make(map[string][]model.ChatMessage),
	}
}

func (d *DiskStore) Init() error {
	if err := os.MkdirAll(filepath.Join(d.dataDir, "transcripts"), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk store initialized")
	return nil
}

func (d *DiskStore) Close() error {
	return nil
}

func (d *DiskStore) Load(sessionID string) ([]model.ChatMessage, error) {
	d.mu.RLock()
	if cached, ok := d.cache[sessionID]; ok {
		messages := make([]model.ChatMessage, len(cached))
		copy(messages, cached)
		d.mu.RUnlock()
		return messages, nil
	}
	d.mu.RUnlock()

	data, err := os.ReadFile(d.transcriptPath(sessionID))
	if err != nil {
		// Missing file is a fresh session.
		return []model.ChatMessage{}, nil
	}

	var messages []model.ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		// Corrupt data falls back to an empty transcript instead of failing.
		logger.Warnf("Transcript for session %s is unreadable, starting empty: %v", sessionID, err)
		return []model.ChatMessage{}, nil
	}

	d.mu.Lock()
	d.cache[sessionID] = messages
	d.mu.Unlock()

	result := make([]model.ChatMessage, len(messages))
	copy(result, messages)
	return result, nil
}

func (d *DiskStore) Save(sessionID string, messages []model.ChatMessage) error {
	stored := make([]model.ChatMessage, len(messages))
	copy(stored, messages)

	d.mu.Lock()
	d.cache[sessionID] = stored
	d.mu.Unlock()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := os.WriteFile(d.transcriptPath(sessionID), data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	return nil
}

func (d *DiskStore) Clear(sessionID string) error {
	d.mu.Lock()
	delete(d.cache, sessionID)
	d.mu.Unlock()

	if err := os.Remove(d.transcriptPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	return nil
}

func (d *DiskStore) transcriptPath(sessionID string) string {
	// Session ids come from the UI; keep them from escaping the data dir.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(sessionID)
	return filepath.Join(d.dataDir, "transcripts", safe+".json")
}
