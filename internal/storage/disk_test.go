package storage

import (
	"os"
	"path/filepath"
	"testing"

	"secretary-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiskStore(t *testing.T) *DiskStore {
	t.Helper()

	store := NewDiskStore(t.TempDir())
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDiskStoreRoundTrip(t *testing.T) {
	store := newTestDiskStore(t)

	messages := []model.ChatMessage{
		{ID: "1", Sender: model.SenderUser, Text: "hello", Time: "10:30"},
		{ID: "2", Sender: model.SenderAI, Text: "hi", Type: model.MessageTypeChart, Confirmed: true},
	}
	require.NoError(t, store.Save("s1", messages))

	loaded, err := store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, messages, loaded)
}

func TestDiskStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store := NewDiskStore(dir)
	require.NoError(t, store.Init())
	require.NoError(t, store.Save("s1", []model.ChatMessage{{ID: "1", Text: "persisted"}}))
	require.NoError(t, store.Close())

	reopened := NewDiskStore(dir)
	require.NoError(t, reopened.Init())
	defer reopened.Close()

	loaded, err := reopened.Load("s1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "persisted", loaded[0].Text)
}

func TestDiskStoreCorruptFileYieldsEmptyTranscript(t *testing.T) {
	dir := t.TempDir()

	store := NewDiskStore(dir)
	require.NoError(t, store.Init())
	defer store.Close()

	path := store.transcriptPath("broken")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	loaded, err := store.Load("broken")
	require.NoError(t, err, "corrupt data must degrade to an empty transcript, not an error")
	assert.Empty(t, loaded)
}

func TestDiskStoreSanitizesSessionIDs(t *testing.T) {
	store := newTestDiskStore(t)

	require.NoError(t, store.Save("../weird/../id", []model.ChatMessage{{ID: "1", Text: "x"}}))

	loaded, err := store.Load("../weird/../id")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "x", loaded[0].Text)
}

func TestDiskStoreClearRemovesFile(t *testing.T) {
	store := newTestDiskStore(t)

	require.NoError(t, store.Save("s1", []model.ChatMessage{{ID: "1", Text: "x"}}))
	require.NoError(t, store.Clear("s1"))

	loaded, err := store.Load("s1")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, store.Clear("s1"))
}
