package storage

import (
	"testing"

	"secretary-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Init())
	defer store.Close()

	messages := []model.ChatMessage{
		{ID: "1", Sender: model.SenderUser, Text: "hello"},
		{ID: "2", Sender: model.SenderAI, Text: "hi"},
	}
	require.NoError(t, store.Save("s1", messages))

	loaded, err := store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, messages, loaded)

	// Stored data must be isolated from later caller mutations.
	messages[0].Text = "mutated"
	loaded, err = store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", loaded[0].Text)
}

func TestMemoryStoreUnknownSessionIsEmpty(t *testing.T) {
	store := NewMemoryStore()

	loaded, err := store.Load("nope")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save("s1", []model.ChatMessage{{ID: "1", Text: "x"}}))

	require.NoError(t, store.Clear("s1"))
	loaded, err := store.Load("s1")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, store.Clear("s1"))
}
