package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/casualjim/confab"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	"github.com/casualjim/confab/store/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopTransport struct{}

func (nopTransport) Submit(context.Context, provider.WireRequest) (provider.Response, error) {
	return provider.Response{}, nil
}

func (nopTransport) SubmitStreaming(context.Context, provider.WireRequest) (provider.Frames, error) {
	return func(func([]byte, error) bool) {}, nil
}

func TestSessionsCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "confab.db")
	store, err := sqlite.Open(db)
	require.NoError(t, err)

	ep, err := confab.NewEndpoint(provider.Ollama, nopTransport{})
	require.NoError(t, err)
	conv, err := confab.NewConversation(ep, "llama3.2", confab.WithMessages(messages.User("hi"), messages.Assistant("hello")))
	require.NoError(t, err)
	sess := sqlite.SessionOf(uuid.Nil, conv)
	require.NoError(t, store.Save(context.Background(), sess))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"--db", db, "sessions", "list"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), sess.ID.String())
	assert.Contains(t, out.String(), "llama3.2")

	root = newRootCommand()
	root.SetArgs([]string{"--db", db, "sessions", "delete", sess.ID.String()})
	require.NoError(t, root.Execute())

	root = newRootCommand()
	root.SetArgs([]string{"--db", db, "sessions", "delete", sess.ID.String()})
	assert.ErrorIs(t, root.Execute(), sqlite.ErrNotFound)

	root = newRootCommand()
	root.SetArgs([]string{"--db", db, "sessions", "delete", "not-a-uuid"})
	assert.Error(t, root.Execute())
}

func TestCurrentTime(t *testing.T) {
	box := builtinTools()
	assert.Equal(t, []string{"current_time"}, box.Names())

	now, err := currentTime("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", now.Location().String())

	_, err = currentTime("Not/AZone")
	assert.Error(t, err)
}
