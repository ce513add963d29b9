package shorttermmemory

import (
	"testing"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator(t *testing.T) {
	t.Run("NewAggregator", func(t *testing.T) {
		agg := New()
		assert.NotEqual(t, uuid.Nil, agg.ID(), "should have valid ID")
		assert.Empty(t, agg.messages, "should have empty messages")
		assert.Equal(t, chat.Usage{}, agg.usage, "should have zero usage")
	})

	t.Run("basic operations", func(t *testing.T) {
		t.Run("Messages returns copy of messages", func(t *testing.T) {
			agg := New()
			agg.Add(messages.User("message 1"))
			agg.Add(messages.User("message 2"))

			msgs := agg.Messages()
			assert.Equal(t, 2, len(msgs))

			msgs[0].Content = "changed"
			msgs = append(msgs, messages.User("message 3"))
			assert.Equal(t, 2, agg.Len(), "original aggregator should be unchanged")
			assert.Equal(t, 3, len(msgs), "returned slice should be modified")
			first, _ := agg.Get(msgs[0].ID)
			assert.Equal(t, "message 1", first.Content)
		})

		t.Run("Add assigns missing ids", func(t *testing.T) {
			agg := New()
			m := agg.Add(messages.Message{Role: messages.RoleUser, Content: "x"})
			assert.NotEqual(t, uuid.Nil, m.ID)
		})

		t.Run("Prepend puts message first", func(t *testing.T) {
			agg := New()
			agg.Add(messages.User("hello"))
			agg.Prepend(messages.System("be brief"))
			msgs := agg.Messages()
			require.Len(t, msgs, 2)
			assert.Equal(t, messages.RoleSystem, msgs[0].Role)
		})
	})

	t.Run("edit and remove by id", func(t *testing.T) {
		agg := New()
		u := agg.Add(messages.User("first"))
		a := agg.Add(messages.Assistant("second"))

		require.NoError(t, agg.Edit(u.ID, func(m *messages.Message) {
			m.Content = "edited"
			m.ID = uuid.New()
		}))
		got, ok := agg.Get(u.ID)
		require.True(t, ok, "id survives edits")
		assert.Equal(t, "edited", got.Content)

		require.NoError(t, agg.Remove(a.ID))
		assert.Equal(t, 1, agg.Len())
		assert.ErrorIs(t, agg.Remove(a.ID), ErrMessageNotFound)
		assert.ErrorIs(t, agg.Edit(a.ID, func(*messages.Message) {}), ErrMessageNotFound)
	})

	t.Run("usage attribution", func(t *testing.T) {
		agg := New()
		u := agg.Add(messages.User("q"))
		agg.Add(messages.Assistant("a"))
		agg.AttributeUsage(42)

		got, _ := agg.Get(u.ID)
		assert.Equal(t, int64(42), got.Tokens)
	})

	t.Run("checkpoint and restore", func(t *testing.T) {
		agg := New()
		u := agg.Add(messages.User("q"))
		cp := agg.Checkpoint()

		agg.AttributeUsage(7)
		agg.Add(messages.Assistant("a"))
		agg.AddUsage(&chat.Usage{TotalTokens: 5})
		agg.Restore(cp)

		assert.Equal(t, 1, agg.Len())
		assert.Zero(t, agg.Usage())
		got, _ := agg.Get(u.ID)
		assert.Zero(t, got.Tokens, "edits after the checkpoint are rolled back")
	})

	t.Run("checkpoint is isolated from later edits", func(t *testing.T) {
		agg := New()
		u := agg.Add(messages.User("q"))
		cp := agg.Checkpoint()

		require.NoError(t, agg.Edit(u.ID, func(m *messages.Message) { m.Content = "edited" }))
		msgs := cp.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "q", msgs[0].Content)
	})

	t.Run("checkpoint merge into", func(t *testing.T) {
		src := New()
		src.Add(messages.User("q"))
		src.AddUsage(&chat.Usage{TotalTokens: 3})
		cp := src.Checkpoint()

		target := New()
		cp.MergeInto(target)
		assert.Equal(t, 1, target.Len())
		assert.Equal(t, src.ID(), target.ID())
		assert.Equal(t, int64(3), target.Usage().TotalTokens)
	})

	t.Run("checkpoint from saved state", func(t *testing.T) {
		id := uuid.New()
		saved := []messages.Message{messages.User("q"), messages.Assistant("a")}
		cp := NewCheckpoint(id, saved, chat.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6})
		saved[0].Content = "changed"

		agg := New()
		cp.MergeInto(agg)
		assert.Equal(t, id, agg.ID())
		assert.Equal(t, int64(6), agg.Usage().TotalTokens)
		msgs := agg.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "q", msgs[0].Content)

		fresh := NewCheckpoint(uuid.Nil, nil, chat.Usage{})
		assert.NotEqual(t, uuid.Nil, fresh.ID())
	})

	t.Run("clear", func(t *testing.T) {
		agg := New()
		agg.Add(messages.User("q"))
		agg.AddUsage(&chat.Usage{TotalTokens: 3})
		agg.Clear()
		assert.Equal(t, 0, agg.Len())
		assert.Zero(t, agg.Usage())
	})
}
