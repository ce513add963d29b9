package ollama

import (
	"fmt"
	"strings"
	"testing"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// echoResponse answers a serialized request with a chat response that repeats it:
// the requested model, one "role: text" line per message and one call per tool.
func echoResponse(t *testing.T, wire []byte) []byte {
	t.Helper()
	req := gjson.ParseBytes(wire)
	out := `{"created_at":"2025-01-01T10:00:00Z","message":{"role":"assistant"},"done":true,"done_reason":"stop"}`
	set := func(path string, v any) {
		var err error
		out, err = sjson.Set(out, path, v)
		require.NoError(t, err)
	}

	var transcript []string
	for _, m := range req.Get("messages").Array() {
		transcript = append(transcript, m.Get("role").String()+": "+m.Get("content").String())
	}
	set("model", req.Get("model").String())
	set("message.content", strings.Join(transcript, "\n"))
	for i, tool := range req.Get("tools").Array() {
		set(fmt.Sprintf("message.tool_calls.%d", i), map[string]any{
			"function": map[string]any{"name": tool.Get("function.name").String(), "arguments": map[string]any{}},
		})
	}
	return []byte(out)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	a := Must()
	req, err := chat.NewRequest("llama3.2", chat.WithTools(chat.Tool{Name: "get_weather"}, chat.Tool{Name: "get_time"}))
	require.NoError(t, err)
	body, err := a.SerializeRequest(req.With(chat.Override{Messages: []messages.Message{
		messages.System("be brief"),
		messages.User("q1"),
		messages.Assistant("a1"),
		messages.User("q2"),
	}}))
	require.NoError(t, err)

	res := a.ParseResult(echoResponse(t, body.Body))
	require.NotNil(t, res)
	assert.Equal(t, "llama3.2", res.Model)
	c, ok := res.First()
	require.True(t, ok)
	assert.Equal(t, "system: be brief\nuser: q1\nassistant: a1\nuser: q2", c.Message.Text())
	require.Len(t, c.Message.ToolCalls, 2)
	assert.Equal(t, "get_weather", c.Message.ToolCalls[0].Function.Name)
	assert.Equal(t, "get_time", c.Message.ToolCalls[1].Function.Name)
	assert.Equal(t, chat.FinishToolCalls, c.FinishReason)
}
