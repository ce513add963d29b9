package cohere

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

// echoResponse answers a serialized request with a v2 chat response that repeats
// it: one "role: text" line per message and one call per tool. v2 responses do
// not name the model.
func echoResponse(t *testing.T, wire []byte) []byte {
	t.Helper()
	req := gjson.ParseBytes(wire)
	out := `{"id":"echo","finish_reason":"TOOL_CALL","message":{"role":"assistant","content":[]}}`
	set := func(path string, v any) {
		var err error
		out, err = sjson.Set(out, path, v)
		require.NoError(t, err)
	}

	var transcript []string
	for _, m := range req.Get("messages").Array() {
		text := m.Get("content").String()
		if m.Get("content").IsArray() {
			var b strings.Builder
			for _, part := range m.Get("content.#.text").Array() {
				b.WriteString(part.String())
			}
			text = b.String()
		}
		transcript = append(transcript, m.Get("role").String()+": "+text)
	}
	set("message.content.-1", map[string]any{"type": "text", "text": strings.Join(transcript, "\n")})
	for i, tool := range req.Get("tools").Array() {
		set(fmt.Sprintf("message.tool_calls.%d", i), map[string]any{
			"id":       fmt.Sprintf("c%d", i),
			"type":     "function",
			"function": map[string]any{"name": tool.Get("function.name").String(), "arguments": "{}"},
		})
	}
	return []byte(out)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	a := Must()
	req, err := chat.NewRequest("command-a-03-2025", chat.WithTools(chat.Tool{Name: "get_weather"}, chat.Tool{Name: "get_time"}))
	require.NoError(t, err)
	eff := req.With(chat.Override{Messages: []messages.Message{
		messages.System("be brief"),
		messages.User("q1"),
		messages.Assistant("a1"),
		messages.User("q2"),
	}})
	body, err := a.SerializeRequest(eff)
	require.NoError(t, err)
	assert.Equal(t, "command-a-03-2025", gjson.GetBytes(body.Body, "model").String())

	res := a.ParseResult(echoResponse(t, body.Body))
	require.NotNil(t, res)
	c, ok := res.First()
	require.True(t, ok)
	assert.Equal(t, "system: be brief\nuser: q1\nassistant: a1\nuser: q2", c.Message.Text())
	require.Len(t, c.Message.ToolCalls, 2)
	assert.Equal(t, "get_weather", c.Message.ToolCalls[0].Function.Name)
	assert.Equal(t, "get_time", c.Message.ToolCalls[1].Function.Name)
	assert.Equal(t, chat.FinishToolCalls, c.FinishReason)
}
