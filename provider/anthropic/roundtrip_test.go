package anthropic

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

// echoMessage answers a serialized request with a message that repeats it: the
// requested model, one "role: text" line per turn and one tool_use per tool.
func echoMessage(t *testing.T, wire []byte) []byte {
	t.Helper()
	req := gjson.ParseBytes(wire)
	out := `{"id":"msg_echo","type":"message","role":"assistant","content":[],"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`
	set := func(path string, v any) {
		var err error
		out, err = sjson.Set(out, path, v)
		require.NoError(t, err)
	}

	var transcript []string
	for _, s := range req.Get("system").Array() {
		transcript = append(transcript, "system: "+s.Get("text").String())
	}
	for _, m := range req.Get("messages").Array() {
		var text strings.Builder
		for _, b := range m.Get("content.#.text").Array() {
			text.WriteString(b.String())
		}
		transcript = append(transcript, m.Get("role").String()+": "+text.String())
	}
	set("model", req.Get("model").String())
	set("content.-1", map[string]any{"type": "text", "text": strings.Join(transcript, "\n")})
	for i, tool := range req.Get("tools").Array() {
		set("content.-1", map[string]any{
			"type":  "tool_use",
			"id":    fmt.Sprintf("toolu_%d", i),
			"name":  tool.Get("name").String(),
			"input": map[string]any{},
		})
	}
	return []byte(out)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	a := Must()
	req, err := chat.NewRequest("claude-sonnet-4-5", chat.WithTools(chat.Tool{Name: "get_weather"}, chat.Tool{Name: "get_time"}))
	require.NoError(t, err)
	body, err := a.SerializeRequest(req.With(chat.Override{Messages: []messages.Message{
		messages.System("be brief"),
		messages.User("q1"),
		messages.Assistant("a1"),
		messages.User("q2"),
	}}))
	require.NoError(t, err)

	res := a.ParseResult(echoMessage(t, body.Body))
	require.NotNil(t, res)
	assert.Equal(t, "claude-sonnet-4-5", res.Model)
	c, ok := res.First()
	require.True(t, ok)
	assert.Equal(t, "system: be brief\nuser: q1\nassistant: a1\nuser: q2", c.Message.Text())
	require.Len(t, c.Message.ToolCalls, 2)
	assert.Equal(t, "get_weather", c.Message.ToolCalls[0].Function.Name)
	assert.Equal(t, "get_time", c.Message.ToolCalls[1].Function.Name)
	assert.Equal(t, chat.FinishToolCalls, c.FinishReason)
}
