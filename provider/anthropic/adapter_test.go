package anthropic

import (
	"context"
	"strings"
	"testing"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func effective(t *testing.T, msgs []messages.Message, stream bool, options ...chat.Option) *chat.Request {
	t.Helper()
	req, err := chat.NewRequest("claude-sonnet-4-5", options...)
	require.NoError(t, err)
	return req.With(chat.Override{Messages: msgs, Stream: stream})
}

func TestSerializeRequest(t *testing.T) {
	a := Must()

	t.Run("system prompt and defaults", func(t *testing.T) {
		body, err := a.SerializeRequest(effective(t, []messages.Message{
			messages.System("be brief"),
			messages.User("hello"),
		}, false))
		require.NoError(t, err)
		doc := gjson.ParseBytes(body.Body)
		assert.Equal(t, "be brief", doc.Get("system.0.text").String())
		assert.Equal(t, int64(DefaultMaxTokens), doc.Get("max_tokens").Int())
		assert.Equal(t, "user", doc.Get("messages.0.role").String())
		assert.Equal(t, "hello", doc.Get("messages.0.content.0.text").String())
		assert.Equal(t, DefaultVersion, body.Headers["anthropic-version"])
		assert.Equal(t, "https://api.anthropic.com/v1/messages", a.ResolveURL(provider.EndpointChat, ""))
	})

	t.Run("tool round trip merges tool results into a user turn", func(t *testing.T) {
		calls := messages.AssistantToolCalls(
			messages.ToolCall{ID: "toolu_1", Function: messages.FunctionData{Name: "a", Arguments: `{"x":1}`}},
			messages.ToolCall{ID: "toolu_2", Function: messages.FunctionData{Name: "b", Arguments: `not json`}},
		)
		body, err := a.SerializeRequest(effective(t, []messages.Message{
			messages.User("go"),
			calls,
			messages.ToolResult("toolu_1", "a", "one"),
			messages.ToolResult("toolu_2", "b", "two"),
		}, false, chat.WithTools(chat.Tool{Name: "a"}, chat.Tool{Name: "b"}),
			chat.WithToolChoice(chat.ToolChoice{Mode: chat.ToolChoiceRequired}),
			chat.WithParallelToolCalls(false)))
		require.NoError(t, err)
		doc := gjson.ParseBytes(body.Body)
		msgs := doc.Get("messages").Array()
		require.Len(t, msgs, 3)
		assert.Equal(t, "tool_use", msgs[1].Get("content.0.type").String())
		assert.Equal(t, int64(1), msgs[1].Get("content.0.input.x").Int())
		assert.Equal(t, "{}", msgs[1].Get("content.1.input").Raw)
		assert.Equal(t, "user", msgs[2].Get("role").String())
		assert.Len(t, msgs[2].Get("content").Array(), 2)
		assert.Equal(t, "toolu_2", msgs[2].Get("content.1.tool_use_id").String())
		assert.Equal(t, "any", doc.Get("tool_choice.type").String())
		assert.True(t, doc.Get("tool_choice.disable_parallel_tool_use").Bool())
		assert.Equal(t, "object", doc.Get("tools.0.input_schema.type").String())
	})

	t.Run("thinking replay", func(t *testing.T) {
		asst := messages.New(messages.RoleAssistant)
		asst.Parts = messages.Parts{
			messages.Reasoning("let me think", "sig-1"),
			messages.RedactedReasoning("opaque"),
			messages.Text("4"),
		}
		body, err := a.SerializeRequest(effective(t, []messages.Message{messages.User("2+2"), asst, messages.User("and 3+3?")}, false,
			chat.WithReasoningBudget(2048), chat.WithTemperature(0.3)))
		require.NoError(t, err)
		doc := gjson.ParseBytes(body.Body)
		blocks := doc.Get("messages.1.content").Array()
		require.Len(t, blocks, 3)
		assert.Equal(t, "thinking", blocks[0].Get("type").String())
		assert.Equal(t, "sig-1", blocks[0].Get("signature").String())
		assert.Equal(t, "redacted_thinking", blocks[1].Get("type").String())
		assert.Equal(t, "opaque", blocks[1].Get("data").String())
		assert.Equal(t, "4", blocks[2].Get("text").String())
		assert.Equal(t, int64(2048), doc.Get("thinking.budget_tokens").Int())
		assert.Greater(t, doc.Get("max_tokens").Int(), int64(2048))
		assert.False(t, doc.Get("temperature").Exists())
	})

	t.Run("media sources", func(t *testing.T) {
		body, err := a.SerializeRequest(effective(t, []messages.Message{
			messages.UserParts(
				messages.Image("data:image/png;base64,AAAA"),
				messages.Image("https://example.test/a.png"),
				messages.FileLink("file_abc", "application/pdf"),
			),
		}, false))
		require.NoError(t, err)
		blocks := gjson.GetBytes(body.Body, "messages.0.content").Array()
		require.Len(t, blocks, 3)
		assert.Equal(t, "base64", blocks[0].Get("source.type").String())
		assert.Equal(t, "image/png", blocks[0].Get("source.media_type").String())
		assert.Equal(t, "url", blocks[1].Get("source.type").String())
		assert.Equal(t, "file", blocks[2].Get("source.type").String())
	})

	t.Run("unsupported inputs", func(t *testing.T) {
		_, err := a.SerializeRequest(effective(t, []messages.Message{messages.UserParts(messages.Audio([]byte("x"), "wav"))}, false))
		assert.ErrorIs(t, err, provider.ErrSerialization)

		_, err = a.SerializeRequest(effective(t, []messages.Message{messages.User("x")}, false,
			chat.WithResponseFormat(chat.ResponseFormat{Type: chat.ResponseFormatJSONSchema})))
		assert.ErrorIs(t, err, provider.ErrSerialization)
	})

	t.Run("beta header", func(t *testing.T) {
		b := Must(WithBeta("a"), WithBeta("b", "a"))
		body, err := b.SerializeRequest(effective(t, []messages.Message{messages.User("x")}, true))
		require.NoError(t, err)
		assert.Equal(t, "a,b", body.Headers["anthropic-beta"])
		assert.True(t, gjson.GetBytes(body.Body, "stream").Bool())
	})
}

func TestParseResult(t *testing.T) {
	a := Must()
	res := a.ParseResult([]byte(`{
	  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
	  "content": [
	    {"type": "thinking", "thinking": "hmm", "signature": "sig"},
	    {"type": "text", "text": "Checking."},
	    {"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"location": "Prague"}}
	  ],
	  "stop_reason": "tool_use", "stop_sequence": null,
	  "usage": {"input_tokens": 10, "output_tokens": 4, "cache_read_input_tokens": 3}
	}`))
	require.NotNil(t, res)
	assert.Equal(t, "msg_1", res.ID)
	c, ok := res.First()
	require.True(t, ok)
	assert.Equal(t, chat.FinishToolCalls, c.FinishReason)
	assert.Equal(t, "Checking.", c.Message.Text())
	require.Len(t, c.Message.Reasoning(), 1)
	assert.Equal(t, "sig", c.Message.Reasoning()[0].Signature)
	require.Len(t, c.Message.ToolCalls, 1)
	assert.JSONEq(t, `{"location":"Prague"}`, c.Message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, int64(14), res.Usage.TotalTokens)
	assert.Equal(t, int64(3), res.Usage.CachedTokens)

	assert.Nil(t, a.ParseResult([]byte(`{"type":"error","error":{"message":"overloaded"}}`)))
	assert.Nil(t, a.ParseResult([]byte(`garbage`)))
}

func streamOf(events ...string) provider.Frames {
	return func(yield func([]byte, error) bool) {
		for _, e := range events {
			if !yield([]byte(strings.TrimSpace(e)), nil) {
				return
			}
		}
	}
}

func TestParseStream(t *testing.T) {
	a := Must()
	frames := streamOf(
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"stop_reason":null,"usage":{"input_tokens":12,"output_tokens":1}}}`,
		`{"type":"ping"}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"weigh"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig"}}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Hi"}}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"location\":"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"\"Prague\"}"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":9}}`,
		`{"type":"message_stop"}`,
	)

	var results []*chat.Result
	for res, err := range a.ParseStream(context.Background(), frames, nil, nil) {
		require.NoError(t, err)
		results = append(results, res)
	}
	require.Len(t, results, 8)

	assert.Equal(t, messages.RoleAssistant, results[0].Choices[0].Delta.Role)
	assert.Equal(t, int64(12), results[0].Usage.PromptTokens)

	assert.Equal(t, "weigh", results[1].Choices[0].Delta.Reasoning()[0].Content)
	assert.Equal(t, "sig", results[2].Choices[0].Delta.Reasoning()[0].Signature)
	assert.Equal(t, "Hi", results[3].Choices[0].Delta.Content)

	start := results[4].Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, "toolu_1", start.ID)
	assert.Equal(t, 2, start.Index)
	args := results[5].Choices[0].Delta.ToolCalls[0].Function.Arguments + results[6].Choices[0].Delta.ToolCalls[0].Function.Arguments
	assert.JSONEq(t, `{"location":"Prague"}`, args)

	last := results[7]
	assert.Equal(t, chat.StreamFinishData, last.Kind)
	assert.Equal(t, chat.FinishToolCalls, last.FinishReason())
	assert.Equal(t, int64(9), last.Usage.CompletionTokens)
	assert.Equal(t, "msg_1", last.ID)
}

func TestParseStream_Error(t *testing.T) {
	a := Must()
	var gotErr error
	for _, err := range a.ParseStream(context.Background(), streamOf(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`), nil, nil) {
		gotErr = err
	}
	require.Error(t, gotErr)
	assert.ErrorIs(t, gotErr, provider.ErrUpstream)
	assert.Contains(t, gotErr.Error(), "Overloaded")
}

func TestFinishReason(t *testing.T) {
	assert.Equal(t, chat.FinishEndTurn, FinishReason("end_turn"))
	assert.Equal(t, chat.FinishLength, FinishReason("max_tokens"))
	assert.Equal(t, chat.FinishStopSequence, FinishReason("stop_sequence"))
	assert.Equal(t, chat.FinishContentFilter, FinishReason("refusal"))
	assert.Equal(t, chat.FinishOther, FinishReason("something_new"))
}
