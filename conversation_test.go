package confab

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	"github.com/casualjim/confab/provider/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// scripted is a provider.Transport that replays canned bodies and frames.
type scripted struct {
	mu       sync.Mutex
	requests []provider.WireRequest

	body      []byte
	submitErr error

	frames    []string
	streamErr error
	// beforeFrame runs before frame i is handed out.
	beforeFrame func(i int)
}

func (s *scripted) record(req provider.WireRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

func (s *scripted) last() provider.WireRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func (s *scripted) Submit(ctx context.Context, req provider.WireRequest) (provider.Response, error) {
	s.record(req)
	if err := ctx.Err(); err != nil {
		return provider.Response{}, provider.ContextError(req.Provider, err)
	}
	if s.submitErr != nil {
		return provider.Response{}, s.submitErr
	}
	return provider.Response{StatusCode: 200, Body: s.body}, nil
}

func (s *scripted) SubmitStreaming(ctx context.Context, req provider.WireRequest) (provider.Frames, error) {
	s.record(req)
	if err := ctx.Err(); err != nil {
		return nil, provider.ContextError(req.Provider, err)
	}
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	var seq iter.Seq2[[]byte, error] = func(yield func([]byte, error) bool) {
		for i, f := range s.frames {
			if s.beforeFrame != nil {
				s.beforeFrame(i)
			}
			if !yield([]byte(f), nil) {
				return
			}
		}
		if s.streamErr != nil {
			yield(nil, s.streamErr)
		}
	}
	return seq, nil
}

func newTestConversation(t *testing.T, tr provider.Transport, options ...ConversationOption) *Conversation {
	t.Helper()
	ep, err := NewEndpoint(provider.OpenAI, tr)
	require.NoError(t, err)
	conv, err := NewConversation(ep, "gpt-4o-mini", options...)
	require.NoError(t, err)
	return conv
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "Prague"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 2}
}`

func TestGetResponse(t *testing.T) {
	tr := &scripted{body: []byte(completionBody)}
	conv := newTestConversation(t, tr)
	user := conv.AppendUserInput("What is the capital of the Czech Republic?")

	res, err := conv.GetResponse(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, chat.FinishEndTurn, res.FinishReason())
	require.NotNil(t, res.Usage)
	assert.EqualValues(t, 12, res.Usage.TotalTokens)
	assert.EqualValues(t, 12, conv.Usage().TotalTokens)
	assert.Same(t, res, conv.MostRecentResult())
	assert.Equal(t, StateIdle, conv.State())

	hist := conv.Messages()
	require.Len(t, hist, 2)
	assert.Equal(t, user.ID, hist[0].ID)
	assert.Equal(t, messages.RoleAssistant, hist[1].Role)
	assert.Equal(t, "Prague", hist[1].Text())

	sent := tr.last()
	assert.False(t, sent.Stream)
	body := gjson.ParseBytes(sent.Body)
	assert.Equal(t, "gpt-4o-mini", body.Get("model").String())
	assert.Len(t, body.Get("messages").Array(), 1)
	assert.Equal(t, "user", body.Get("messages.0.role").String())
}

func TestGetResponse_UpstreamErrorLeavesHistory(t *testing.T) {
	upstream := provider.NewError(provider.KindUpstream, provider.OpenAI, "rate limited", nil)
	upstream.HTTPStatus = 429
	tr := &scripted{submitErr: upstream}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("hi")

	_, err := conv.GetResponse(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUpstream)
	assert.Len(t, conv.Messages(), 1)
	assert.Equal(t, StateIdle, conv.State())
}

func TestGetResponse_Cancelled(t *testing.T) {
	tr := &scripted{body: []byte(completionBody)}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("hi")
	before := conv.Messages()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conv.GetResponse(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrCancelled)
	assert.Equal(t, before, conv.Messages())
	assert.Zero(t, conv.Usage().TotalTokens)
}

func TestGetResponse_Undecodable(t *testing.T) {
	tr := &scripted{body: []byte(`<html>bad gateway</html>`)}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("hi")

	res, err := conv.GetResponse(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Empty())
	assert.Len(t, conv.Messages(), 1)

	safe := conv.GetResponseSafe(context.Background())
	assert.True(t, safe.IsError())
	assert.ErrorIs(t, safe.Err, provider.ErrDeserialization)
	var perr *provider.Error
	require.ErrorAs(t, safe.Err, &perr)
	assert.Equal(t, []byte(`<html>bad gateway</html>`), perr.Raw)
}

func TestGetResponseRichSafe_RecoversCallbackPanic(t *testing.T) {
	tr := &scripted{body: []byte(completionBody)}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("hi")

	out := conv.GetResponseRichSafe(context.Background(), &events.Handler{
		OnBlockFinished: func(context.Context, messages.Message) { panic("callback exploded") },
	})
	assert.True(t, out.IsError())
	assert.ErrorContains(t, out.Err, "callback exploded")
	assert.Len(t, conv.Messages(), 1, "the interrupted round trip is rolled back")
	assert.Zero(t, conv.Usage())

	// the conversation is usable again
	assert.Equal(t, StateIdle, conv.State())
	_, err := conv.GetResponse(context.Background())
	assert.NoError(t, err)
}

const toolCallBody = `{
  "id": "chatcmpl-2",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [
        {"id": "call_1", "type": "function", "function": {"name": "weather", "arguments": "{\"city\":\"Prague\"}"}},
        {"id": "call_2", "type": "function", "function": {"name": "weather", "arguments": "{\"city\":\"Brno\"}"}},
        {"id": "call_3", "type": "function", "function": {"name": "time", "arguments": "{}"}}
      ]
    },
    "finish_reason": "tool_calls"
  }],
  "usage": {"prompt_tokens": 20, "completion_tokens": 15, "total_tokens": 35}
}`

func TestGetResponseRich_ToolCalls(t *testing.T) {
	tr := &scripted{body: []byte(toolCallBody)}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("weather in Prague and Brno, and the time?")

	var after []messages.Message
	var stateInAfter State
	h := &events.Handler{
		OnFunctionCalls: func(_ context.Context, calls []*messages.FunctionCall) error {
			require.Len(t, calls, 3)
			for _, fc := range calls {
				if fc.Name == "weather" {
					require.NoError(t, fc.Resolve(map[string]string{"city": fc.Get("city").String(), "sky": "clear"}))
				}
			}
			return nil
		},
		OnAfterToolsCall: func(_ context.Context, toolMessages []messages.Message) {
			after = toolMessages
			stateInAfter = conv.State()
		},
	}

	rich, err := conv.GetResponseRich(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, chat.FinishToolCalls, rich.Result.FinishReason())
	require.Len(t, rich.FunctionCalls(), 3)
	require.Len(t, rich.ToolMessages, 3)
	assert.Equal(t, rich.ToolMessages, after)
	assert.Equal(t, StateIdle, stateInAfter)

	hist := conv.Messages()
	require.Len(t, hist, 5)
	assert.Equal(t, messages.RoleAssistant, hist[1].Role)
	require.Len(t, hist[1].ToolCalls, 3)
	for i, id := range []string{"call_1", "call_2", "call_3"} {
		tm := hist[2+i]
		assert.Equal(t, messages.RoleTool, tm.Role)
		assert.Equal(t, id, tm.ToolCallID)
	}
	assert.JSONEq(t, `{"city":"Prague","sky":"clear"}`, hist[2].Text())
	assert.JSONEq(t, `{"city":"Brno","sky":"clear"}`, hist[3].Text())
	assert.Equal(t, messages.NoDataReturned, hist[4].Text())
}

func TestGetResponseRich_ToolHandlerFails(t *testing.T) {
	tr := &scripted{body: []byte(toolCallBody)}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("weather?")

	_, err := conv.GetResponseRich(context.Background(), &events.Handler{
		OnFunctionCalls: func(context.Context, []*messages.FunctionCall) error {
			return errors.New("weather service down")
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrToolResolution)
	assert.Len(t, conv.Messages(), 1)
	assert.Equal(t, StateIdle, conv.State())
}

func TestGetResponseRich_CallbackEditsPersist(t *testing.T) {
	tr := &scripted{body: []byte(completionBody)}
	conv := newTestConversation(t, tr)
	user := conv.AppendUserInput("q")

	var followUp messages.Message
	_, err := conv.GetResponseRich(context.Background(), &events.Handler{
		OnBlockFinished: func(context.Context, messages.Message) {
			require.NoError(t, conv.EditMessage(user.ID, "edited"))
			followUp = conv.AppendUserInput("follow-up")
		},
	})
	require.NoError(t, err)

	hist := conv.Messages()
	require.Len(t, hist, 3)
	assert.Equal(t, user.ID, hist[0].ID)
	assert.Equal(t, "edited", hist[0].Text())
	assert.EqualValues(t, 10, hist[0].Tokens, "prompt tokens survive the edit")
	assert.Equal(t, "Prague", hist[1].Text())
	assert.Equal(t, followUp.ID, hist[2].ID)
	assert.Equal(t, "follow-up", hist[2].Text())
	assert.EqualValues(t, 12, conv.Usage().TotalTokens)
}

func TestGetResponseRich_FailureRollsBackCallbackEdits(t *testing.T) {
	tr := &scripted{body: []byte(toolCallBody)}
	conv := newTestConversation(t, tr)
	user := conv.AppendUserInput("weather?")

	_, err := conv.GetResponseRich(context.Background(), &events.Handler{
		OnBlockFinished: func(context.Context, messages.Message) {
			require.NoError(t, conv.EditMessage(user.ID, "edited"))
		},
		OnFunctionCalls: func(context.Context, []*messages.FunctionCall) error {
			return errors.New("weather service down")
		},
	})
	assert.ErrorIs(t, err, provider.ErrToolResolution)

	hist := conv.Messages()
	require.Len(t, hist, 1)
	assert.Equal(t, "weather?", hist[0].Text())
	assert.Zero(t, hist[0].Tokens)
	assert.Zero(t, conv.Usage())
}

func TestGetResponseRich_CancelledInToolHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &scripted{body: []byte(toolCallBody)}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("weather?")

	_, err := conv.GetResponseRich(ctx, &events.Handler{
		OnFunctionCalls: func(ctx context.Context, calls []*messages.FunctionCall) error {
			require.NoError(t, calls[0].Resolve("sunny"))
			cancel()
			return ctx.Err()
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrCancelled)
	assert.NotErrorIs(t, err, provider.ErrToolResolution)
	assert.Len(t, conv.Messages(), 1)
	assert.Equal(t, StateIdle, conv.State())
}

func TestGetResponse_WithoutHandlerKeepsToolCalls(t *testing.T) {
	tr := &scripted{body: []byte(toolCallBody)}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("weather?")

	_, err := conv.GetResponse(context.Background())
	require.NoError(t, err)
	hist := conv.Messages()
	require.Len(t, hist, 2)
	assert.Len(t, hist[1].ToolCalls, 3)
}

func TestConversation_RequestParameters(t *testing.T) {
	conv := newTestConversation(t, &scripted{}, WithRequestOptions(chat.WithTemperature(0.2)))

	p := conv.RequestParameters()
	assert.Equal(t, "gpt-4o-mini", p.Model)
	require.NotNil(t, p.Temperature)
	assert.InDelta(t, 0.2, *p.Temperature, 1e-9)

	// the returned value is a copy
	p.Model = "other"
	assert.Equal(t, "gpt-4o-mini", conv.RequestParameters().Model)

	require.NoError(t, conv.UpdateRequestParameters(chat.WithTemperature(0.9)))
	assert.InDelta(t, 0.9, *conv.RequestParameters().Temperature, 1e-9)
}

func TestConversation_History(t *testing.T) {
	conv := newTestConversation(t, &scripted{}, WithMessages(messages.User("seed")))

	sys := conv.PrependSystemMessage("be brief")
	u := conv.AppendUserInput("hello")
	ex := conv.AppendExampleChatbotOutput("hi!")

	hist := conv.Messages()
	require.Len(t, hist, 4)
	assert.Equal(t, sys.ID, hist[0].ID)
	assert.Equal(t, "seed", hist[1].Text())
	assert.Equal(t, u.ID, hist[2].ID)
	assert.Equal(t, ex.ID, hist[3].ID)

	require.NoError(t, conv.EditMessage(u.ID, "hello there"))
	got, ok := conv.Message(u.ID)
	require.True(t, ok)
	assert.Equal(t, "hello there", got.Text())

	require.NoError(t, conv.EditMessageParts(u.ID, messages.Text("look"), messages.Image("https://example.com/cat.png")))
	got, _ = conv.Message(u.ID)
	assert.Len(t, got.Parts, 2)

	require.NoError(t, conv.RemoveMessage(ex.ID))
	assert.Len(t, conv.Messages(), 3)
	assert.ErrorIs(t, conv.RemoveMessage(ex.ID), ErrMessageNotFound)

	_, err := conv.AppendToolResult("", "weather", "{}")
	assert.Error(t, err)

	conv.Clear()
	assert.Empty(t, conv.Messages())
	assert.Nil(t, conv.MostRecentResult())
}

func TestConversation_ConcurrentRequestRejected(t *testing.T) {
	tr := &scripted{frames: []string{
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"}}]}`,
		`[DONE]`,
	}}
	conv := newTestConversation(t, tr)
	conv.AppendUserInput("hi")

	var nested error
	err := conv.StreamResponse(context.Background(), func(ctx context.Context, _ string) {
		_, nested = conv.GetResponse(ctx)
	})
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrRequestInFlight)
	assert.Equal(t, StateIdle, conv.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_response", StateAwaitingResponse.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "resolving_tools", StateResolvingTools.String())
}

func TestNewEndpoint(t *testing.T) {
	_, err := NewEndpoint(provider.OpenAI, nil)
	assert.Error(t, err)

	_, err = NewEndpoint("nope", &scripted{})
	assert.ErrorIs(t, err, provider.ErrAdapterNotFound)

	reg := provider.NewRegistry(openai.Must())
	ep, err := NewEndpoint(provider.OpenAI, &scripted{}, WithRegistry(reg))
	require.NoError(t, err)
	a, err := ep.Adapter()
	require.NoError(t, err)
	assert.Equal(t, provider.OpenAI, a.ID())
}
