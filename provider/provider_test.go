package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAdapter struct {
	id   ID
	fail error
}

func (e *echoAdapter) ID() ID { return e.id }

func (e *echoAdapter) SerializeRequest(req *chat.Request) (WireBody, error) {
	if e.fail != nil {
		return WireBody{}, e.fail
	}
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	body := struct {
		Model    string `json:"model"`
		Messages []msg  `json:"messages"`
		Stream   bool   `json:"stream"`
		Usage    bool   `json:"include_usage"`
		At       string `json:"at"`
	}{Model: req.Model, Stream: req.Stream, Usage: req.WantsUsage(), At: req.IssuedAt.UTC().Format(time.RFC3339)}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, msg{Role: string(m.Role), Content: m.Text()})
	}
	b, err := json.Marshal(body)
	return WireBody{Body: b, Framing: FramingSSE, Headers: map[string]string{"x-test": "1"}}, err
}

func (e *echoAdapter) ParseResult([]byte) *chat.Result { return nil }

func (e *echoAdapter) ParseStream(context.Context, Frames, *chat.Request, *events.Handler) iter.Seq2[*chat.Result, error] {
	return func(func(*chat.Result, error) bool) {}
}

func (e *echoAdapter) ResolveURL(kind EndpointKind, model string) string {
	if kind == EndpointChatStream {
		return fmt.Sprintf("https://example.test/%s/stream", model)
	}
	return fmt.Sprintf("https://example.test/%s", model)
}

type staticSource []messages.Message

func (s staticSource) Messages() []messages.Message { return s }

func TestRegistry(t *testing.T) {
	reg := NewRegistry(&echoAdapter{id: OpenAI}, &echoAdapter{id: Anthropic})
	assert.Equal(t, []ID{Anthropic, OpenAI}, reg.IDs())

	a, err := reg.Lookup(OpenAI)
	require.NoError(t, err)
	assert.Equal(t, OpenAI, a.ID())

	_, err = reg.Lookup("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAdapterNotFound)

	reg.Remove(OpenAI)
	_, err = reg.Lookup(OpenAI)
	assert.ErrorIs(t, err, ErrAdapterNotFound)

	var nilReg *Registry
	_, err = nilReg.Lookup(OpenAI)
	assert.ErrorIs(t, err, ErrAdapterNotFound)
}

func TestSerialize(t *testing.T) {
	reg := NewRegistry(&echoAdapter{id: OpenAI})
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	history := staticSource{messages.System("reply in JSON"), messages.User("2+2=?")}

	t.Run("unknown provider fails before any I/O", func(t *testing.T) {
		_, err := Serialize(reg, "missing", &chat.Request{Model: "m"}, SerializeOptions{})
		assert.ErrorIs(t, err, ErrAdapterNotFound)
		assert.Equal(t, KindAdapterNotFound, KindOf(err))
	})

	t.Run("snapshots the source and forces usage for this call only", func(t *testing.T) {
		req := &chat.Request{Model: "gpt"}
		wire, err := Serialize(reg, OpenAI, req, SerializeOptions{Source: history, Stream: true, WantUsage: true, Now: now})
		require.NoError(t, err)

		assert.JSONEq(t, `{
			"model":"gpt",
			"messages":[{"role":"system","content":"reply in JSON"},{"role":"user","content":"2+2=?"}],
			"stream":true,
			"include_usage":true,
			"at":"2025-05-01T10:00:00Z"
		}`, string(wire.Body))
		assert.Equal(t, "https://example.test/gpt/stream", wire.URL)
		assert.Equal(t, "1", wire.Headers["x-test"])
		assert.True(t, wire.Stream)
		assert.Equal(t, 2, wire.Meta.MessageCount)

		assert.False(t, req.Stream)
		assert.Nil(t, req.StreamOptions)
		assert.Empty(t, req.Messages)
	})

	t.Run("serializing twice is byte identical", func(t *testing.T) {
		req := &chat.Request{Model: "gpt"}
		o := SerializeOptions{Source: history, Stream: true, WantUsage: true, Now: now}
		first, err := Serialize(reg, OpenAI, req, o)
		require.NoError(t, err)
		second, err := Serialize(reg, OpenAI, req, o)
		require.NoError(t, err)
		assert.Equal(t, first.Body, second.Body)
		assert.Equal(t, first.URL, second.URL)
	})

	t.Run("mutate hook sees the effective request", func(t *testing.T) {
		req := &chat.Request{Model: "gpt"}
		wire, err := Serialize(reg, OpenAI, req, SerializeOptions{
			Now: now,
			Mutate: func(r *chat.Request) *chat.Request {
				r.Model = "gpt-mutated"
				return r
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://example.test/gpt-mutated", wire.URL)
		assert.Equal(t, "gpt", req.Model)
	})

	t.Run("adapter failures become serialization errors", func(t *testing.T) {
		failing := NewRegistry(&echoAdapter{id: Cohere, fail: errors.New("json_schema unsupported")})
		_, err := Serialize(failing, Cohere, &chat.Request{Model: "m"}, SerializeOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSerialization)
		assert.Contains(t, err.Error(), "json_schema unsupported")
	})
}

func TestWireMeta_JSON(t *testing.T) {
	reg := NewRegistry(&echoAdapter{id: OpenAI})
	wire, err := Serialize(reg, OpenAI, &chat.Request{Model: "gpt"}, SerializeOptions{Now: time.Now()})
	require.NoError(t, err)

	b, err := json.Marshal(wire.Meta)
	require.NoError(t, err)

	var decoded WireMeta
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, wire.Meta.RequestID, decoded.RequestID)
	assert.Equal(t, "gpt", decoded.Model)
}

func TestError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &Error{Kind: KindUpstream, Provider: OpenAI, HTTPStatus: 502, Message: "bad gateway", Cause: cause}

	assert.Equal(t, "openai: upstream (status 502): bad gateway: connection reset", err.Error())
	assert.ErrorIs(t, err, ErrUpstream)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("call failed: %w", err)
	assert.Equal(t, KindUpstream, KindOf(wrapped))

	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, ErrorKind(""), KindOf(nil))

	assert.ErrorIs(t, ContextError(OpenAI, context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, ContextError(OpenAI, context.Canceled), ErrCancelled)

	logged := map[string]slog.Value{}
	for _, a := range err.LogValue().Group() {
		logged[a.Key] = a.Value
	}
	assert.Equal(t, "upstream", logged["kind"].String())
	assert.Equal(t, "openai", logged["provider"].String())
	assert.Equal(t, int64(502), logged["status"].Int64())
}
