package confab

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/internal/shorttermmemory"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/casualjim/confab/provider"
)

// GetResponse runs one non-streaming round trip and appends the assistant
// message to history. A response that can not be decoded yields an empty result
// and no error; use GetResponseSafe to observe it.
func (c *Conversation) GetResponse(ctx context.Context) (*chat.Result, error) {
	rich, err := c.respond(ctx, nil, false)
	if err != nil {
		return nil, err
	}
	return rich.Result, nil
}

// GetResponseRich is GetResponse with event callbacks and a block decomposition
// of the answer. Function calls are resolved through h.OnFunctionCalls.
func (c *Conversation) GetResponseRich(ctx context.Context, h *events.Handler) (*RichResponse, error) {
	return c.respond(ctx, h, false)
}

// GetResponseSafe is GetResponse that reports every failure, undecodable
// responses and callback panics included, as a value.
func (c *Conversation) GetResponseSafe(ctx context.Context) (out SafeResult[*chat.Result]) {
	defer recoverInto(&out.Err)
	rich, err := c.respond(ctx, nil, true)
	if err != nil {
		return SafeResult[*chat.Result]{Err: err}
	}
	return SafeResult[*chat.Result]{Value: rich.Result}
}

// GetResponseRichSafe is GetResponseRich with the failure reporting of GetResponseSafe.
func (c *Conversation) GetResponseRichSafe(ctx context.Context, h *events.Handler) (out SafeResult[*RichResponse]) {
	defer recoverInto(&out.Err)
	rich, err := c.respond(ctx, h, true)
	return SafeResult[*RichResponse]{Value: rich, Err: err}
}

// respond checkpoints the history before the round trip writes to it and
// restores the checkpoint when a later step fails, so a failed call leaves the
// history untouched. Callbacks see and edit the live history.
func (c *Conversation) respond(ctx context.Context, h *events.Handler, strict bool) (*RichResponse, error) {
	if err := c.begin(StateAwaitingResponse); err != nil {
		return nil, err
	}
	defer c.transition(StateIdle)

	adapter, err := c.endpoint.Adapter()
	if err != nil {
		return nil, err
	}
	wire, err := c.serialize(ctx, c.history, h, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.endpoint.transport.Submit(ctx, wire)
	if err != nil {
		c.logger.DebugContext(ctx, "request failed", slogx.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, provider.ContextError(c.endpoint.provider, err)
	}

	res := adapter.ParseResult(resp.Body)
	if res == nil {
		c.logger.WarnContext(ctx, "undecodable response", slog.Int("status", resp.StatusCode), slogx.ByteString("body", resp.Body))
		if strict {
			perr := provider.NewError(provider.KindDeserialization, c.endpoint.provider, "response does not match the expected shape", nil)
			perr.HTTPStatus = resp.StatusCode
			perr.Raw = resp.Body
			return nil, perr
		}
		res = &chat.Result{}
		c.last.Store(res)
		return &RichResponse{Result: res}, nil
	}

	cp, committed := c.history.Checkpoint(), false
	defer func() {
		// errors and callback panics alike leave nothing of this round trip behind
		if !committed {
			c.history.Restore(cp)
		}
	}()
	rich := &RichResponse{Result: res}
	h.VendorExtension(ctx, res.Extension)

	choice, ok := res.First()
	var msg messages.Message
	if ok {
		msg = assistantMessage(choice.Message)
	}
	if res.Usage != nil {
		res.Usage.Normalize()
		c.history.AddUsage(res.Usage)
		c.history.AttributeUsage(res.Usage.PromptTokens)
		h.UsageReceived(ctx, res.Usage)
	}

	var calls []*messages.FunctionCall
	if !msg.IsEmpty() {
		msg = c.history.Add(msg)
		for _, tc := range msg.ToolCalls {
			calls = append(calls, messages.NewFunctionCall(tc))
		}
		emitParts(ctx, h, msg)
		h.BlockFinished(ctx, msg)
	}
	rich.Blocks = blocksOf(msg, calls)

	if len(calls) > 0 && h.HandlesFunctionCalls() {
		c.transition(StateResolvingTools)
		toolMsgs, err := c.resolveToolCalls(ctx, h, c.history, calls)
		if err != nil {
			return nil, err
		}
		rich.ToolMessages = toolMsgs
	}

	committed = true
	c.last.Store(res)
	c.transition(StateIdle)
	if len(rich.ToolMessages) > 0 {
		h.AfterToolsCall(ctx, rich.ToolMessages)
	}
	return rich, nil
}

// serialize renders the effective request with the history of agg.
func (c *Conversation) serialize(ctx context.Context, agg *shorttermmemory.Aggregator, h *events.Handler, stream bool) (provider.WireRequest, error) {
	o := provider.SerializeOptions{
		Source:    historySource{agg: agg},
		Stream:    stream,
		WantUsage: stream && c.wantUsage,
		Now:       c.now(),
	}
	if h != nil && h.MutateRequest != nil {
		o.Mutate = func(req *chat.Request) *chat.Request { return h.Mutate(ctx, req) }
	}
	wire, err := provider.Serialize(c.endpoint.registry, c.endpoint.provider, c.template.Load(), o)
	if err != nil {
		return provider.WireRequest{}, err
	}
	c.logger.DebugContext(ctx, "serialized request",
		slog.String("url", wire.URL),
		slog.Bool("stream", wire.Stream),
		slog.Any("meta", wire.Meta),
	)
	return wire, nil
}

// assistantMessage normalizes a vendor message for history. Canonical history
// only knows assistant requests and tool answers.
func assistantMessage(m messages.Message) messages.Message {
	m = m.Clone()
	if m.Role != messages.RoleAssistant {
		m.Role = messages.RoleAssistant
	}
	if m.Content != "" && len(m.Parts) > 0 {
		m.Parts = append(m.Parts, messages.Text(m.Content))
		m.Content = ""
	}
	return m
}

// emitParts surfaces the non-text parts of a complete message.
func emitParts(ctx context.Context, h *events.Handler, m messages.Message) {
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.TextPart:
			continue
		case messages.ImagePart:
			h.ImageToken(ctx, part)
		}
		h.MessagePart(ctx, p)
	}
	if m.Audio != nil {
		h.AudioToken(ctx, *m.Audio)
	}
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = fmt.Errorf("panic: %w", e)
			return
		}
		*err = fmt.Errorf("panic: %v", r)
	}
}
