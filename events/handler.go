package events

import (
	"context"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/tidwall/gjson"
)

// Handler is the callback surface for rich responses. Every field is optional; a nil
// callback drops its event class. The dispatch methods are safe to call on a nil *Handler.
type Handler struct {
	// OnMessageToken receives assistant text as it streams in.
	OnMessageToken func(ctx context.Context, token string)
	// OnReasoningToken receives reasoning fragments. A fragment carrying only a
	// signature closes the current reasoning block.
	OnReasoningToken func(ctx context.Context, content, signature string)
	// OnAudioToken receives spoken output fragments.
	OnAudioToken func(ctx context.Context, audio messages.AudioData)
	// OnImageToken receives generated images.
	OnImageToken func(ctx context.Context, image messages.ImagePart)
	// OnMessagePart receives every non-text part as it becomes available.
	OnMessagePart func(ctx context.Context, part messages.Part)
	// OnFunctionCalls receives a complete tool-call batch. Implementations record
	// results on the calls in place; returning an error aborts the batch.
	OnFunctionCalls func(ctx context.Context, calls []*messages.FunctionCall) error
	// OnAfterToolsCall fires once per batch after its tool messages were appended.
	OnAfterToolsCall func(ctx context.Context, toolMessages []messages.Message)
	// OnBlockFinished receives every assistant message appended to history.
	OnBlockFinished func(ctx context.Context, msg messages.Message)
	// OnMessageTypeResolved fires once per stream with the role of the response.
	OnMessageTypeResolved func(ctx context.Context, role messages.Role)
	// OnUsageReceived receives token usage reports.
	OnUsageReceived func(ctx context.Context, usage chat.Usage)
	// OnVendorExtension receives vendor specific payloads that have no canonical form.
	OnVendorExtension func(ctx context.Context, payload gjson.Result)
	// MutateRequest rewrites the effective request right before it is serialized.
	MutateRequest func(ctx context.Context, req *chat.Request) *chat.Request
}

func (h *Handler) MessageToken(ctx context.Context, token string) {
	if h == nil || h.OnMessageToken == nil || token == "" {
		return
	}
	h.OnMessageToken(ctx, token)
}

func (h *Handler) ReasoningToken(ctx context.Context, content, signature string) {
	if h == nil || h.OnReasoningToken == nil || (content == "" && signature == "") {
		return
	}
	h.OnReasoningToken(ctx, content, signature)
}

func (h *Handler) AudioToken(ctx context.Context, audio messages.AudioData) {
	if h == nil || h.OnAudioToken == nil {
		return
	}
	h.OnAudioToken(ctx, audio)
}

func (h *Handler) ImageToken(ctx context.Context, image messages.ImagePart) {
	if h == nil || h.OnImageToken == nil {
		return
	}
	h.OnImageToken(ctx, image)
}

func (h *Handler) MessagePart(ctx context.Context, part messages.Part) {
	if h == nil || h.OnMessagePart == nil || part == nil {
		return
	}
	h.OnMessagePart(ctx, part)
}

// HandlesFunctionCalls reports whether a function-call handler is installed.
func (h *Handler) HandlesFunctionCalls() bool {
	return h != nil && h.OnFunctionCalls != nil
}

func (h *Handler) FunctionCalls(ctx context.Context, calls []*messages.FunctionCall) error {
	if !h.HandlesFunctionCalls() {
		return nil
	}
	return h.OnFunctionCalls(ctx, calls)
}

func (h *Handler) AfterToolsCall(ctx context.Context, toolMessages []messages.Message) {
	if h == nil || h.OnAfterToolsCall == nil {
		return
	}
	h.OnAfterToolsCall(ctx, toolMessages)
}

func (h *Handler) BlockFinished(ctx context.Context, msg messages.Message) {
	if h == nil || h.OnBlockFinished == nil {
		return
	}
	h.OnBlockFinished(ctx, msg)
}

func (h *Handler) MessageTypeResolved(ctx context.Context, role messages.Role) {
	if h == nil || h.OnMessageTypeResolved == nil {
		return
	}
	h.OnMessageTypeResolved(ctx, role)
}

func (h *Handler) UsageReceived(ctx context.Context, usage *chat.Usage) {
	if h == nil || h.OnUsageReceived == nil || usage == nil {
		return
	}
	h.OnUsageReceived(ctx, *usage)
}

func (h *Handler) VendorExtension(ctx context.Context, payload gjson.Result) {
	if h == nil || h.OnVendorExtension == nil || !payload.Exists() {
		return
	}
	h.OnVendorExtension(ctx, payload)
}

// Mutate applies MutateRequest, keeping the original when the hook returns nil.
func (h *Handler) Mutate(ctx context.Context, req *chat.Request) *chat.Request {
	if h == nil || h.MutateRequest == nil {
		return req
	}
	if out := h.MutateRequest(ctx, req); out != nil {
		return out
	}
	return req
}
