package confab

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/internal/toolcalls"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/casualjim/confab/provider"
	"github.com/go-openapi/strfmt"
)

// StreamResponse streams one round trip and hands every assistant token to onToken.
func (c *Conversation) StreamResponse(ctx context.Context, onToken func(ctx context.Context, token string)) error {
	_, err := c.stream(ctx, &events.Handler{OnMessageToken: onToken})
	return err
}

// StreamResponseRich streams one round trip with the full callback surface.
//
// The call returns when the upstream stream ends or, when the model requested
// tools and h resolves function calls, right after the tool messages were
// appended. It never issues the follow-up request itself; OnAfterToolsCall is
// the place to do that.
func (c *Conversation) StreamResponseRich(ctx context.Context, h *events.Handler) (Outcome, error) {
	return c.stream(ctx, h)
}

// StreamResponseRichSafe is StreamResponseRich that reports callback panics as
// errors instead of propagating them.
func (c *Conversation) StreamResponseRichSafe(ctx context.Context, h *events.Handler) (out SafeResult[Outcome]) {
	defer recoverInto(&out.Err)
	outcome, err := c.stream(ctx, h)
	return SafeResult[Outcome]{Value: outcome, Err: err}
}

func (c *Conversation) stream(ctx context.Context, h *events.Handler) (Outcome, error) {
	if err := c.begin(StateStreaming); err != nil {
		return Outcome{}, err
	}
	defer c.transition(StateIdle)

	adapter, err := c.endpoint.Adapter()
	if err != nil {
		return Outcome{}, err
	}
	wire, err := c.serialize(ctx, c.history, h, true)
	if err != nil {
		return Outcome{}, err
	}
	frames, err := c.endpoint.transport.SubmitStreaming(ctx, wire)
	if err != nil {
		c.logger.DebugContext(ctx, "stream request failed", slogx.Error(err))
		return Outcome{}, err
	}

	r := newReconciler(c, h, wire.Effective)
	for res, err := range adapter.ParseStream(ctx, frames, wire.Effective, h) {
		if err != nil {
			return r.fail(ctx, err)
		}
		r.apply(ctx, res)
	}
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, provider.ContextError(c.endpoint.provider, err))
	}
	return r.finish(ctx)
}

// reconciler folds the canonical fragments of one stream into history. Only
// choice 0 is reconciled.
type reconciler struct {
	conv *Conversation
	h    *events.Handler
	req  *chat.Request

	roleResolved bool
	started      bool

	id        string
	model     string
	created   strfmt.DateTime
	text      strings.Builder
	reasoning []messages.ReasoningPart
	parts     messages.Parts
	audio     *messages.AudioData
	calls     *toolcalls.Accumulator
	finished  chat.FinishReason
	usage     *chat.Usage

	outcome Outcome
}

func newReconciler(c *Conversation, h *events.Handler, req *chat.Request) *reconciler {
	return &reconciler{
		conv:  c,
		h:     h,
		req:   req,
		calls: toolcalls.New(),
	}
}

func (r *reconciler) apply(ctx context.Context, res *chat.Result) {
	if res == nil {
		return
	}
	r.conv.last.Store(res)
	if res.ID != "" && r.id == "" {
		r.id = res.ID
	}
	if res.Model != "" && r.model == "" {
		r.model = res.Model
	}
	if time.Time(r.created).IsZero() {
		r.created = res.Created
	}
	r.h.VendorExtension(ctx, res.Extension)

	switch res.Kind {
	case chat.StreamAppendAssistantMessage:
		r.appendMessage(ctx, res)
		return
	case chat.StreamFinishData:
		r.mergeUsage(res.Usage)
		if fr := res.FinishReason(); fr != chat.FinishUnset {
			r.finished = fr
		}
		return
	}

	r.mergeUsage(res.Usage)
	for _, choice := range res.Choices {
		if choice.Index != 0 {
			continue
		}
		if choice.FinishReason != chat.FinishUnset {
			r.finished = choice.FinishReason
		}
		if choice.Delta != nil {
			r.delta(ctx, choice.Delta)
		}
	}
}

// appendMessage commits a complete assistant message delivered in one frame. The
// message bypasses the token callback.
func (r *reconciler) appendMessage(ctx context.Context, res *chat.Result) {
	choice, ok := res.First()
	if !ok {
		return
	}
	src := choice.Message
	if src.IsEmpty() && choice.Delta != nil {
		src = *choice.Delta
	}
	if choice.FinishReason != chat.FinishUnset {
		r.finished = choice.FinishReason
	}
	msg := assistantMessage(src)
	hist := r.conv.history
	if !msg.IsEmpty() {
		msg = hist.Add(msg)
		r.outcome.Messages = append(r.outcome.Messages, msg)
	}
	if res.Usage != nil {
		u := *res.Usage
		u.Normalize()
		hist.AddUsage(&u)
		hist.AttributeUsage(u.PromptTokens)
		r.h.UsageReceived(ctx, &u)
		r.outcome.Usage = &u
	}
	if msg.IsEmpty() {
		return
	}
	emitParts(ctx, r.h, msg)
	r.h.BlockFinished(ctx, msg)
	for _, tc := range msg.ToolCalls {
		r.calls.Add(tc)
	}
	if len(msg.ToolCalls) > 0 {
		// the message is already in history, only the resolution is pending
		r.calls.Complete()
	}
}

func (r *reconciler) delta(ctx context.Context, d *messages.Message) {
	if !r.roleResolved && d.Role != "" && d.Role != messages.RoleUnknown {
		role := d.Role
		if role == messages.RoleTool {
			role = messages.RoleAssistant
		}
		r.roleResolved = true
		r.h.MessageTypeResolved(ctx, role)
	}

	r.token(ctx, d.Content)
	for _, p := range d.Parts {
		switch part := p.(type) {
		case messages.TextPart:
			r.token(ctx, part.Text)
		case messages.ReasoningPart:
			r.addReasoning(part)
			r.h.ReasoningToken(ctx, part.Content, part.Signature)
			r.h.MessagePart(ctx, part)
		case messages.ImagePart:
			r.parts = append(r.parts, part)
			r.h.ImageToken(ctx, part)
			r.h.MessagePart(ctx, part)
		default:
			r.parts = append(r.parts, part)
			r.h.MessagePart(ctx, part)
		}
	}
	if d.Audio != nil {
		r.addAudio(d.Audio)
		r.h.AudioToken(ctx, *d.Audio)
	}
	for _, tc := range d.ToolCalls {
		r.calls.Add(tc)
	}
}

// token records assistant text. The first non-empty token loses its leading
// whitespace unless the request preserves the response start.
func (r *reconciler) token(ctx context.Context, s string) {
	if s == "" {
		return
	}
	if !r.started {
		r.started = true
		if !r.req.PreserveResponseStart {
			s = strings.TrimLeftFunc(s, unicode.IsSpace)
		}
	}
	if s == "" {
		return
	}
	r.text.WriteString(s)
	r.h.MessageToken(ctx, s)
}

// addReasoning merges consecutive fragments of the same block. A signature
// closes the block it arrives on. Redacted blocks are never merged.
func (r *reconciler) addReasoning(p messages.ReasoningPart) {
	if n := len(r.reasoning); n > 0 {
		last := &r.reasoning[n-1]
		if !last.Redacted && !p.Redacted && last.Signature == "" {
			last.Content += p.Content
			last.Signature = p.Signature
			return
		}
	}
	r.reasoning = append(r.reasoning, p)
}

func (r *reconciler) addAudio(a *messages.AudioData) {
	if r.audio == nil {
		r.audio = &messages.AudioData{}
	}
	if a.ID != "" {
		r.audio.ID = a.ID
	}
	if a.Format != "" {
		r.audio.Format = a.Format
	}
	if !time.Time(a.ExpiresAt).IsZero() {
		r.audio.ExpiresAt = a.ExpiresAt
	}
	r.audio.Data = append(r.audio.Data, a.Data...)
	r.audio.Transcript += a.Transcript
}

func (r *reconciler) mergeUsage(u *chat.Usage) {
	if u == nil {
		return
	}
	if r.usage == nil {
		r.usage = &chat.Usage{}
	}
	r.usage.Merge(u)
}

// message builds the assistant message from the buffered fragments.
func (r *reconciler) message() messages.Message {
	msg := messages.New(messages.RoleAssistant)
	text := r.text.String()
	if len(r.reasoning) == 0 && len(r.parts) == 0 {
		msg.Content = text
	} else {
		for _, rp := range r.reasoning {
			msg.Parts = append(msg.Parts, rp)
		}
		if text != "" {
			msg.Parts = append(msg.Parts, messages.Text(text))
		}
		msg.Parts = append(msg.Parts, r.parts...)
	}
	msg.Audio = r.audio
	if r.calls.Len() > 0 && !r.calls.Completed() {
		r.calls.Complete()
		msg.ToolCalls = r.calls.Calls()
	}
	return msg
}

// finish commits the buffered message, records usage and resolves the tool-call
// batch the stream ended with.
func (r *reconciler) finish(ctx context.Context) (Outcome, error) {
	c := r.conv
	hist := c.history

	msg := r.message()
	if !msg.IsEmpty() {
		msg = hist.Add(msg)
		r.outcome.Messages = append(r.outcome.Messages, msg)
		r.h.BlockFinished(ctx, msg)
	}
	if r.usage != nil {
		u := *r.usage
		if sum := u.PromptTokens + u.CompletionTokens; u.TotalTokens < sum {
			u.TotalTokens = sum
		}
		hist.AddUsage(&u)
		hist.AttributeUsage(u.PromptTokens)
		r.h.UsageReceived(ctx, &u)
		r.outcome.Usage = &u
	}

	r.outcome.FinishReason = r.finished
	if r.outcome.FinishReason == chat.FinishUnset && r.calls.Completed() {
		r.outcome.FinishReason = chat.FinishToolCalls
	}
	final := msg
	for i := len(r.outcome.Messages) - 1; final.IsEmpty() && i >= 0; i-- {
		if r.outcome.Messages[i].Role == messages.RoleAssistant {
			final = r.outcome.Messages[i]
		}
	}
	c.last.Store(&chat.Result{
		ID:      r.id,
		Model:   r.model,
		Created: r.created,
		Choices: []chat.Choice{{Message: final, FinishReason: r.outcome.FinishReason}},
		Usage:   r.outcome.Usage,
	})

	c.logger.DebugContext(ctx, "stream finished",
		slog.String("finish_reason", string(r.outcome.FinishReason)),
		slog.Int("appended", len(r.outcome.Messages)),
		slog.Int("tool_calls", r.calls.Len()),
	)

	fcs := r.calls.FunctionCalls()
	if len(fcs) == 0 || !r.h.HandlesFunctionCalls() {
		return r.outcome, nil
	}

	c.transition(StateResolvingTools)
	r.outcome.FunctionCalls = fcs
	toolMsgs, err := c.resolveToolCalls(ctx, r.h, hist, fcs)
	r.outcome.Messages = append(r.outcome.Messages, toolMsgs...)
	if err != nil {
		return r.outcome, err
	}
	c.transition(StateIdle)
	r.h.AfterToolsCall(ctx, toolMsgs)
	return r.outcome, nil
}

// fail drops the partially received message, tool calls still being assembled
// included. Messages committed earlier in the stream stay in history.
func (r *reconciler) fail(ctx context.Context, err error) (Outcome, error) {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		err = provider.NewError(provider.KindStreamInterrupted, r.conv.endpoint.provider, "stream failed", err)
	}
	attrs := []any{
		slogx.Error(err),
		slog.Int("discarded_bytes", r.text.Len()),
		slog.Int("committed", len(r.outcome.Messages)),
	}
	if pending := r.calls.Pending(); len(pending) > 0 {
		names := make([]string, len(pending))
		for i, tc := range pending {
			names[i] = tc.Function.Name
		}
		attrs = append(attrs, slog.Any("discarded_tool_calls", names))
	}
	r.conv.logger.DebugContext(ctx, "stream aborted", attrs...)
	return r.outcome, err
}
