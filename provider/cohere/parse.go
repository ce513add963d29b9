package cohere

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ParseResult decodes a v2 chat response. It returns nil when the payload is not
// a chat response.
func (a *Adapter) ParseResult(data []byte) *chat.Result {
	if !gjson.ValidBytes(data) {
		return nil
	}
	doc := gjson.ParseBytes(data)
	m := doc.Get("message")
	if !m.IsObject() {
		return nil
	}

	msg := messages.New(messages.RoleAssistant)
	var text strings.Builder
	var parts messages.Parts
	if plan := m.Get("tool_plan").String(); plan != "" {
		parts = append(parts, messages.Reasoning(plan, ""))
	}
	for _, c := range m.Get("content").Array() {
		switch c.Get("type").String() {
		case "text":
			text.WriteString(c.Get("text").String())
		case "thinking":
			parts = append(parts, messages.Reasoning(c.Get("thinking").String(), ""))
		}
	}
	if len(parts) > 0 {
		if text.Len() > 0 {
			parts = append(parts, messages.Text(text.String()))
		}
		msg.Parts = parts
	} else {
		msg.Content = text.String()
	}
	for i, tc := range m.Get("tool_calls").Array() {
		msg.ToolCalls = append(msg.ToolCalls, messages.ToolCall{
			Index: i,
			ID:    tc.Get("id").String(),
			Type:  "function",
			Function: messages.FunctionData{
				Name:      tc.Get("function.name").String(),
				Arguments: tc.Get("function.arguments").String(),
			},
		})
	}

	return &chat.Result{
		ID:        doc.Get("id").String(),
		Created:   strfmt.DateTime(time.Now()),
		Usage:     parseUsage(doc.Get("usage")),
		Extension: citations(m.Get("citations")),
		Choices: []chat.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: FinishReason(doc.Get("finish_reason").String()),
		}},
	}
}

// ParseStream decodes v2 chat stream events.
func (a *Adapter) ParseStream(ctx context.Context, frames provider.Frames, _ *chat.Request, _ *events.Handler) iter.Seq2[*chat.Result, error] {
	return func(yield func(*chat.Result, error) bool) {
		var id string
		for frame, err := range frames {
			if err != nil {
				yield(nil, err)
				return
			}
			if ctx.Err() != nil {
				yield(nil, provider.ContextError(provider.Cohere, ctx.Err()))
				return
			}
			if !gjson.ValidBytes(frame) {
				slog.DebugContext(ctx, "skipping malformed stream frame", "provider", provider.Cohere, "frame", string(frame))
				continue
			}
			ev := gjson.ParseBytes(frame)
			if msg := ev.Get("message"); ev.Get("type").String() == "" && msg.Exists() {
				perr := provider.NewError(provider.KindUpstream, provider.Cohere, msg.String(), nil)
				perr.Raw = frame
				yield(nil, perr)
				return
			}

			res := &chat.Result{ID: id, Created: strfmt.DateTime(time.Now())}
			delta := &messages.Message{}
			index := int(ev.Get("index").Int())

			switch ev.Get("type").String() {
			case "message-start":
				id = ev.Get("id").String()
				res.ID = id
				delta.Role = messages.ParseRole(ev.Get("delta.message.role").String())
				if delta.Role == messages.RoleUnknown {
					delta.Role = messages.RoleAssistant
				}
			case "content-start", "content-delta":
				content := ev.Get("delta.message.content")
				if thinking := content.Get("thinking").String(); thinking != "" {
					delta.Parts = messages.Parts{messages.Reasoning(thinking, "")}
				}
				delta.Content = content.Get("text").String()
				if delta.Content == "" && len(delta.Parts) == 0 {
					continue
				}
			case "tool-plan-delta":
				plan := ev.Get("delta.message.tool_plan").String()
				if plan == "" {
					continue
				}
				delta.Parts = messages.Parts{messages.Reasoning(plan, "")}
			case "tool-call-start", "tool-call-delta":
				tc := ev.Get("delta.message.tool_calls")
				delta.ToolCalls = []messages.ToolCall{{
					Index: index,
					ID:    tc.Get("id").String(),
					Type:  "function",
					Function: messages.FunctionData{
						Name:      tc.Get("function.name").String(),
						Arguments: tc.Get("function.arguments").String(),
					},
				}}
			case "citation-start":
				res.Extension = citations(ev.Get("delta.message.citations"))
				if !res.Extension.Exists() {
					continue
				}
			case "message-end":
				res.Kind = chat.StreamFinishData
				res.Usage = parseUsage(ev.Get("delta.usage"))
				res.Choices = []chat.Choice{{Index: 0, FinishReason: FinishReason(ev.Get("delta.finish_reason").String())}}
				yield(res, nil)
				return
			default:
				continue
			}

			res.Choices = []chat.Choice{{Index: 0, Delta: delta}}
			if !yield(res, nil) {
				return
			}
		}
	}
}

// FinishReason maps a Cohere finish reason to the normalized value.
func FinishReason(reason string) chat.FinishReason {
	switch reason {
	case "":
		return chat.FinishUnset
	case "COMPLETE":
		return chat.FinishEndTurn
	case "STOP_SEQUENCE":
		return chat.FinishStopSequence
	case "MAX_TOKENS":
		return chat.FinishLength
	case "TOOL_CALL":
		return chat.FinishToolCalls
	case "ERROR", "TIMEOUT":
		return chat.FinishError
	default:
		return chat.FinishOther
	}
}

func parseUsage(u gjson.Result) *chat.Usage {
	if !u.Exists() {
		return nil
	}
	tokens := u.Get("tokens")
	if !tokens.Exists() {
		tokens = u.Get("billed_units")
	}
	usage := &chat.Usage{
		PromptTokens:     tokens.Get("input_tokens").Int(),
		CompletionTokens: tokens.Get("output_tokens").Int(),
	}
	usage.Normalize()
	return usage
}

// citations wraps citation data in a {"citations": ...} extension payload.
func citations(c gjson.Result) gjson.Result {
	if !c.Exists() || c.Type == gjson.Null {
		return gjson.Result{}
	}
	out, err := sjson.SetRawBytes([]byte(`{}`), "citations", []byte(c.Raw))
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(out)
}
