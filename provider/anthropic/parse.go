package anthropic

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ParseResult decodes a messages API response. It returns nil when the payload is
// not a message.
func (a *Adapter) ParseResult(data []byte) *chat.Result {
	if !gjson.ValidBytes(data) || gjson.GetBytes(data, "type").String() != "message" {
		return nil
	}
	var msg anthropic.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("decode message", "provider", provider.Anthropic, "error", err)
		return nil
	}

	out := messages.New(messages.RoleAssistant)
	var text strings.Builder
	var parts messages.Parts
	for i, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			input := gjson.GetBytes(data, fmt.Sprintf("content.%d.input", i)).Raw
			if input == "" {
				input = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, messages.ToolCall{
				Index:    i,
				ID:       b.ID,
				Type:     "function",
				Function: messages.FunctionData{Name: b.Name, Arguments: input},
			})
		case anthropic.ThinkingBlock:
			parts = append(parts, messages.Reasoning(b.Thinking, b.Signature))
		case anthropic.RedactedThinkingBlock:
			parts = append(parts, messages.RedactedReasoning(b.Data))
		}
	}
	if len(parts) > 0 {
		if text.Len() > 0 {
			parts = append(parts, messages.Text(text.String()))
		}
		out.Parts = parts
	} else {
		out.Content = text.String()
	}

	usage := &chat.Usage{
		PromptTokens:     msg.Usage.InputTokens,
		CompletionTokens: msg.Usage.OutputTokens,
		CachedTokens:     msg.Usage.CacheReadInputTokens,
	}
	usage.Normalize()

	return &chat.Result{
		ID:      msg.ID,
		Model:   string(msg.Model),
		Created: strfmt.DateTime(time.Now()),
		Usage:   usage,
		Choices: []chat.Choice{{
			Index:        0,
			Message:      out,
			FinishReason: FinishReason(string(msg.StopReason)),
		}},
	}
}

// ParseStream decodes messages API stream events.
func (a *Adapter) ParseStream(ctx context.Context, frames provider.Frames, _ *chat.Request, _ *events.Handler) iter.Seq2[*chat.Result, error] {
	return func(yield func(*chat.Result, error) bool) {
		var id, model string
		for frame, err := range frames {
			if err != nil {
				yield(nil, err)
				return
			}
			if ctx.Err() != nil {
				yield(nil, provider.ContextError(provider.Anthropic, ctx.Err()))
				return
			}
			if !gjson.ValidBytes(frame) {
				slog.DebugContext(ctx, "skipping malformed stream frame", "provider", provider.Anthropic, "frame", string(frame))
				continue
			}
			switch gjson.GetBytes(frame, "type").String() {
			case "error":
				perr := provider.NewError(provider.KindUpstream, provider.Anthropic, gjson.GetBytes(frame, "error.message").String(), nil)
				perr.Raw = frame
				yield(nil, perr)
				return
			case "message_stop":
				return
			case "ping":
				continue
			}

			var ev anthropic.MessageStreamEventUnion
			if err := json.Unmarshal(frame, &ev); err != nil {
				slog.DebugContext(ctx, "skipping undecodable stream event", "provider", provider.Anthropic, slog.String("error", err.Error()))
				continue
			}
			res := &chat.Result{ID: id, Model: model, Created: strfmt.DateTime(time.Now())}
			delta := &messages.Message{}

			switch e := ev.AsAny().(type) {
			case anthropic.MessageStartEvent:
				id, model = e.Message.ID, string(e.Message.Model)
				res.ID, res.Model = id, model
				delta.Role = messages.RoleAssistant
				res.Usage = &chat.Usage{
					PromptTokens: e.Message.Usage.InputTokens,
					CachedTokens: e.Message.Usage.CacheReadInputTokens,
				}
			case anthropic.ContentBlockStartEvent:
				switch e.ContentBlock.Type {
				case "tool_use":
					delta.ToolCalls = []messages.ToolCall{{
						Index:    int(e.Index),
						ID:       e.ContentBlock.ID,
						Type:     "function",
						Function: messages.FunctionData{Name: e.ContentBlock.Name},
					}}
				case "redacted_thinking":
					delta.Parts = messages.Parts{messages.RedactedReasoning(e.ContentBlock.Data)}
				case "text":
					if e.ContentBlock.Text == "" {
						continue
					}
					delta.Content = e.ContentBlock.Text
				default:
					continue
				}
			case anthropic.ContentBlockDeltaEvent:
				switch d := e.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					delta.Content = d.Text
				case anthropic.InputJSONDelta:
					delta.ToolCalls = []messages.ToolCall{{
						Index:    int(e.Index),
						Type:     "function",
						Function: messages.FunctionData{Arguments: d.PartialJSON},
					}}
				case anthropic.ThinkingDelta:
					delta.Parts = messages.Parts{messages.Reasoning(d.Thinking, "")}
				case anthropic.SignatureDelta:
					delta.Parts = messages.Parts{messages.Reasoning("", d.Signature)}
				default:
					continue
				}
			case anthropic.MessageDeltaEvent:
				res.Kind = chat.StreamFinishData
				res.Usage = &chat.Usage{CompletionTokens: e.Usage.OutputTokens}
				res.Choices = []chat.Choice{{Index: 0, FinishReason: FinishReason(string(e.Delta.StopReason))}}
				if !yield(res, nil) {
					return
				}
				continue
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

// FinishReason maps an Anthropic stop reason to the normalized value.
func FinishReason(reason string) chat.FinishReason {
	switch reason {
	case "":
		return chat.FinishUnset
	case "end_turn", "pause_turn":
		return chat.FinishEndTurn
	case "max_tokens":
		return chat.FinishLength
	case "stop_sequence":
		return chat.FinishStopSequence
	case "tool_use":
		return chat.FinishToolCalls
	case "refusal":
		return chat.FinishContentFilter
	default:
		return chat.FinishOther
	}
}
