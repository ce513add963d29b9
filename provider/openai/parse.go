package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"iter"
	"log/slog"
	"time"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var doneFrame = []byte("[DONE]")

// ParseResult decodes a chat completion body. It returns nil when the payload is
// not a chat completion.
func (a *Adapter) ParseResult(data []byte) *chat.Result {
	if !gjson.ValidBytes(data) {
		return nil
	}
	doc := gjson.ParseBytes(data)
	if !doc.Get("choices").IsArray() {
		return nil
	}
	var cc openai.ChatCompletion
	if err := json.Unmarshal(data, &cc); err != nil {
		slog.Debug("decode chat completion", "provider", a.id, "error", err)
		return nil
	}

	res := &chat.Result{
		ID:        cc.ID,
		Model:     cc.Model,
		Created:   unixTime(cc.Created),
		Usage:     parseUsage(doc.Get("usage")),
		Extension: a.extension(doc),
	}
	rawChoices := doc.Get("choices").Array()
	for i, c := range cc.Choices {
		raw := gjson.Result{}
		if i < len(rawChoices) {
			raw = rawChoices[i]
		}
		msg := messages.New(messages.RoleAssistant)
		msg.Timestamp = res.Created
		text := c.Message.Content
		if text == "" && c.Message.Refusal != "" {
			text = c.Message.Refusal
		}
		if reasoning := a.reasoningOf(raw.Get("message")); reasoning != "" {
			msg.Parts = messages.Parts{messages.Reasoning(reasoning, "")}
			if text != "" {
				msg.Parts = append(msg.Parts, messages.Text(text))
			}
		} else {
			msg.Content = text
		}
		for j, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, messages.ToolCall{
				Index: j,
				ID:    tc.ID,
				Type:  "function",
				Function: messages.FunctionData{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		msg.Audio = parseAudio(raw.Get("message.audio"))
		res.Choices = append(res.Choices, chat.Choice{
			Index:        int(c.Index),
			Message:      msg,
			FinishReason: FinishReason(string(c.FinishReason)),
		})
	}
	return res
}

// ParseStream decodes chat completion chunks. When token streaming is disabled each
// frame is a whole completion delivered as a complete assistant message.
func (a *Adapter) ParseStream(ctx context.Context, frames provider.Frames, _ *chat.Request, _ *events.Handler) iter.Seq2[*chat.Result, error] {
	return func(yield func(*chat.Result, error) bool) {
		for frame, err := range frames {
			if err != nil {
				yield(nil, err)
				return
			}
			if ctx.Err() != nil {
				yield(nil, provider.ContextError(a.id, ctx.Err()))
				return
			}
			frame = bytes.TrimSpace(frame)
			if len(frame) == 0 {
				continue
			}
			if bytes.Equal(frame, doneFrame) {
				return
			}
			if e := gjson.GetBytes(frame, "error"); e.Exists() {
				perr := provider.NewError(provider.KindUpstream, a.id, e.Get("message").String(), nil)
				perr.Raw = frame
				yield(nil, perr)
				return
			}

			var res *chat.Result
			if a.noTokenStreaming {
				res = a.ParseResult(frame)
				if res != nil {
					res.Kind = chat.StreamAppendAssistantMessage
				}
			} else {
				res = a.parseChunk(frame)
			}
			if res == nil {
				slog.DebugContext(ctx, "skipping malformed stream frame", "provider", a.id, "frame", string(frame))
				continue
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}

func (a *Adapter) parseChunk(frame []byte) *chat.Result {
	if !gjson.ValidBytes(frame) {
		return nil
	}
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(frame, &chunk); err != nil {
		return nil
	}
	doc := gjson.ParseBytes(frame)
	res := &chat.Result{
		ID:        chunk.ID,
		Model:     chunk.Model,
		Created:   unixTime(chunk.Created),
		Usage:     parseUsage(doc.Get("usage")),
		Extension: a.extension(doc),
	}
	if len(chunk.Choices) == 0 {
		if res.Usage == nil {
			return nil
		}
		res.Kind = chat.StreamFinishData
		return res
	}

	rawChoices := doc.Get("choices").Array()
	for i, c := range chunk.Choices {
		raw := gjson.Result{}
		if i < len(rawChoices) {
			raw = rawChoices[i]
		}
		delta := &messages.Message{
			Role:    messages.ParseRole(string(c.Delta.Role)),
			Content: c.Delta.Content,
		}
		if delta.Role == messages.RoleUnknown {
			delta.Role = ""
		}
		if reasoning := a.reasoningOf(raw.Get("delta")); reasoning != "" {
			delta.Parts = messages.Parts{messages.Reasoning(reasoning, "")}
		}
		for _, tc := range c.Delta.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, messages.ToolCall{
				Index: int(tc.Index),
				ID:    tc.ID,
				Type:  "function",
				Function: messages.FunctionData{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		delta.Audio = parseAudio(raw.Get("delta.audio"))
		res.Choices = append(res.Choices, chat.Choice{
			Index:        int(c.Index),
			Delta:        delta,
			FinishReason: FinishReason(string(c.FinishReason)),
		})
	}
	return res
}

// FinishReason maps a chat completions finish reason to the normalized value.
func FinishReason(reason string) chat.FinishReason {
	switch reason {
	case "":
		return chat.FinishUnset
	case "stop":
		return chat.FinishEndTurn
	case "length":
		return chat.FinishLength
	case "tool_calls", "function_call":
		return chat.FinishToolCalls
	case "content_filter":
		return chat.FinishContentFilter
	default:
		return chat.FinishOther
	}
}

func (a *Adapter) reasoningOf(msg gjson.Result) string {
	if a.reasoningField == "" || !msg.Exists() {
		return ""
	}
	return msg.Get(a.reasoningField).String()
}

// extension collects the configured top-level members of a response.
func (a *Adapter) extension(doc gjson.Result) gjson.Result {
	if len(a.extensionKeys) == 0 {
		return gjson.Result{}
	}
	out := []byte(`{}`)
	found := false
	for _, key := range a.extensionKeys {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		var err error
		if out, err = sjson.SetRawBytes(out, key, []byte(v.Raw)); err != nil {
			continue
		}
		found = true
	}
	if !found {
		return gjson.Result{}
	}
	return gjson.ParseBytes(out)
}

func parseUsage(u gjson.Result) *chat.Usage {
	if !u.Exists() || u.Type == gjson.Null {
		return nil
	}
	usage := &chat.Usage{
		PromptTokens:     u.Get("prompt_tokens").Int(),
		CompletionTokens: u.Get("completion_tokens").Int(),
		TotalTokens:      u.Get("total_tokens").Int(),
		CachedTokens:     u.Get("prompt_tokens_details.cached_tokens").Int(),
		ReasoningTokens:  u.Get("completion_tokens_details.reasoning_tokens").Int(),
	}
	usage.Normalize()
	return usage
}

func parseAudio(a gjson.Result) *messages.AudioData {
	if !a.Exists() || a.Type == gjson.Null {
		return nil
	}
	out := &messages.AudioData{
		ID:         a.Get("id").String(),
		Transcript: a.Get("transcript").String(),
	}
	if data := a.Get("data").String(); data != "" {
		if b, err := base64.StdEncoding.DecodeString(data); err == nil {
			out.Data = b
		}
	}
	if exp := a.Get("expires_at").Int(); exp > 0 {
		out.ExpiresAt = unixTime(exp)
	}
	return out
}

func unixTime(sec int64) strfmt.DateTime {
	if sec == 0 {
		return strfmt.DateTime(time.Now())
	}
	return strfmt.DateTime(time.Unix(sec, 0).UTC())
}
