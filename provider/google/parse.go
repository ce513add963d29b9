package google

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/uuidx"
	"github.com/casualjim/confab/provider"
	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
)

// ParseResult decodes a generateContent response. It returns nil when the payload
// has no candidates.
func (a *Adapter) ParseResult(data []byte) *chat.Result {
	if !gjson.ValidBytes(data) {
		return nil
	}
	doc := gjson.ParseBytes(data)
	if !doc.Get("candidates").IsArray() {
		return nil
	}
	res := baseResult(doc)
	for _, cand := range doc.Get("candidates").Array() {
		msg := messages.New(messages.RoleAssistant)
		parsed := parseParts(cand.Get("content.parts"), 0)
		parsed.apply(&msg)
		res.Choices = append(res.Choices, chat.Choice{
			Index:        int(cand.Get("index").Int()),
			Message:      msg,
			FinishReason: finishReason(cand.Get("finishReason").String(), len(parsed.calls) > 0),
		})
	}
	return res
}

// ParseStream decodes streamGenerateContent chunks. Each chunk carries whole
// function calls, so every call gets its own index.
func (a *Adapter) ParseStream(ctx context.Context, frames provider.Frames, _ *chat.Request, _ *events.Handler) iter.Seq2[*chat.Result, error] {
	return func(yield func(*chat.Result, error) bool) {
		calls := make(map[int]int)
		for frame, err := range frames {
			if err != nil {
				yield(nil, err)
				return
			}
			if ctx.Err() != nil {
				yield(nil, provider.ContextError(provider.Google, ctx.Err()))
				return
			}
			if !gjson.ValidBytes(frame) {
				slog.DebugContext(ctx, "skipping malformed stream frame", "provider", provider.Google, "frame", string(frame))
				continue
			}
			doc := gjson.ParseBytes(frame)
			if e := doc.Get("error"); e.Exists() {
				perr := provider.NewError(provider.KindUpstream, provider.Google, e.Get("message").String(), nil)
				perr.HTTPStatus = int(e.Get("code").Int())
				perr.Raw = frame
				yield(nil, perr)
				return
			}

			res := baseResult(doc)
			for _, cand := range doc.Get("candidates").Array() {
				idx := int(cand.Get("index").Int())
				parsed := parseParts(cand.Get("content.parts"), calls[idx])
				calls[idx] += len(parsed.calls)

				delta := &messages.Message{Role: messages.ParseRole(cand.Get("content.role").String())}
				if delta.Role == messages.RoleUnknown {
					delta.Role = ""
				}
				parsed.apply(delta)
				res.Choices = append(res.Choices, chat.Choice{
					Index:        idx,
					Delta:        delta,
					FinishReason: finishReason(cand.Get("finishReason").String(), calls[idx] > 0),
				})
			}
			if len(res.Choices) == 0 {
				if res.Usage == nil {
					continue
				}
				res.Kind = chat.StreamFinishData
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}

func baseResult(doc gjson.Result) *chat.Result {
	res := &chat.Result{
		ID:      doc.Get("responseId").String(),
		Model:   doc.Get("modelVersion").String(),
		Created: strfmt.DateTime(time.Now()),
	}
	if ts := doc.Get("createTime").String(); ts != "" {
		if t, err := strfmt.ParseDateTime(ts); err == nil {
			res.Created = t
		}
	}
	if u := doc.Get("usageMetadata"); u.Exists() {
		res.Usage = &chat.Usage{
			PromptTokens:     u.Get("promptTokenCount").Int(),
			CompletionTokens: u.Get("candidatesTokenCount").Int() + u.Get("thoughtsTokenCount").Int(),
			TotalTokens:      u.Get("totalTokenCount").Int(),
			CachedTokens:     u.Get("cachedContentTokenCount").Int(),
			ReasoningTokens:  u.Get("thoughtsTokenCount").Int(),
		}
		res.Usage.Normalize()
	}
	return res
}

type parsedParts struct {
	text      strings.Builder
	reasoning messages.Parts
	images    messages.Parts
	calls     []messages.ToolCall
}

// parseParts splits candidate parts into text, thoughts, inline images and
// function calls. Function calls get synthesized ids unless Gemini sent one.
func parseParts(parts gjson.Result, firstIndex int) *parsedParts {
	out := &parsedParts{}
	for _, p := range parts.Array() {
		sig := p.Get("thoughtSignature").String()
		switch {
		case p.Get("functionCall").Exists():
			fc := p.Get("functionCall")
			id := fc.Get("id").String()
			if id == "" {
				id = "call_" + uuidx.NewString()
			}
			if sig != "" {
				out.reasoning = append(out.reasoning, messages.Reasoning("", sig))
			}
			args := fc.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			out.calls = append(out.calls, messages.ToolCall{
				Index:    firstIndex + len(out.calls),
				ID:       id,
				Type:     "function",
				Function: messages.FunctionData{Name: fc.Get("name").String(), Arguments: args},
			})
		case p.Get("thought").Bool():
			out.reasoning = append(out.reasoning, messages.Reasoning(p.Get("text").String(), sig))
		case p.Get("inlineData").Exists():
			blob := p.Get("inlineData")
			mime := blob.Get("mimeType").String()
			if strings.HasPrefix(mime, "image/") {
				img := messages.Image("data:" + mime + ";base64," + blob.Get("data").String())
				img.MimeType = mime
				out.images = append(out.images, img)
			}
		case p.Get("text").Exists():
			out.text.WriteString(p.Get("text").String())
			if sig != "" {
				out.reasoning = append(out.reasoning, messages.Reasoning("", sig))
			}
		}
	}
	return out
}

func (p *parsedParts) apply(m *messages.Message) {
	m.ToolCalls = p.calls
	if len(p.reasoning) == 0 && len(p.images) == 0 {
		m.Content = p.text.String()
		return
	}
	parts := append(messages.Parts{}, p.reasoning...)
	if p.text.Len() > 0 {
		parts = append(parts, messages.Text(p.text.String()))
	}
	m.Parts = append(parts, p.images...)
}

// finishReason maps a Gemini finish reason. Gemini reports STOP for turns that
// end in function calls.
func finishReason(reason string, sawCalls bool) chat.FinishReason {
	switch reason {
	case "":
		return chat.FinishUnset
	case "STOP":
		if sawCalls {
			return chat.FinishToolCalls
		}
		return chat.FinishEndTurn
	case "MAX_TOKENS":
		return chat.FinishLength
	case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return chat.FinishContentFilter
	case "RECITATION":
		return chat.FinishRecitation
	case "MALFORMED_FUNCTION_CALL", "UNEXPECTED_TOOL_CALL":
		return chat.FinishMalformedToolCall
	default:
		return chat.FinishOther
	}
}
