package ollama

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/uuidx"
	"github.com/casualjim/confab/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/ollama/ollama/api"
	"github.com/tidwall/gjson"
)

// ParseResult decodes a non-streamed /api/chat response.
func (a *Adapter) ParseResult(data []byte) *chat.Result {
	var resp api.ChatResponse
	if !gjson.ValidBytes(data) || gjson.GetBytes(data, "error").Exists() {
		return nil
	}
	if err := json.Unmarshal(data, &resp); err != nil || (resp.Model == "" && resp.Message.Role == "") {
		return nil
	}

	msg := messages.New(messages.RoleAssistant)
	calls := toolCalls(resp.Message.ToolCalls, 0)
	applyMessage(&msg, resp.Message, calls)

	res := baseResult(&resp)
	res.Choices = []chat.Choice{{
		Message:      msg,
		FinishReason: finishReason(resp.DoneReason, len(calls) > 0),
	}}
	res.Usage = usage(&resp)
	return res
}

// ParseStream decodes NDJSON chunks. The final chunk has done set and carries the
// finish reason together with token counts.
func (a *Adapter) ParseStream(ctx context.Context, frames provider.Frames, _ *chat.Request, _ *events.Handler) iter.Seq2[*chat.Result, error] {
	return func(yield func(*chat.Result, error) bool) {
		var seenCalls int
		for frame, err := range frames {
			if err != nil {
				yield(nil, err)
				return
			}
			if ctx.Err() != nil {
				yield(nil, provider.ContextError(provider.Ollama, ctx.Err()))
				return
			}
			if !gjson.ValidBytes(frame) {
				slog.DebugContext(ctx, "skipping malformed stream frame", "provider", provider.Ollama, "frame", string(frame))
				continue
			}
			if e := gjson.GetBytes(frame, "error"); e.Exists() {
				perr := provider.NewError(provider.KindUpstream, provider.Ollama, e.String(), nil)
				perr.Raw = frame
				yield(nil, perr)
				return
			}

			var resp api.ChatResponse
			if err := json.Unmarshal(frame, &resp); err != nil {
				slog.DebugContext(ctx, "skipping undecodable stream frame", "provider", provider.Ollama, "error", err)
				continue
			}

			res := baseResult(&resp)
			calls := toolCalls(resp.Message.ToolCalls, seenCalls)
			seenCalls += len(calls)
			if resp.Message.Content != "" || resp.Message.Thinking != "" || len(calls) > 0 {
				delta := &messages.Message{Role: messages.ParseRole(resp.Message.Role)}
				if delta.Role == messages.RoleUnknown {
					delta.Role = ""
				}
				applyMessage(delta, resp.Message, calls)
				res.Choices = append(res.Choices, chat.Choice{Delta: delta})
			}
			if !resp.Done {
				if len(res.Choices) > 0 && !yield(res, nil) {
					return
				}
				continue
			}

			if len(res.Choices) > 0 && !yield(res, nil) {
				return
			}
			yield(&chat.Result{
				ID:      res.ID,
				Model:   res.Model,
				Created: res.Created,
				Kind:    chat.StreamFinishData,
				Choices: []chat.Choice{{FinishReason: finishReason(resp.DoneReason, seenCalls > 0)}},
				Usage:   usage(&resp),
			}, nil)
			return
		}
	}
}

func baseResult(resp *api.ChatResponse) *chat.Result {
	created := resp.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &chat.Result{Model: resp.Model, Created: strfmt.DateTime(created)}
}

func usage(resp *api.ChatResponse) *chat.Usage {
	if resp.PromptEvalCount == 0 && resp.EvalCount == 0 {
		return nil
	}
	u := &chat.Usage{PromptTokens: int64(resp.PromptEvalCount), CompletionTokens: int64(resp.EvalCount)}
	u.Normalize()
	return u
}

// toolCalls converts Ollama calls, which never carry ids.
func toolCalls(in []api.ToolCall, first int) []messages.ToolCall {
	var out []messages.ToolCall
	for i, tc := range in {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil || string(args) == "null" {
			args = []byte("{}")
		}
		out = append(out, messages.ToolCall{
			Index:    first + i,
			ID:       "call_" + uuidx.NewString(),
			Type:     "function",
			Function: messages.FunctionData{Name: tc.Function.Name, Arguments: string(args)},
		})
	}
	return out
}

func applyMessage(m *messages.Message, in api.Message, calls []messages.ToolCall) {
	m.ToolCalls = calls
	if in.Thinking == "" {
		m.Content = in.Content
		return
	}
	m.Parts = messages.Parts{messages.Reasoning(in.Thinking, "")}
	if in.Content != "" {
		m.Parts = append(m.Parts, messages.Text(in.Content))
	}
}

// finishReason maps Ollama's done_reason. Ollama says "stop" for turns that end
// in tool calls.
func finishReason(reason string, sawCalls bool) chat.FinishReason {
	switch reason {
	case "stop", "":
		if sawCalls {
			return chat.FinishToolCalls
		}
		return chat.FinishEndTurn
	case "length":
		return chat.FinishLength
	default:
		return chat.FinishOther
	}
}
