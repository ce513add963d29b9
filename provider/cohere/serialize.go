package cohere

import (
	"fmt"
	"strings"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/jsonx"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	json "github.com/goccy/go-json"
)

type wireRequest struct {
	Model            string              `json:"model"`
	Messages         []wireMessage       `json:"messages"`
	Tools            []wireTool          `json:"tools,omitempty"`
	ToolChoice       string              `json:"tool_choice,omitempty"`
	Stream           bool                `json:"stream,omitempty"`
	Temperature      *float64            `json:"temperature,omitempty"`
	P                *float64            `json:"p,omitempty"`
	MaxTokens        *int                `json:"max_tokens,omitempty"`
	StopSequences    []string            `json:"stop_sequences,omitempty"`
	Seed             *int64              `json:"seed,omitempty"`
	FrequencyPenalty *float64            `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64            `json:"presence_penalty,omitempty"`
	ResponseFormat   *wireResponseFormat `json:"response_format,omitempty"`
	Thinking         *wireThinking       `json:"thinking,omitempty"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolPlan   string          `json:"tool_plan,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type wireThinking struct {
	Type        string `json:"type"`
	TokenBudget int    `json:"token_budget,omitempty"`
}

// SerializeRequest renders the effective request as a v2 chat body.
func (a *Adapter) SerializeRequest(req *chat.Request) (provider.WireBody, error) {
	wr := wireRequest{
		Model:            req.Model,
		Stream:           req.Stream,
		Temperature:      req.Temperature,
		P:                req.TopP,
		MaxTokens:        req.MaxTokens,
		StopSequences:    req.Stop,
		Seed:             req.Seed,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}

	for i, m := range req.Messages {
		wm, err := serializeMessage(m)
		if err != nil {
			return provider.WireBody{}, provider.NewError(provider.KindSerialization, provider.Cohere, fmt.Sprintf("message %d", i), err)
		}
		wr.Messages = append(wr.Messages, wm)
	}

	for _, t := range req.Tools {
		params, err := t.ParametersJSON()
		if err != nil {
			return provider.WireBody{}, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		wr.Tools = append(wr.Tools, wireTool{
			Type:     "function",
			Function: wireToolFunction{Name: t.Name, Description: t.Description, Parameters: params},
		})
	}
	if req.ToolChoice != nil && len(req.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case chat.ToolChoiceRequired, chat.ToolChoiceFunction:
			wr.ToolChoice = "REQUIRED"
		case chat.ToolChoiceNone:
			wr.ToolChoice = "NONE"
		}
	}

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case chat.ResponseFormatJSONObject:
			wr.ResponseFormat = &wireResponseFormat{Type: "json_object"}
		case chat.ResponseFormatJSONSchema:
			schema, err := rf.SchemaJSON()
			if err != nil {
				return provider.WireBody{}, fmt.Errorf("response schema: %w", err)
			}
			wr.ResponseFormat = &wireResponseFormat{Type: "json_object", JSONSchema: schema}
		}
	}
	if req.ReasoningBudget > 0 {
		wr.Thinking = &wireThinking{Type: "enabled", TokenBudget: req.ReasoningBudget}
	} else if req.ReasoningEffort != "" {
		wr.Thinking = &wireThinking{Type: "enabled"}
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return provider.WireBody{}, fmt.Errorf("encode request: %w", err)
	}
	if body, err = jsonx.MergeTopLevel(body, req.Extensions); err != nil {
		return provider.WireBody{}, fmt.Errorf("merge extensions: %w", err)
	}

	kind := provider.EndpointChat
	if req.Stream {
		kind = provider.EndpointChatStream
	}
	return provider.WireBody{Body: body, Kind: kind, Framing: provider.FramingSSE}, nil
}

func serializeMessage(m messages.Message) (wireMessage, error) {
	wm := wireMessage{Role: string(m.Role)}
	switch m.Role {
	case messages.RoleSystem:
		wm.Content = textContent(m.Text())
	case messages.RoleUser:
		if len(m.Parts) == 0 {
			wm.Content = textContent(m.Content)
			break
		}
		var content []wireContent
		for _, p := range m.Parts {
			switch part := p.(type) {
			case messages.TextPart:
				content = append(content, wireContent{Type: "text", Text: part.Text})
			case messages.ImagePart:
				content = append(content, wireContent{Type: "image_url", ImageURL: &wireImageURL{URL: part.URL, Detail: part.Detail}})
			case messages.ReasoningPart:
			default:
				return wm, fmt.Errorf("unsupported part %s", p.Type())
			}
		}
		raw, err := json.Marshal(content)
		if err != nil {
			return wm, err
		}
		wm.Content = raw
	case messages.RoleAssistant:
		var plan []string
		for _, r := range m.Reasoning() {
			if r.Content != "" {
				plan = append(plan, r.Content)
			}
		}
		text := m.Text()
		if text == "" && m.Audio != nil {
			text = m.Audio.Transcript
		}
		if len(m.ToolCalls) > 0 {
			wm.ToolPlan = strings.Join(plan, "")
			for _, tc := range m.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: wireFunction{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
				})
			}
		}
		if text != "" || len(m.ToolCalls) == 0 {
			wm.Content = textContent(text)
		}
	case messages.RoleTool:
		wm.ToolCallID = m.ToolCallID
		wm.Content = textContent(m.Text())
	default:
		return wm, fmt.Errorf("unsupported role %q", m.Role)
	}
	return wm, nil
}

func textContent(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
