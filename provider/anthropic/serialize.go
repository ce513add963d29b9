package anthropic

import (
	"fmt"
	"strings"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/jsonx"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

type wireRequest struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens"`
	System        []wireBlock     `json:"system,omitempty"`
	Messages      []wireMessage   `json:"messages"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []wireTool      `json:"tools,omitempty"`
	ToolChoice    *wireToolChoice `json:"tool_choice,omitempty"`
	Thinking      *wireThinking   `json:"thinking,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Metadata      *wireMetadata   `json:"metadata,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *wireSource     `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Data      string          `json:"data,omitempty"`
}

type wireSource struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	FileID    string `json:"file_id,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use,omitempty"`
}

type wireThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type wireMetadata struct {
	UserID string `json:"user_id"`
}

// effortBudgets maps a coarse reasoning effort to a thinking budget.
var effortBudgets = map[chat.ReasoningEffort]int{
	chat.ReasoningEffortLow:    1024,
	chat.ReasoningEffortMedium: 4096,
	chat.ReasoningEffortHigh:   16384,
}

// SerializeRequest renders the effective request as a messages API body.
func (a *Adapter) SerializeRequest(req *chat.Request) (provider.WireBody, error) {
	if req.ResponseFormat != nil && req.ResponseFormat.Type != chat.ResponseFormatText {
		return provider.WireBody{}, provider.NewError(provider.KindSerialization, provider.Anthropic,
			fmt.Sprintf("response format %q is not supported", req.ResponseFormat.Type), nil)
	}

	wr := wireRequest{
		Model:         req.Model,
		MaxTokens:     a.defaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Stream:        req.Stream,
	}
	if req.MaxTokens != nil {
		wr.MaxTokens = *req.MaxTokens
	}
	if req.User != "" {
		wr.Metadata = &wireMetadata{UserID: req.User}
	}

	budget := req.ReasoningBudget
	if budget == 0 {
		budget = effortBudgets[req.ReasoningEffort]
	}
	if budget > 0 {
		wr.Thinking = &wireThinking{Type: "enabled", BudgetTokens: budget}
		if wr.MaxTokens <= budget {
			wr.MaxTokens = budget + a.defaultMaxTokens
		}
		wr.Temperature = nil
		wr.TopP = nil
	}

	system, msgs, err := a.serializeMessages(req)
	if err != nil {
		return provider.WireBody{}, err
	}
	wr.System = system
	wr.Messages = msgs

	for _, t := range req.Tools {
		params, err := t.ParametersJSON()
		if err != nil {
			return provider.WireBody{}, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: params})
	}
	if len(req.Tools) > 0 && (req.ToolChoice != nil || req.ParallelToolCalls != nil) {
		wr.ToolChoice = toolChoice(req)
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
	return provider.WireBody{
		Body:    body,
		Kind:    kind,
		Framing: provider.FramingSSE,
		Headers: a.requestHeaders(),
	}, nil
}

func toolChoice(req *chat.Request) *wireToolChoice {
	tc := &wireToolChoice{Type: "auto"}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case chat.ToolChoiceNone:
			tc.Type = "none"
		case chat.ToolChoiceRequired:
			tc.Type = "any"
		case chat.ToolChoiceFunction:
			tc.Type = "tool"
			tc.Name = req.ToolChoice.Function
		}
	}
	if req.ParallelToolCalls != nil && !*req.ParallelToolCalls && tc.Type != "none" {
		tc.DisableParallelToolUse = true
	}
	return tc
}

// serializeMessages lifts system messages into the system prompt, renders tool
// results as user content and merges consecutive turns of the same role.
func (a *Adapter) serializeMessages(req *chat.Request) ([]wireBlock, []wireMessage, error) {
	var system []wireBlock
	var out []wireMessage
	push := func(role string, blocks ...wireBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, wireMessage{Role: role, Content: blocks})
	}

	for i, m := range req.Messages {
		switch m.Role {
		case messages.RoleSystem:
			if text := m.Text(); text != "" {
				system = append(system, wireBlock{Type: "text", Text: text})
			}
		case messages.RoleUser:
			blocks, err := userBlocks(m)
			if err != nil {
				return nil, nil, provider.NewError(provider.KindSerialization, provider.Anthropic, fmt.Sprintf("message %d", i), err)
			}
			push("user", blocks...)
		case messages.RoleAssistant:
			push("assistant", assistantBlocks(m)...)
		case messages.RoleTool:
			push("user", wireBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Text()})
		default:
			return nil, nil, provider.NewError(provider.KindSerialization, provider.Anthropic,
				fmt.Sprintf("message %d has unsupported role %q", i, m.Role), nil)
		}
	}
	return system, out, nil
}

func userBlocks(m messages.Message) ([]wireBlock, error) {
	if len(m.Parts) == 0 {
		if m.Content == "" {
			return nil, nil
		}
		return []wireBlock{{Type: "text", Text: m.Content}}, nil
	}
	blocks := make([]wireBlock, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.TextPart:
			blocks = append(blocks, wireBlock{Type: "text", Text: part.Text})
		case messages.ImagePart:
			blocks = append(blocks, wireBlock{Type: "image", Source: source(part.URL, part.MimeType)})
		case messages.FileLinkPart:
			blocks = append(blocks, wireBlock{Type: "document", Source: source(part.URI, part.MimeType)})
		case messages.AudioPart:
			return nil, fmt.Errorf("audio input is not supported")
		case messages.ReasoningPart:
		default:
			return nil, fmt.Errorf("unsupported part %T", p)
		}
	}
	return blocks, nil
}

// source renders a media reference. data: URIs are inlined, file_ ids reference
// uploaded files and everything else is fetched by URL.
func source(uri, mimeType string) *wireSource {
	if rest, ok := strings.CutPrefix(uri, "data:"); ok {
		meta, data, _ := strings.Cut(rest, ",")
		mediaType := strings.TrimSuffix(meta, ";base64")
		if mediaType == "" {
			mediaType = mimeType
		}
		return &wireSource{Type: "base64", MediaType: mediaType, Data: data}
	}
	if strings.HasPrefix(uri, "file_") {
		return &wireSource{Type: "file", FileID: uri}
	}
	return &wireSource{Type: "url", URL: uri}
}

func assistantBlocks(m messages.Message) []wireBlock {
	var blocks []wireBlock
	text := m.Content
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.ReasoningPart:
			if part.IsRedacted() {
				blocks = append(blocks, wireBlock{Type: "redacted_thinking", Data: part.Signature})
			} else {
				blocks = append(blocks, wireBlock{Type: "thinking", Thinking: part.Content, Signature: part.Signature})
			}
		case messages.TextPart:
			text += part.Text
		}
	}
	if text == "" && m.Audio != nil {
		text = m.Audio.Transcript
	}
	if text != "" {
		blocks = append(blocks, wireBlock{Type: "text", Text: text})
	}
	for _, tc := range m.ToolCalls {
		input := json.RawMessage(tc.Function.Arguments)
		if !gjson.Valid(tc.Function.Arguments) || !gjson.Parse(tc.Function.Arguments).IsObject() {
			input = json.RawMessage(`{}`)
		}
		blocks = append(blocks, wireBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return blocks
}
