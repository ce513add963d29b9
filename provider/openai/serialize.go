package openai

import (
	"encoding/base64"
	"fmt"
	"maps"
	"strings"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/jsonx"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

type wireRequest struct {
	Model               string              `json:"model"`
	Messages            []wireMessage       `json:"messages"`
	Temperature         *float64            `json:"temperature,omitempty"`
	TopP                *float64            `json:"top_p,omitempty"`
	MaxTokens           *int                `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                `json:"max_completion_tokens,omitempty"`
	Stop                []string            `json:"stop,omitempty"`
	Seed                *int64              `json:"seed,omitempty"`
	N                   *int                `json:"n,omitempty"`
	FrequencyPenalty    *float64            `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64            `json:"presence_penalty,omitempty"`
	Tools               []wireTool          `json:"tools,omitempty"`
	ToolChoice          json.RawMessage     `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool               `json:"parallel_tool_calls,omitempty"`
	ResponseFormat      json.RawMessage     `json:"response_format,omitempty"`
	ReasoningEffort     string              `json:"reasoning_effort,omitempty"`
	Modalities          []string            `json:"modalities,omitempty"`
	Audio               *chat.AudioOutput   `json:"audio,omitempty"`
	Stream              bool                `json:"stream,omitempty"`
	StreamOptions       *chat.StreamOptions `json:"stream_options,omitempty"`
	User                string              `json:"user,omitempty"`
	Metadata            map[string]string   `json:"metadata,omitempty"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Audio      *wireAudioRef   `json:"audio,omitempty"`
}

type wireAudioRef struct {
	ID string `json:"id"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      bool            `json:"strict,omitempty"`
}

type wirePart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ImageURL   *wireImageURL   `json:"image_url,omitempty"`
	InputAudio *wireInputAudio `json:"input_audio,omitempty"`
	File       *wireFile       `json:"file,omitempty"`
}

type wireImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type wireInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type wireFile struct {
	FileID   string `json:"file_id,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// SerializeRequest renders the effective request as a chat completions body.
func (a *Adapter) SerializeRequest(req *chat.Request) (provider.WireBody, error) {
	reasoning := IsReasoningModel(req.Model)

	wr := wireRequest{
		Model:             req.Model,
		Stop:              req.Stop,
		Seed:              req.Seed,
		N:                 req.N,
		FrequencyPenalty:  req.FrequencyPenalty,
		PresencePenalty:   req.PresencePenalty,
		ParallelToolCalls: req.ParallelToolCalls,
		ReasoningEffort:   string(req.ReasoningEffort),
		Modalities:        req.Modalities,
		Audio:             req.Audio,
		User:              req.User,
		Metadata:          req.Metadata,
	}
	if reasoning {
		wr.MaxCompletionTokens = req.MaxTokens
	} else {
		wr.Temperature = req.Temperature
		wr.TopP = req.TopP
		wr.MaxTokens = req.MaxTokens
	}

	msgs, err := a.serializeMessages(req, reasoning)
	if err != nil {
		return provider.WireBody{}, err
	}
	wr.Messages = msgs

	for _, t := range req.Tools {
		params, err := t.ParametersJSON()
		if err != nil {
			return provider.WireBody{}, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		wr.Tools = append(wr.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
				Strict:      t.Strict,
			},
		})
	}
	if req.ToolChoice != nil && len(req.Tools) > 0 {
		if wr.ToolChoice, err = a.toolChoice(*req.ToolChoice); err != nil {
			return provider.WireBody{}, err
		}
	}
	if req.ResponseFormat != nil {
		if wr.ResponseFormat, err = responseFormat(*req.ResponseFormat); err != nil {
			return provider.WireBody{}, err
		}
	}

	framing := provider.FramingSSE
	if req.Stream && a.noTokenStreaming {
		framing = provider.FramingWhole
	} else if req.Stream {
		wr.Stream = true
		if req.WantsUsage() && !a.noStreamOptions {
			wr.StreamOptions = &chat.StreamOptions{IncludeUsage: true}
		}
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return provider.WireBody{}, fmt.Errorf("encode request: %w", err)
	}
	for _, p := range a.dropParams {
		if body, err = sjson.DeleteBytes(body, p); err != nil {
			return provider.WireBody{}, err
		}
	}
	if body, err = jsonx.MergeTopLevel(body, req.Extensions); err != nil {
		return provider.WireBody{}, fmt.Errorf("merge extensions: %w", err)
	}
	for _, hook := range a.beforeSend {
		if body, err = hook(body, req); err != nil {
			return provider.WireBody{}, err
		}
	}

	kind := provider.EndpointChat
	if req.Stream {
		kind = provider.EndpointChatStream
	}
	return provider.WireBody{
		Body:    body,
		Kind:    kind,
		Framing: framing,
		Headers: maps.Clone(a.headers),
	}, nil
}

func (a *Adapter) serializeMessages(req *chat.Request, reasoning bool) ([]wireMessage, error) {
	out := make([]wireMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Name: m.Name}
		switch m.Role {
		case messages.RoleSystem:
			if reasoning && a.developerRole {
				wm.Role = "developer"
			}
			wm.Content = mustString(m.Text())
		case messages.RoleUser:
			content, err := userContent(m)
			if err != nil {
				return nil, provider.NewError(provider.KindSerialization, a.id, fmt.Sprintf("message %d", i), err)
			}
			wm.Content = content
		case messages.RoleAssistant:
			a.assistantMessage(req, m, &wm)
		case messages.RoleTool:
			wm.ToolCallID = m.ToolCallID
			wm.Name = ""
			wm.Content = mustString(m.Text())
		default:
			return nil, provider.NewError(provider.KindSerialization, a.id, fmt.Sprintf("message %d has unsupported role %q", i, m.Role), nil)
		}
		out = append(out, wm)
	}
	return out, nil
}

func (a *Adapter) assistantMessage(req *chat.Request, m messages.Message, wm *wireMessage) {
	text := m.Text()
	if m.Audio != nil {
		if req.AudioStrategy == chat.PreferNative && !m.Audio.Expired(req.IssuedAt) {
			wm.Audio = &wireAudioRef{ID: m.Audio.ID}
			text = ""
		} else if text == "" {
			text = m.Audio.Transcript
		}
	}
	if text != "" || (len(m.ToolCalls) == 0 && wm.Audio == nil) {
		wm.Content = mustString(text)
	}
	for _, tc := range m.ToolCalls {
		tpe := tc.Type
		if tpe == "" {
			tpe = "function"
		}
		wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: tpe,
			Function: wireFunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
}

func userContent(m messages.Message) (json.RawMessage, error) {
	if len(m.Parts) == 0 {
		return mustString(m.Content), nil
	}
	parts := make([]wirePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.TextPart:
			parts = append(parts, wirePart{Type: "text", Text: part.Text})
		case messages.ImagePart:
			parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: part.URL, Detail: part.Detail}})
		case messages.AudioPart:
			parts = append(parts, wirePart{Type: "input_audio", InputAudio: &wireInputAudio{
				Data:   base64.StdEncoding.EncodeToString(part.Data),
				Format: part.Format,
			}})
		case messages.FileLinkPart:
			f := &wireFile{Filename: part.Name}
			if strings.HasPrefix(part.URI, "data:") {
				f.FileData = part.URI
			} else {
				f.FileID = part.URI
			}
			parts = append(parts, wirePart{Type: "file", File: f})
		case messages.ReasoningPart:
			// reasoning is never replayed to chat completions
		default:
			return nil, fmt.Errorf("unsupported part %T", p)
		}
	}
	return json.Marshal(parts)
}

func (a *Adapter) toolChoice(tc chat.ToolChoice) (json.RawMessage, error) {
	switch tc.Mode {
	case chat.ToolChoiceAuto, chat.ToolChoiceNone:
		return mustString(string(tc.Mode)), nil
	case chat.ToolChoiceRequired:
		if a.requiredToolChoice != "" {
			return mustString(a.requiredToolChoice), nil
		}
		return mustString("required"), nil
	case chat.ToolChoiceFunction:
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.Function},
		})
	default:
		return nil, provider.NewError(provider.KindSerialization, a.id, fmt.Sprintf("unknown tool choice %q", tc.Mode), nil)
	}
}

func responseFormat(f chat.ResponseFormat) (json.RawMessage, error) {
	switch f.Type {
	case chat.ResponseFormatText, chat.ResponseFormatJSONObject:
		return json.Marshal(map[string]string{"type": string(f.Type)})
	case chat.ResponseFormatJSONSchema:
		schema, err := f.SchemaJSON()
		if err != nil {
			return nil, err
		}
		name := f.Name
		if name == "" {
			name = "response"
		}
		return json.Marshal(struct {
			Type       string `json:"type"`
			JSONSchema struct {
				Name        string          `json:"name"`
				Description string          `json:"description,omitempty"`
				Schema      json.RawMessage `json:"schema"`
				Strict      bool            `json:"strict,omitempty"`
			} `json:"json_schema"`
		}{
			Type: "json_schema",
			JSONSchema: struct {
				Name        string          `json:"name"`
				Description string          `json:"description,omitempty"`
				Schema      json.RawMessage `json:"schema"`
				Strict      bool            `json:"strict,omitempty"`
			}{Name: name, Description: f.Description, Schema: schema, Strict: f.Strict},
		})
	default:
		return nil, fmt.Errorf("unknown response format %q", f.Type)
	}
}

func mustString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
