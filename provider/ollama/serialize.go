package ollama

import (
	"encoding/base64"
	"errors"
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
	Model     string          `json:"model"`
	Messages  []wireMessage   `json:"messages"`
	Tools     []wireTool      `json:"tools,omitempty"`
	Stream    bool            `json:"stream"`
	Format    json.RawMessage `json:"format,omitempty"`
	Options   map[string]any  `json:"options,omitempty"`
	Think     any             `json:"think,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Thinking  string         `json:"thinking,omitempty"`
	Images    []string       `json:"images,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type wireToolCall struct {
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Index     int             `json:"index,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

var errImageURL = errors.New("images must be inline data URIs")

// SerializeRequest renders the effective request as an /api/chat body. Streaming
// has to be disabled explicitly since Ollama streams by default.
func (a *Adapter) SerializeRequest(req *chat.Request) (provider.WireBody, error) {
	wr := wireRequest{
		Model:     req.Model,
		Stream:    req.Stream,
		Options:   a.runtimeOptions(req),
		KeepAlive: a.keepAlive,
	}

	names := make(map[string]string)
	for i, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Text()}
		switch m.Role {
		case messages.RoleSystem:
		case messages.RoleUser:
			images, err := images(m)
			if err != nil {
				return provider.WireBody{}, provider.NewError(provider.KindSerialization, provider.Ollama, fmt.Sprintf("message %d", i), err)
			}
			wm.Images = images
		case messages.RoleAssistant:
			var thinking []string
			for _, r := range m.Reasoning() {
				thinking = append(thinking, r.Content)
			}
			wm.Thinking = strings.Join(thinking, "")
			if wm.Content == "" && m.Audio != nil {
				wm.Content = m.Audio.Transcript
			}
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Function.Name
				args := json.RawMessage(tc.Function.Arguments)
				if !gjson.Valid(tc.Function.Arguments) || !gjson.Parse(tc.Function.Arguments).IsObject() {
					args = json.RawMessage(`{}`)
				}
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{Function: wireFunctionCall{
					Index:     tc.Index,
					Name:      tc.Function.Name,
					Arguments: args,
				}})
			}
		case messages.RoleTool:
			wm.ToolName = m.Name
			if wm.ToolName == "" {
				wm.ToolName = names[m.ToolCallID]
			}
		default:
			return provider.WireBody{}, provider.NewError(provider.KindSerialization, provider.Ollama,
				fmt.Sprintf("message %d has unsupported role %q", i, m.Role), nil)
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
			Function: wireFunction{Name: t.Name, Description: t.Description, Parameters: params},
		})
	}

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case chat.ResponseFormatJSONObject:
			wr.Format = json.RawMessage(`"json"`)
		case chat.ResponseFormatJSONSchema:
			schema, err := rf.SchemaJSON()
			if err != nil {
				return provider.WireBody{}, fmt.Errorf("response schema: %w", err)
			}
			wr.Format = schema
		}
	}
	switch {
	case req.ReasoningEffort != "":
		wr.Think = string(req.ReasoningEffort)
	case req.ReasoningBudget > 0:
		wr.Think = true
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return provider.WireBody{}, fmt.Errorf("encode request: %w", err)
	}
	if body, err = jsonx.MergeTopLevel(body, req.Extensions); err != nil {
		return provider.WireBody{}, fmt.Errorf("merge extensions: %w", err)
	}

	kind, framing := provider.EndpointChat, provider.FramingWhole
	if req.Stream {
		kind, framing = provider.EndpointChatStream, provider.FramingNDJSON
	}
	return provider.WireBody{Body: body, Kind: kind, Framing: framing}, nil
}

func (a *Adapter) runtimeOptions(req *chat.Request) map[string]any {
	o := make(map[string]any)
	if req.Temperature != nil {
		o["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		o["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		o["num_predict"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		o["stop"] = req.Stop
	}
	if req.Seed != nil {
		o["seed"] = *req.Seed
	}
	if req.FrequencyPenalty != nil {
		o["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		o["presence_penalty"] = *req.PresencePenalty
	}
	if a.numCtx > 0 {
		o["num_ctx"] = a.numCtx
	}
	if len(o) == 0 {
		return nil
	}
	return o
}

// images extracts base64 image payloads. Ollama does not fetch remote images.
func images(m messages.Message) ([]string, error) {
	var out []string
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.ImagePart:
			rest, ok := strings.CutPrefix(part.URL, "data:")
			if !ok {
				return nil, errImageURL
			}
			_, data, _ := strings.Cut(rest, ",")
			if !validImage(data) {
				return nil, fmt.Errorf("image payload is not base64")
			}
			out = append(out, data)
		case messages.AudioPart, messages.FileLinkPart:
			return nil, fmt.Errorf("unsupported part %s", p.Type())
		}
	}
	return out, nil
}

func validImage(data string) bool {
	_, err := base64.StdEncoding.DecodeString(data)
	return err == nil
}
