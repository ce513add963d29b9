package google

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/jsonx"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/provider"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// unsupportedSchemaKeys are JSON schema keywords rejected by function declarations.
var unsupportedSchemaKeys = []string{"$schema", "$id", "$ref", "$defs", "additionalProperties"}

type wireRequest struct {
	Contents          []wireContent     `json:"contents"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	Tools             []wireTool        `json:"tools,omitempty"`
	ToolConfig        *wireToolConfig   `json:"toolConfig,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	InlineData       *wireBlob         `json:"inlineData,omitempty"`
	FileData         *wireFileData     `json:"fileData,omitempty"`
	FunctionCall     *wireFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResp `json:"functionResponse,omitempty"`
}

type wireBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type wireFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type wireTool struct {
	FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
}

type wireFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireToolConfig struct {
	FunctionCallingConfig struct {
		Mode                 string   `json:"mode"`
		AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
	} `json:"functionCallingConfig"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"topP,omitempty"`
	MaxOutputTokens  *int            `json:"maxOutputTokens,omitempty"`
	StopSequences    []string        `json:"stopSequences,omitempty"`
	Seed             *int64          `json:"seed,omitempty"`
	CandidateCount   *int            `json:"candidateCount,omitempty"`
	FrequencyPenalty *float64        `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64        `json:"presencePenalty,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget  *int `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

var effortBudgets = map[chat.ReasoningEffort]int{
	chat.ReasoningEffortLow:    1024,
	chat.ReasoningEffortMedium: 8192,
	chat.ReasoningEffortHigh:   24576,
}

// SerializeRequest renders the effective request as a generateContent body.
func (a *Adapter) SerializeRequest(req *chat.Request) (provider.WireBody, error) {
	var wr wireRequest

	names := make(map[string]string)
	for i, m := range req.Messages {
		switch m.Role {
		case messages.RoleSystem:
			if wr.SystemInstruction == nil {
				wr.SystemInstruction = &wireContent{}
			}
			wr.SystemInstruction.Parts = append(wr.SystemInstruction.Parts, wirePart{Text: m.Text()})
		case messages.RoleUser:
			parts, err := userParts(m)
			if err != nil {
				return provider.WireBody{}, provider.NewError(provider.KindSerialization, provider.Google, fmt.Sprintf("message %d", i), err)
			}
			wr.push("user", parts...)
		case messages.RoleAssistant:
			for _, tc := range m.ToolCalls {
				names[tc.ID] = tc.Function.Name
			}
			wr.push("model", modelParts(m)...)
		case messages.RoleTool:
			name := m.Name
			if name == "" {
				name = names[m.ToolCallID]
			}
			if name == "" {
				return provider.WireBody{}, provider.NewError(provider.KindSerialization, provider.Google,
					fmt.Sprintf("message %d answers unknown tool call %q", i, m.ToolCallID), nil)
			}
			wr.push("user", wirePart{FunctionResponse: &wireFunctionResp{
				Name:     name,
				Response: functionResponse(m.Text()),
			}})
		default:
			return provider.WireBody{}, provider.NewError(provider.KindSerialization, provider.Google,
				fmt.Sprintf("message %d has unsupported role %q", i, m.Role), nil)
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]wireFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			params, err := t.ParametersJSON()
			if err != nil {
				return provider.WireBody{}, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			if params, err = jsonx.StripKeys(params, unsupportedSchemaKeys...); err != nil {
				return provider.WireBody{}, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			decls = append(decls, wireFunctionDecl{Name: t.Name, Description: t.Description, Parameters: params})
		}
		wr.Tools = []wireTool{{FunctionDeclarations: decls}}
		if req.ToolChoice != nil {
			tc := &wireToolConfig{}
			switch req.ToolChoice.Mode {
			case chat.ToolChoiceNone:
				tc.FunctionCallingConfig.Mode = "NONE"
			case chat.ToolChoiceRequired:
				tc.FunctionCallingConfig.Mode = "ANY"
			case chat.ToolChoiceFunction:
				tc.FunctionCallingConfig.Mode = "ANY"
				tc.FunctionCallingConfig.AllowedFunctionNames = []string{req.ToolChoice.Function}
			default:
				tc.FunctionCallingConfig.Mode = "AUTO"
			}
			wr.ToolConfig = tc
		}
	}

	gc, err := a.generationConfig(req)
	if err != nil {
		return provider.WireBody{}, err
	}
	wr.GenerationConfig = gc

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

func (w *wireRequest) push(role string, parts ...wirePart) {
	if len(parts) == 0 {
		return
	}
	if n := len(w.Contents); n > 0 && w.Contents[n-1].Role == role {
		w.Contents[n-1].Parts = append(w.Contents[n-1].Parts, parts...)
		return
	}
	w.Contents = append(w.Contents, wireContent{Role: role, Parts: parts})
}

func (a *Adapter) generationConfig(req *chat.Request) (*generationConfig, error) {
	gc := &generationConfig{
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxOutputTokens:  req.MaxTokens,
		StopSequences:    req.Stop,
		Seed:             req.Seed,
		CandidateCount:   req.N,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case chat.ResponseFormatJSONObject:
			gc.ResponseMimeType = "application/json"
		case chat.ResponseFormatJSONSchema:
			schema, err := rf.SchemaJSON()
			if err != nil {
				return nil, fmt.Errorf("response schema: %w", err)
			}
			if schema, err = jsonx.StripKeys(schema, unsupportedSchemaKeys...); err != nil {
				return nil, fmt.Errorf("response schema: %w", err)
			}
			gc.ResponseMimeType = "application/json"
			gc.ResponseSchema = schema
		}
	}
	budget := req.ReasoningBudget
	if budget == 0 {
		budget = effortBudgets[req.ReasoningEffort]
	}
	if budget > 0 {
		gc.ThinkingConfig = &thinkingConfig{ThinkingBudget: &budget, IncludeThoughts: a.includeThoughts}
	}
	if gc.empty() {
		return nil, nil
	}
	return gc, nil
}

func (gc *generationConfig) empty() bool {
	return gc.Temperature == nil && gc.TopP == nil && gc.MaxOutputTokens == nil &&
		len(gc.StopSequences) == 0 && gc.Seed == nil && gc.CandidateCount == nil &&
		gc.FrequencyPenalty == nil && gc.PresencePenalty == nil &&
		gc.ResponseMimeType == "" && gc.ThinkingConfig == nil
}

func userParts(m messages.Message) ([]wirePart, error) {
	if len(m.Parts) == 0 {
		if m.Content == "" {
			return nil, nil
		}
		return []wirePart{{Text: m.Content}}, nil
	}
	parts := make([]wirePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.TextPart:
			parts = append(parts, wirePart{Text: part.Text})
		case messages.ImagePart:
			parts = append(parts, media(part.URL, part.MimeType))
		case messages.FileLinkPart:
			parts = append(parts, media(part.URI, part.MimeType))
		case messages.AudioPart:
			parts = append(parts, wirePart{InlineData: &wireBlob{
				MimeType: "audio/" + part.Format,
				Data:     base64.StdEncoding.EncodeToString(part.Data),
			}})
		case messages.ReasoningPart:
		default:
			return nil, fmt.Errorf("unsupported part %T", p)
		}
	}
	return parts, nil
}

func media(uri, mimeType string) wirePart {
	if rest, ok := strings.CutPrefix(uri, "data:"); ok {
		meta, data, _ := strings.Cut(rest, ",")
		if mt := strings.TrimSuffix(meta, ";base64"); mt != "" {
			mimeType = mt
		}
		return wirePart{InlineData: &wireBlob{MimeType: mimeType, Data: data}}
	}
	return wirePart{FileData: &wireFileData{MimeType: mimeType, FileURI: uri}}
}

// modelParts renders an assistant turn. Signature-only reasoning blocks belong to
// the function call that follows them.
func modelParts(m messages.Message) []wirePart {
	var parts []wirePart
	var pendingSignature string
	for _, p := range m.Parts {
		switch part := p.(type) {
		case messages.ReasoningPart:
			if part.Content == "" {
				pendingSignature = part.Signature
				continue
			}
			parts = append(parts, wirePart{Text: part.Content, Thought: true, ThoughtSignature: part.Signature})
		case messages.TextPart:
			parts = append(parts, wirePart{Text: part.Text})
		case messages.ImagePart:
			parts = append(parts, media(part.URL, part.MimeType))
		}
	}
	text := m.Content
	if text == "" && len(m.Parts) == 0 && m.Audio != nil {
		text = m.Audio.Transcript
	}
	if text != "" {
		parts = append(parts, wirePart{Text: text})
	}
	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !gjson.Valid(tc.Function.Arguments) {
			args = json.RawMessage(`{}`)
		}
		parts = append(parts, wirePart{
			FunctionCall:     &wireFunctionCall{Name: tc.Function.Name, Args: args},
			ThoughtSignature: pendingSignature,
		})
		pendingSignature = ""
	}
	return parts
}

// functionResponse wraps a tool result into the object Gemini expects.
func functionResponse(content string) json.RawMessage {
	if gjson.Valid(content) && gjson.Parse(content).IsObject() {
		return json.RawMessage(content)
	}
	b, _ := json.Marshal(map[string]string{"result": content})
	return b
}
