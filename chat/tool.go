package chat

import (
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// Tool declares a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Strict      bool
}

// ParametersJSON renders the parameter schema, defaulting to an empty object schema.
func (t Tool) ParametersJSON() ([]byte, error) {
	if t.Parameters == nil {
		return []byte(`{"type":"object","properties":{}}`), nil
	}
	return json.Marshal(t.Parameters)
}

// ToolChoiceMode controls whether and how the model calls tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceFunction forces the function named in ToolChoice.Function.
	ToolChoiceFunction ToolChoiceMode = "function"
)

type ToolChoice struct {
	Mode     ToolChoiceMode
	Function string
}

// ResponseFormatType selects the output format constraint.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat constrains the shape of the model output.
type ResponseFormat struct {
	Type        ResponseFormatType
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Strict      bool
}

// SchemaJSON renders the schema of a json_schema response format.
func (f ResponseFormat) SchemaJSON() ([]byte, error) {
	if f.Schema == nil {
		return []byte(`{"type":"object"}`), nil
	}
	return json.Marshal(f.Schema)
}
