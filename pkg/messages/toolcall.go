package messages

import (
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// NoDataReturned is the tool message content recorded for a call the handler left unresolved.
const NoDataReturned = `{"result":"no data returned"}`

// ToolCall is a function invocation requested by the model. Arguments is the raw
// argument text as produced by the model and is not guaranteed to be valid JSON.
type ToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionData `json:"function"`
}

// FunctionData names the function and carries its argument text.
type FunctionData struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ErrAlreadyResolved is returned when a function call result is written twice.
var ErrAlreadyResolved = errors.New("function call already resolved")

// FunctionCall is the resolvable projection of a completed ToolCall that is handed
// to the user's function-call handler.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments string
	Index     int

	args   func() (map[string]any, error)
	result *string
	err    error
	mu     sync.Mutex
}

// NewFunctionCall projects a tool call into a resolvable function call.
func NewFunctionCall(tc ToolCall) *FunctionCall {
	fc := &FunctionCall{
		ID:        tc.ID,
		Name:      tc.Function.Name,
		Arguments: tc.Function.Arguments,
		Index:     tc.Index,
	}
	fc.args = sync.OnceValues(func() (map[string]any, error) {
		return parseArguments(fc.Arguments)
	})
	return fc
}

func parseArguments(raw string) (map[string]any, error) {
	out := make(map[string]any)
	if raw == "" {
		return out, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid function arguments: %q", raw)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode function arguments: %w", err)
	}
	return out, nil
}

// Args returns the parsed arguments. Parsing happens once and the result is reused.
func (f *FunctionCall) Args() (map[string]any, error) {
	if f.args == nil {
		return parseArguments(f.Arguments)
	}
	return f.args()
}

// Get reads a single argument by gjson path.
func (f *FunctionCall) Get(path string) gjson.Result {
	return gjson.Get(f.Arguments, path)
}

// Decode unmarshals the argument text into target.
func (f *FunctionCall) Decode(target any) error {
	if _, err := f.Args(); err != nil {
		return err
	}
	if f.Arguments == "" {
		return nil
	}
	return json.Unmarshal([]byte(f.Arguments), target)
}

// Resolve records v, encoded as JSON unless it already is a string, as the call result.
func (f *FunctionCall) Resolve(v any) error {
	if s, ok := v.(string); ok {
		return f.ResolveRaw(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode function result: %w", err)
	}
	return f.ResolveRaw(string(b))
}

// ResolveRaw records s verbatim as the call result.
func (f *FunctionCall) ResolveRaw(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result != nil || f.err != nil {
		return ErrAlreadyResolved
	}
	f.result = &s
	return nil
}

// ResolveError records a failure for this call. The error text becomes the tool result.
func (f *FunctionCall) ResolveError(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result != nil || f.err != nil {
		return ErrAlreadyResolved
	}
	f.err = err
	s, _ := json.Marshal(map[string]string{"error": err.Error()})
	str := string(s)
	f.result = &str
	return nil
}

// Result returns the recorded result and whether one was set.
func (f *FunctionCall) Result() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return "", false
	}
	return *f.result, true
}

// Err returns the failure recorded with ResolveError, if any.
func (f *FunctionCall) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// ToolCall converts the function call back into its tool-call form.
func (f *FunctionCall) ToolCall() ToolCall {
	return ToolCall{
		Index: f.Index,
		ID:    f.ID,
		Type:  "function",
		Function: FunctionData{
			Name:      f.Name,
			Arguments: f.Arguments,
		},
	}
}
