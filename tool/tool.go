package tool

import (
	"context"
	"fmt"
	"reflect"

	"github.com/casualjim/confab/chat"
	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Definition describes a Go function the model may call.
// Parameters maps positional names ("param0", "param1", ...) to the argument
// names the model sees. Positions count only the arguments the model fills, a
// leading context.Context is not one of them.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]string
	Function    any
	Strict      bool
}

var functionReflector = jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
}

var contextType = reflect.TypeFor[context.Context]()

// ToNameAndSchema returns the tool name and the JSON schema of its arguments.
func (td Definition) ToNameAndSchema() (string, *jsonschema.Schema) {
	return functionDefinitionJSON(&functionReflector, td)
}

// ChatTool converts the definition into the tool declaration of a chat request.
func (td Definition) ChatTool() chat.Tool {
	name, schema := td.ToNameAndSchema()
	return chat.Tool{
		Name:        name,
		Description: td.Description,
		Parameters:  schema,
		Strict:      td.Strict,
	}
}

// params lists the argument names the model fills, in call order, paired with
// the index of the Go parameter they bind to.
func (td Definition) params() []param {
	typ := reflect.TypeOf(td.Function)
	if typ == nil || typ.Kind() != reflect.Func {
		return nil
	}
	var out []param
	pos := 0
	for i := range typ.NumIn() {
		pt := typ.In(i)
		if pt == contextType {
			continue
		}
		name := fmt.Sprintf("param%d", pos)
		if td.Parameters != nil {
			if p, ok := td.Parameters[name]; ok && p != "" {
				name = p
			}
		}
		out = append(out, param{name: name, index: i, typ: pt})
		pos++
	}
	return out
}

type param struct {
	name  string
	index int
	typ   reflect.Type
}

func functionDefinitionJSON(reflector *jsonschema.Reflector, f Definition) (string, *jsonschema.Schema) {
	name := f.Name
	if name == "" {
		name = functionName(f.Function)
	}

	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
	}

	var required []string
	for _, p := range f.params() {
		propSchema := reflector.ReflectFromType(p.typ)
		propSchema.Version = ""
		schema.Properties.Set(p.name, propSchema)
		required = append(required, p.name)
	}
	if len(required) > 0 {
		schema.Required = required
	}
	return name, schema
}

// Option configures a Definition.
type Option = opts.Option[Definition]

// Must is New that panics on error.
func Must(f any, options ...Option) Definition {
	def, err := New(f, options...)
	if err != nil {
		panic(err)
	}
	return def
}

// New creates a Definition for f.
//
// f may take a context.Context anywhere in its argument list and may return
// nothing, a value, an error, or a value and an error. Method expressions such as
// (*T).Method are rejected because nothing supplies their receiver; pass the
// bound method value instead.
func New(f any, options ...Option) (Definition, error) {
	if !isFunction(f) {
		return Definition{}, fmt.Errorf("provided value is not a function")
	}
	if isMethodExpression(f) {
		return Definition{}, fmt.Errorf("method expression %s has no receiver, use a method value", functionName(f))
	}
	if err := checkResults(reflect.TypeOf(f)); err != nil {
		return Definition{}, err
	}

	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}
	if def.Name == "" {
		def.Name = functionName(f)
	}

	def.Function = f
	return def, nil
}

var errorType = reflect.TypeFor[error]()

func checkResults(typ reflect.Type) error {
	switch typ.NumOut() {
	case 0, 1:
		return nil
	case 2:
		if typ.Out(1) != errorType {
			return fmt.Errorf("second result of %s must be an error", typ)
		}
		return nil
	default:
		return fmt.Errorf("%s returns %d values, at most 2 are supported", typ, typ.NumOut())
	}
}

// Name sets the tool name. It defaults to the function name.
var Name = opts.ForName[Definition, string]("Name")

// Description sets the description shown to the model.
var Description = opts.ForName[Definition, string]("Description")

// Strict asks vendors that support it to enforce the argument schema.
var Strict = opts.ForName[Definition, bool]("Strict")

// Parameters names the function arguments in order. Arguments without a name
// are exposed as paramN.
func Parameters(parameters ...string) opts.Option[Definition] {
	return opts.Type[Definition](func(o *Definition) error {
		o.Parameters = make(map[string]string, len(parameters))
		for i, p := range parameters {
			o.Parameters[fmt.Sprintf("param%d", i)] = p
		}
		return nil
	})
}
