package confab

import (
	"reflect"

	"github.com/casualjim/confab/chat"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// Structured Outputs uses a subset of JSON schema.
// These flags are necessary to comply with the subset.
var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// JSONSchema reflects the schema of T. Strings and gjson.Result have no schema.
func JSONSchema[T any]() *jsonschema.Schema {
	var t T
	if _, isGjsonResult := any(t).(gjson.Result); isGjsonResult {
		return nil
	}
	if reflect.TypeFor[T]().Kind() == reflect.String {
		return nil
	}
	return reflector.Reflect(t)
}

// StructuredOutput constrains the response to the JSON schema of T.
func StructuredOutput[T any](name, description string) chat.Option {
	return opts.Type[chat.Request](func(r *chat.Request) error {
		schema := JSONSchema[T]()
		if schema == nil {
			return nil
		}
		r.ResponseFormat = &chat.ResponseFormat{
			Type:        chat.ResponseFormatJSONSchema,
			Name:        name,
			Description: description,
			Schema:      schema,
			Strict:      true,
		}
		return nil
	})
}

// Decode converts response text into T. gjson.Result and string targets are
// filled without unmarshalling.
func Decode[T any](text string) (T, error) {
	var v T
	switch target := any(&v).(type) {
	case *gjson.Result:
		*target = gjson.Parse(text)
		return v, nil
	case *string:
		*target = text
		return v, nil
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return v, err
	}
	return v, nil
}

// DecodeResult decodes the text of the first choice of res.
func DecodeResult[T any](res *chat.Result) (T, error) {
	c, _ := res.First()
	return Decode[T](c.Message.Text())
}
