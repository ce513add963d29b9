package tool

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/casualjim/confab/pkg/messages"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Invoke calls the function with the arguments of fc and renders its result.
// ok is false when the function produced no value, a nil pointer included.
func (td Definition) Invoke(ctx context.Context, fc *messages.FunctionCall) (result string, ok bool, err error) {
	if fc.Arguments != "" && !gjson.Valid(fc.Arguments) {
		return "", false, fmt.Errorf("invalid arguments for %s: %q", td.Name, fc.Arguments)
	}
	args, err := td.buildArgList(ctx, fc.Arguments)
	if err != nil {
		return "", false, err
	}
	return callFunction(td.Function, args)
}

// buildArgList decodes every named argument into the type of the parameter it
// binds to. Missing arguments get the zero value.
func (td Definition) buildArgList(ctx context.Context, arguments string) ([]reflect.Value, error) {
	typ := reflect.TypeOf(td.Function)
	callArgs := make([]reflect.Value, typ.NumIn())
	for i := range callArgs {
		if typ.In(i) == contextType {
			callArgs[i] = reflect.ValueOf(&ctx).Elem()
		}
	}

	values := gjson.Parse(arguments).Map()
	for _, p := range td.params() {
		val, found := values[p.name]
		if !found || val.Type == gjson.Null {
			callArgs[p.index] = reflect.Zero(p.typ)
			continue
		}
		target := reflect.New(p.typ)
		if err := json.Unmarshal([]byte(val.Raw), target.Interface()); err != nil {
			return nil, fmt.Errorf("argument %s of %s: %w", p.name, td.Name, err)
		}
		callArgs[p.index] = target.Elem()
	}
	return callArgs, nil
}

func callFunction(fn any, args []reflect.Value) (value string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, ok, err = "", false, fmt.Errorf("tool panicked: %v", r)
		}
	}()

	results := reflect.ValueOf(fn).Call(args)
	switch len(results) {
	case 0:
		return "", false, nil
	case 2:
		if e, isErr := results[1].Interface().(error); isErr && e != nil {
			return "", false, e
		}
	case 1:
		if results[0].Type() == errorType {
			if e, isErr := results[0].Interface().(error); isErr && e != nil {
				return "", false, e
			}
			return "", false, nil
		}
	}
	return stringify(results[0])
}

func stringify(res reflect.Value) (string, bool, error) {
	if !res.IsValid() {
		return "", false, nil
	}
	switch res.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if res.IsNil() {
			return "", false, nil
		}
	}

	switch v := res.Interface().(type) {
	case string:
		return v, true, nil
	case time.Time:
		return v.Format(time.RFC3339), true, nil
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	case fmt.Stringer:
		return v.String(), true, nil
	}

	switch res.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(res.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(res.Uint(), 10), true, nil
	case reflect.Float32:
		return strconv.FormatFloat(res.Float(), 'f', -1, 32), true, nil
	case reflect.Float64:
		return strconv.FormatFloat(res.Float(), 'f', -1, 64), true, nil
	case reflect.Bool:
		return strconv.FormatBool(res.Bool()), true, nil
	}

	b, err := json.Marshal(res.Interface())
	if err != nil {
		return "", false, fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), true, nil
}
