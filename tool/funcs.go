package tool

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

func isFunction(fn any) bool {
	return fn != nil && reflect.TypeOf(fn).Kind() == reflect.Func
}

// functionName is the short runtime name of fn: the declared name for top-level
// functions, the method name for method values, funcN for closures.
func functionName(fn any) string {
	if !isFunction(fn) {
		return ""
	}
	val := reflect.ValueOf(fn)
	if typ := val.Type(); typ.Name() != "" {
		return typ.String()
	}
	rf := runtime.FuncForPC(val.Pointer())
	if rf == nil {
		return val.Type().String()
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// methodExpr matches runtime names of method expressions: pkg.(*T).M, pkg.T.M.
var methodExpr = regexp.MustCompile(`^(?:[^(]*?\.)?(?:\(\*([^)]+)\)|\(([^)]+)\)|([^.(]+))\.(\w+)$`)

// isMethodExpression reports whether fn is a method expression such as
// (*T).Method, whose first argument is the receiver. Method values and plain
// functions taking a struct are not.
func isMethodExpression(fn any) bool {
	if !isFunction(fn) {
		return false
	}
	t := reflect.TypeOf(fn)
	if t.NumIn() == 0 {
		return false
	}
	recv := t.In(0)
	for recv.Kind() == reflect.Pointer {
		recv = recv.Elem()
	}
	if recv.Kind() != reflect.Struct {
		return false
	}

	m := methodExpr.FindStringSubmatch(runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name())
	if m == nil {
		return false
	}
	for _, typeName := range m[1:4] {
		if typeName == recv.Name() {
			return true
		}
	}
	return false
}
