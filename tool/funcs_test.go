package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type receiver struct{}

func (r *receiver) pointerMethod()          {}
func (r receiver) valueMethod(x int) error { return nil }

func plainFunction()            {}
func takesReceiver(r *receiver) {}

func TestFunctionName(t *testing.T) {
	tests := []struct {
		name string
		fn   any
		want string
	}{
		{"nil", nil, ""},
		{"not a function", 42, ""},
		{"plain function", plainFunction, "plainFunction"},
		{"method expression", (*receiver).pointerMethod, "pointerMethod"},
		{"method value", (&receiver{}).pointerMethod, "pointerMethod"},
		{"value method expression", receiver.valueMethod, "valueMethod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, functionName(tt.fn))
		})
	}

	assert.NotEmpty(t, functionName(func() {}))
}

func TestIsMethodExpression(t *testing.T) {
	tests := []struct {
		name string
		fn   any
		want bool
	}{
		{"nil", nil, false},
		{"plain function", plainFunction, false},
		{"pointer method expression", (*receiver).pointerMethod, true},
		{"value method expression", receiver.valueMethod, true},
		{"function taking the struct", takesReceiver, false},
		{"closure taking the struct", func(*receiver) {}, false},
		{"pointer method value", (&receiver{}).pointerMethod, false},
		{"value method value", receiver{}.valueMethod, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMethodExpression(tt.fn))
		})
	}
}
