// Package msgfmt prints conversation events to a terminal.
package msgfmt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/fatih/color"
)

// Console prints streamed assistant text, tool calls and tool results to w.
type Console struct {
	w         io.Writer
	sender    string
	mu        sync.Mutex
	streaming bool
}

// NewConsole creates a console printer that labels assistant output with sender.
func NewConsole(w io.Writer, sender string) *Console {
	if sender == "" {
		sender = "Assistant"
	}
	return &Console{w: w, sender: sender}
}

// Handler returns the event handler that drives the console. tools, when set,
// resolves function calls after they were printed.
func (c *Console) Handler(tools func(context.Context, []*messages.FunctionCall) error) *events.Handler {
	h := &events.Handler{
		OnMessageToken: c.token,
		OnBlockFinished: func(context.Context, messages.Message) {
			c.endLine()
		},
		OnAfterToolsCall: func(_ context.Context, msgs []messages.Message) {
			for _, m := range msgs {
				c.ToolResult(m)
			}
		},
	}
	if tools != nil {
		h.OnFunctionCalls = func(ctx context.Context, calls []*messages.FunctionCall) error {
			for _, fc := range calls {
				c.FunctionCall(fc)
			}
			return tools(ctx, calls)
		}
	}
	return h
}

func (c *Console) token(_ context.Context, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streaming {
		c.streaming = true
		fmt.Fprint(c.w, color.MagentaString(c.sender)+": ")
	}
	fmt.Fprint(c.w, token)
}

func (c *Console) endLine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming {
		fmt.Fprintln(c.w)
		c.streaming = false
	}
}

// FunctionCall prints a requested call as name{key=value}.
func (c *Console) FunctionCall(fc *messages.FunctionCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	args := strings.ReplaceAll(fc.Arguments, ": ", "=")
	args = strings.ReplaceAll(args, `":`, `"=`)
	fmt.Fprintf(c.w, "%s%s\n", color.YellowString(fc.Name), args)
}

// ToolResult prints the content of a tool message.
func (c *Console) ToolResult(m messages.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := m.Name
	if name == "" {
		name = "Tool"
	}
	fmt.Fprintf(c.w, "%s: %s\n", color.YellowString(name), m.Text())
}

// Error prints err.
func (c *Console) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming {
		fmt.Fprintln(c.w)
		c.streaming = false
	}
	fmt.Fprintf(c.w, "Error: %v\n", err)
}
