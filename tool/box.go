package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/internal/registry"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/fogfish/opts"
)

// Box is a set of tool definitions keyed by name. It declares the tools on a
// request and resolves the function-call batches the model sends back.
type Box struct {
	tools  registry.Registry[string, Definition]
	logger *slog.Logger
}

// NewBox creates a Box holding defs. A later definition replaces an earlier one
// with the same name.
func NewBox(defs ...Definition) *Box {
	b := &Box{
		tools:  registry.New[string, Definition](),
		logger: slog.Default().With(slogx.LoggerName("tool")),
	}
	b.Add(defs...)
	return b
}

func (b *Box) Add(defs ...Definition) {
	for _, d := range defs {
		b.tools.Add(d.Name, d)
	}
}

func (b *Box) Get(name string) (Definition, bool) {
	return b.tools.Get(name)
}

// Names lists the tool names in sorted order.
func (b *Box) Names() []string {
	return b.tools.Keys()
}

func (b *Box) Len() int {
	return b.tools.Len()
}

// Tools returns the chat declarations of every tool, sorted by name.
func (b *Box) Tools() []chat.Tool {
	names := b.tools.Keys()
	out := make([]chat.Tool, 0, len(names))
	for _, n := range names {
		if d, ok := b.tools.Get(n); ok {
			out = append(out, d.ChatTool())
		}
	}
	return out
}

// Declare is a request option that adds every tool of the box.
func (b *Box) Declare() chat.Option {
	return opts.Type[chat.Request](func(r *chat.Request) error {
		r.Tools = append(r.Tools, b.Tools()...)
		return nil
	})
}

// Handle resolves a batch of function calls concurrently. It fits
// events.Handler.OnFunctionCalls.
//
// Failures of a single call, an unknown tool included, are recorded on that call
// with ResolveError so the model sees them. Calls whose function returns no value
// stay unresolved. Handle only fails when ctx is done.
func (b *Box) Handle(ctx context.Context, calls []*messages.FunctionCall) error {
	var wg sync.WaitGroup
	for _, fc := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.resolve(ctx, fc)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (b *Box) resolve(ctx context.Context, fc *messages.FunctionCall) {
	def, ok := b.tools.Get(fc.Name)
	if !ok {
		b.logger.WarnContext(ctx, "unknown tool", slog.String("tool", fc.Name), slog.String("call_id", fc.ID))
		_ = fc.ResolveError(fmt.Errorf("unknown tool %s", fc.Name))
		return
	}

	result, found, err := def.Invoke(ctx, fc)
	if err != nil {
		b.logger.DebugContext(ctx, "tool failed", slog.String("tool", fc.Name), slog.String("call_id", fc.ID), slogx.Error(err))
		_ = fc.ResolveError(err)
		return
	}
	if !found {
		return
	}
	if err := fc.ResolveRaw(result); err != nil {
		b.logger.DebugContext(ctx, "tool result dropped", slog.String("tool", fc.Name), slogx.Error(err))
	}
}
