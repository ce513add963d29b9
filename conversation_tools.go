package confab

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/confab/events"
	"github.com/casualjim/confab/internal/shorttermmemory"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/casualjim/confab/provider"
)

// resolveToolCalls hands the whole batch to the function-call handler and appends
// one tool message per resolved call, in call order, right after the assistant
// message that requested them. Calls the handler left without a result are
// answered with messages.NoDataReturned. When the handler fails, unresolved calls
// get no tool message and the failure is returned as a tool_resolution error,
// or as a cancellation when ctx ended while the handler ran.
func (c *Conversation) resolveToolCalls(ctx context.Context, h *events.Handler, agg *shorttermmemory.Aggregator, calls []*messages.FunctionCall) ([]messages.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.ContextError(c.endpoint.provider, err)
	}

	herr := invokeFunctionCalls(ctx, h, calls)
	if herr == nil {
		if err := ctx.Err(); err != nil {
			return nil, provider.ContextError(c.endpoint.provider, err)
		}
	}

	toolMsgs := make([]messages.Message, 0, len(calls))
	for _, fc := range calls {
		content, ok := fc.Result()
		if !ok {
			if herr != nil {
				continue
			}
			content = messages.NoDataReturned
		}
		toolMsgs = append(toolMsgs, agg.Add(messages.ToolResult(fc.ID, fc.Name, content)))
	}

	if herr != nil {
		if err := ctx.Err(); err != nil {
			c.logger.DebugContext(ctx, "function call handler cancelled",
				slogx.Error(herr),
				slog.Int("resolved", len(toolMsgs)),
			)
			return toolMsgs, provider.ContextError(c.endpoint.provider, err)
		}
		c.logger.WarnContext(ctx, "function call handler failed",
			slogx.Error(herr),
			slog.Int("calls", len(calls)),
			slog.Int("resolved", len(toolMsgs)),
		)
		return toolMsgs, provider.NewError(provider.KindToolResolution, c.endpoint.provider, "function call handler failed", herr)
	}
	return toolMsgs, nil
}

// invokeFunctionCalls runs the handler and turns a panic into an error.
func invokeFunctionCalls(ctx context.Context, h *events.Handler, calls []*messages.FunctionCall) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("function call handler panicked: %v", r)
		}
	}()
	return h.FunctionCalls(ctx, calls)
}
