// Package events defines the callback surface application code uses to consume a
// response while it is produced: text tokens, reasoning, audio, images, tool-call
// batches, usage and vendor specific payloads.
//
// Design decisions:
//   - Optional callbacks: a Handler is a struct of function fields, leave the ones
//     you do not need nil
//   - Nil safety: the dispatch methods tolerate a nil *Handler, so the engine never
//     checks before dispatching
//   - No buffering: events without a callback are dropped, not queued
//   - Batch tool calls: OnFunctionCalls receives the complete batch so handlers can
//     execute calls concurrently
//
// Example usage:
//
//	h := &events.Handler{
//	    OnMessageToken: func(ctx context.Context, token string) {
//	        fmt.Print(token)
//	    },
//	    OnFunctionCalls: func(ctx context.Context, calls []*messages.FunctionCall) error {
//	        for _, call := range calls {
//	            if err := call.Resolve(lookup(call)); err != nil {
//	                return err
//	            }
//	        }
//	        return nil
//	    },
//	}
package events
