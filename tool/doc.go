/*
Package tool turns plain Go functions into tools a model can call and resolves
the function-call batches a conversation hands out.

# Design Decisions

  - Reflection-based: the argument schema is reflected from the function signature
  - Named arguments: Parameters maps positions to the names the model sees
  - Context aware: context.Context arguments are filled by the caller, never by the model
  - Batch resolution: Box.Handle resolves every call of a batch concurrently

# Defining tools

	func forecast(ctx context.Context, city string, days int) (Forecast, error) {
		...
	}

	weather := tool.Must(forecast,
		tool.Name("forecast"),
		tool.Description("Weather forecast for a city"),
		tool.Parameters("city", "days"),
	)

Functions may return nothing, a value, an error, or a value and an error.
Strings are returned verbatim, numbers, times, TextMarshalers and Stringers are
rendered as text, anything else is encoded as JSON.

# Resolving calls

	box := tool.NewBox(weather)
	req, _ := chat.NewRequest("gpt-4o", box.Declare())
	conv, _ := confab.NewConversation(endpoint, "gpt-4o", confab.WithRequest(req))

	h := &events.Handler{OnFunctionCalls: box.Handle}
	rich, err := conv.GetResponseRich(ctx, h)

A call that names an unknown tool, has undecodable arguments, or whose function
fails is answered with an error document instead of failing the batch.
*/
package tool
