/*
Package confab is a vendor-agnostic chat client for large language model APIs.

A Conversation keeps an ordered, canonical message history and turns it into
requests for any registered vendor. It sends them through a pluggable transport
and folds the answers, streamed or not, back into history.

	tr := transport.Must(transport.WithAPIKey(provider.OpenAI, os.Getenv("OPENAI_API_KEY")))
	ep, err := confab.NewEndpoint(provider.OpenAI, tr)
	if err != nil {
		return err
	}

	conv, err := confab.NewConversation(ep, "gpt-4o-mini")
	if err != nil {
		return err
	}
	conv.AppendSystemMessage("You are terse.")
	conv.AppendUserInput("What is the capital of the Czech Republic?")

	err = conv.StreamResponse(ctx, func(_ context.Context, token string) {
		fmt.Print(token)
	})

# Architecture

 1. Messages (pkg/messages)
    The canonical message model shared by every vendor: roles, multi-part
    content, tool calls and resolvable function calls.

 2. Requests and results (chat)
    The vendor neutral request template and the canonical result and stream
    fragment types, including usage accounting.

 3. Adapters (provider and its subpackages)
    One adapter per vendor translates requests into wire bodies and vendor
    responses and stream frames back into canonical results.

 4. Transport (transport)
    Moves wire bodies over HTTP and splits streamed responses into frames.

 5. Conversation (this package)
    Owns the history and the request lifecycle: GetResponse for one-shot round
    trips, StreamResponse for token streaming, the Rich and Safe variants for
    callbacks and error values.

# Design Decisions

  - One request at a time: a Conversation rejects overlapping calls with ErrRequestInFlight
  - Atomic round trips: a failed non-streaming call leaves history untouched
  - Streams commit what completed: messages appended before a stream failure stay
  - Tools are resolved, not looped: after tool results are appended the caller
    decides whether to ask again, typically from OnAfterToolsCall
  - Cancellation goes through context.Context

# Thread Safety

A Conversation has a single writer. History edits must not race with a round
trip, except from inside the callbacks of that round trip, which run on the
goroutine that called the request method. RequestParameters and
UpdateRequestParameters are safe from any goroutine.
*/
package confab
