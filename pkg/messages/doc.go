// Package messages is the vendor-neutral message model shared by every provider
// adapter. A conversation history is a list of Message values; each message has a
// role, a stable identity and either plain text content or a list of parts.
//
// Design decisions:
//   - Closed part union: Part is implemented only by the types in this package
//     (text, image, audio, file link, reasoning), so adapters can switch exhaustively
//   - Raw tool arguments: ToolCall keeps the model's argument text untouched, parsing
//     happens lazily through FunctionCall
//   - Write-once results: a FunctionCall result can be set exactly once
//   - JSON interop: parts serialize as {"type": ..., <payload>} objects and decode
//     through a discriminated decoder
//   - Keyed usage: struct{} padding forces keyed initialization of part types
//
// Example usage:
//
//	// Simple text message
//	msg := messages.User("Hello, world!")
//
//	// Multi-part message with text and image
//	msg := messages.UserParts(
//	    messages.Text("Check out this image:"),
//	    messages.Image("https://example.com/image.jpg"),
//	)
//
//	// Resolving a tool call
//	fc := messages.NewFunctionCall(call)
//	city := fc.Get("location").String()
//	_ = fc.Resolve(map[string]any{"temperature": 21})
package messages
