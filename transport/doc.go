// Package transport provides the HTTP implementation of provider.Transport.
//
// The transport owns everything network related that adapters stay out of:
// authentication headers, connection reuse and the splitting of streamed bodies
// into frames. Adapters never see an http.Response.
//
// # Framing
//
//   - SSE bodies are decoded with the openai-go event stream decoder, one frame per
//     data event. Comment and keep-alive events are dropped.
//   - NDJSON bodies yield one frame per non-empty line.
//   - Whole bodies are read completely and yielded as a single frame.
//
// # Errors
//
// Every failure is a *provider.Error. Non-2xx responses become upstream errors
// carrying the status and the raw body. Context cancellation maps to cancelled,
// deadlines and client timeouts to timeout, and read failures after the first
// byte to stream_interrupted.
//
// # Example
//
//	tr := transport.Must(
//		transport.WithAPIKey(provider.OpenAI, os.Getenv("OPENAI_API_KEY")),
//		transport.WithTimeout(2*time.Minute),
//	)
package transport
