// Package provider implements the abstraction layer between the vendor-neutral chat
// model and the wire formats of the individual AI vendors (OpenAI, Anthropic, Cohere,
// Google, Ollama and OpenAI-compatible third parties).
//
// Design decisions:
//   - Adapter abstraction: one small interface per vendor, selected through a registry
//     keyed by provider ID
//   - Pure translation: adapters never perform I/O, the Transport collaborator does
//   - Effective requests: per-call adjustments are applied to a clone of the request
//     template, so serializing the same request twice yields identical bytes
//   - Forgiving parsing: ParseResult returns nil for payloads it cannot read and
//     ParseStream skips malformed frames instead of failing the stream
//   - Typed errors: every failure is an *Error with a Kind usable with errors.Is
//
// Key concepts:
//   - Adapter: serializes requests, parses results and streams, resolves URLs
//   - Registry: maps a provider ID to exactly one adapter
//   - WireRequest: the serialized body, target URL, headers and framing of a call
//   - Transport: submits WireRequests and returns bodies or raw stream frames
//
// Example usage:
//
//	reg := builtin.Registry()
//	wire, err := provider.Serialize(reg, provider.OpenAI, req, provider.SerializeOptions{
//	    Stream:    true,
//	    WantUsage: true,
//	})
//	if err != nil {
//	    return err
//	}
//	frames, err := transport.SubmitStreaming(ctx, wire)
//	if err != nil {
//	    return err
//	}
//	adapter, _ := reg.Lookup(provider.OpenAI)
//	for result, err := range adapter.ParseStream(ctx, frames, req, handler) {
//	    // reconcile result
//	}
package provider
