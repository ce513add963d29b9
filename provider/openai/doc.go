/*
Package openai implements the provider.Adapter contract for the OpenAI chat
completions protocol. Most OpenAI-compatible vendors reuse this adapter through
the compat package with their own ID, base URL and quirks.

# Design Decisions

  - Pure translation: the adapter builds bodies and decodes payloads, it never
    performs I/O. Transports own the wire.
  - SDK types for decoding: responses and stream chunks are decoded into the
    openai-go types, vendor specific members (reasoning text, citations, usage
    details) are read with gjson.
  - Quirks as options: developer messages, reasoning fields, the spelling of the
    required tool choice and rejected parameters are configured, not subclassed.
  - Whole-response mode: WithoutTokenStreaming turns a stream request into a single
    completion that is delivered as one complete assistant message.

# Reasoning Models

Models of the o-series and gpt-5 families get max_completion_tokens instead of
max_tokens, lose temperature and top_p, and receive system messages with the
developer role.

# Audio

Assistant messages that carry audio are replayed by reference while the vendor
reference is still valid at the request's IssuedAt time. Expired references, or
the PreferTranscript strategy, fall back to the transcript text.

Example usage:

	adapter := openai.Must(openai.WithBaseURL("http://localhost:8080/v1"))
	reg := provider.NewRegistry(adapter)
	wire, err := provider.Serialize(reg, provider.OpenAI, req, provider.SerializeOptions{Source: history})
*/
package openai
