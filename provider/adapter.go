package provider

import (
	"context"
	"iter"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/events"
)

// ID is the logical identifier of a provider.
type ID string

const (
	OpenAI     ID = "openai"
	Anthropic  ID = "anthropic"
	Cohere     ID = "cohere"
	Google     ID = "google"
	Ollama     ID = "ollama"
	DeepSeek   ID = "deepseek"
	Groq       ID = "groq"
	Mistral    ID = "mistral"
	XAI        ID = "xai"
	OpenRouter ID = "openrouter"
	Perplexity ID = "perplexity"
)

func (id ID) String() string {
	return string(id)
}

// EndpointKind selects which endpoint of a vendor a URL is resolved for.
type EndpointKind int

const (
	EndpointChat EndpointKind = iota
	EndpointChatStream
)

// Framing describes how the vendor delimits a streamed response.
type Framing int

const (
	// FramingSSE is text/event-stream, one frame per data event.
	FramingSSE Framing = iota
	// FramingNDJSON is one JSON document per line.
	FramingNDJSON
	// FramingWhole delivers the whole body as a single frame.
	FramingWhole
)

func (f Framing) String() string {
	switch f {
	case FramingNDJSON:
		return "ndjson"
	case FramingWhole:
		return "whole"
	default:
		return "sse"
	}
}

// Frames is a sequence of raw stream frames as delivered by a Transport.
type Frames = iter.Seq2[[]byte, error]

// WireBody is the serialized form of a request for one vendor.
type WireBody struct {
	Body    []byte
	Kind    EndpointKind
	Framing Framing
	Headers map[string]string
}

// Adapter translates between the vendor-neutral chat model and one vendor wire format.
type Adapter interface {
	// ID returns the provider this adapter speaks for.
	ID() ID
	// SerializeRequest renders the effective request. It must not modify req.
	SerializeRequest(req *chat.Request) (WireBody, error)
	// ParseResult decodes a complete response body. It returns nil when the
	// payload can not be decoded.
	ParseResult(data []byte) *chat.Result
	// ParseStream decodes raw frames into results in arrival order. The sequence ends
	// when the frames end, when the vendor signals the end of the stream, or when ctx
	// is cancelled. Frame read errors are yielded and end the sequence.
	ParseStream(ctx context.Context, frames Frames, req *chat.Request, h *events.Handler) iter.Seq2[*chat.Result, error]
	// ResolveURL returns the target URL for the given endpoint and model.
	ResolveURL(kind EndpointKind, model string) string
}
