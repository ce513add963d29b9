package provider

import (
	"context"
	"net/http"
)

// Response is a complete, non-streamed vendor response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Transport moves WireRequests over the network. Retries, pooling and authentication
// belong to the implementation.
type Transport interface {
	// Submit sends a non-streaming request and returns the whole body.
	Submit(ctx context.Context, req WireRequest) (Response, error)
	// SubmitStreaming sends a streaming request and returns its raw frames, split
	// according to req.Framing. The connection is released when the sequence ends
	// or the consumer stops iterating.
	SubmitStreaming(ctx context.Context, req WireRequest) (Frames, error)
}
