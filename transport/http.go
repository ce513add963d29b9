package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"time"

	"github.com/casualjim/confab/pkg/slogx"
	"github.com/casualjim/confab/provider"
	"github.com/fogfish/opts"
	"github.com/tidwall/gjson"
)

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 1 << 20

// HTTP sends wire requests with a net/http client.
type HTTP struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	keys      map[provider.ID]string
	headers   map[string]string
}

// Option configures the HTTP transport.
type Option = opts.Option[HTTP]

var (
	// WithClient replaces the default http.Client.
	WithClient = opts.ForName[HTTP, *http.Client]("client")
	// WithTimeout bounds every call, including the time spent reading a stream.
	WithTimeout = opts.ForName[HTTP, time.Duration]("timeout")
	// WithUserAgent sets the User-Agent header.
	WithUserAgent = opts.ForName[HTTP, string]("userAgent")
)

// WithAPIKey sets the credential used for requests to one provider.
func WithAPIKey(id provider.ID, key string) Option {
	return opts.Type[HTTP](func(t *HTTP) error {
		if key == "" {
			return nil
		}
		if t.keys == nil {
			t.keys = make(map[provider.ID]string)
		}
		t.keys[id] = key
		return nil
	})
}

// WithHeader adds a header to every request. Adapter headers win on conflict.
func WithHeader(key, value string) Option {
	return opts.Type[HTTP](func(t *HTTP) error {
		if t.headers == nil {
			t.headers = make(map[string]string)
		}
		t.headers[key] = value
		return nil
	})
}

// New creates an HTTP transport.
func New(options ...Option) (*HTTP, error) {
	t := &HTTP{
		client:    http.DefaultClient,
		userAgent: "confab",
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}
	if t.client == nil {
		return nil, errors.New("transport: nil http client")
	}
	return t, nil
}

// Must is New that panics on invalid options.
func Must(options ...Option) *HTTP {
	t, err := New(options...)
	if err != nil {
		panic(err)
	}
	return t
}

var _ provider.Transport = (*HTTP)(nil)

// Submit sends a non-streaming request and reads the whole response.
func (t *HTTP) Submit(ctx context.Context, req provider.WireRequest) (provider.Response, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	resp, err := t.do(ctx, req)
	if err != nil {
		return provider.Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Response{}, t.readError(ctx, req.Provider, err)
	}
	return provider.Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// SubmitStreaming sends a streaming request. The returned frames hold the
// connection open until iteration ends.
func (t *HTTP) SubmitStreaming(ctx context.Context, req provider.WireRequest) (provider.Frames, error) {
	ctx, cancel := t.withTimeout(ctx)
	resp, err := t.do(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	var frames provider.Frames
	switch req.Framing {
	case provider.FramingNDJSON:
		frames = ndjsonFrames(resp.Body)
	case provider.FramingWhole:
		frames = wholeFrame(resp.Body)
	default:
		frames = sseFrames(resp)
	}

	return func(yield func([]byte, error) bool) {
		defer cancel()
		defer resp.Body.Close()
		for frame, err := range frames {
			if err != nil {
				yield(nil, t.readError(ctx, req.Provider, err))
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
		if ctx.Err() != nil {
			yield(nil, provider.ContextError(req.Provider, ctx.Err()))
		}
	}, nil
}

func (t *HTTP) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(ctx, t.timeout)
	}
	return context.WithCancel(ctx)
}

func (t *HTTP) do(ctx context.Context, req provider.WireRequest) (*http.Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, provider.NewError(provider.KindTransport, req.Provider, "build request", err)
	}
	for k, v := range t.requestHeaders(req) {
		hreq.Header.Set(k, v)
	}

	slog.DebugContext(ctx, "sending request",
		slog.String("provider", req.Provider.String()),
		slog.String("url", req.URL),
		slog.Bool("stream", req.Stream),
		slogx.Stringer("framing", req.Framing),
		slog.Any("meta", req.Meta),
	)

	resp, err := t.client.Do(hreq)
	if err != nil {
		return nil, classify(ctx, req.Provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		perr := provider.NewError(provider.KindUpstream, req.Provider, errorMessage(raw, resp.Status), nil)
		perr.HTTPStatus = resp.StatusCode
		perr.Raw = raw
		slog.DebugContext(ctx, "request failed",
			slog.String("provider", req.Provider.String()),
			slog.Int("status", resp.StatusCode),
			slogx.ByteString("body", raw),
		)
		return nil, perr
	}
	return resp, nil
}

func (t *HTTP) requestHeaders(req provider.WireRequest) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   t.userAgent,
	}
	switch req.Framing {
	case provider.FramingSSE:
		if req.Stream {
			h["Accept"] = "text/event-stream"
		}
	case provider.FramingNDJSON:
		h["Accept"] = "application/x-ndjson"
	default:
		h["Accept"] = "application/json"
	}
	if key, ok := t.keys[req.Provider]; ok {
		name, value := authHeader(req.Provider, key)
		h[name] = value
	}
	maps.Copy(h, t.headers)
	maps.Copy(h, req.Headers)
	return h
}

func authHeader(id provider.ID, key string) (string, string) {
	switch id {
	case provider.Anthropic:
		return "x-api-key", key
	case provider.Google:
		return "x-goog-api-key", key
	default:
		return "Authorization", "Bearer " + key
	}
}

// errorMessage digs the human readable message out of a vendor error body.
func errorMessage(raw []byte, status string) string {
	if gjson.ValidBytes(raw) {
		for _, path := range []string{"error.message", "message", "error", "detail"} {
			if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	return status
}

func classify(ctx context.Context, id provider.ID, err error) error {
	if ctx.Err() != nil {
		return provider.ContextError(id, ctx.Err())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return provider.NewError(provider.KindTimeout, id, "request timed out", err)
	}
	return provider.NewError(provider.KindTransport, id, "send request", err)
}

func (t *HTTP) readError(ctx context.Context, id provider.ID, err error) error {
	if ctx.Err() != nil {
		return provider.ContextError(id, ctx.Err())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return provider.NewError(provider.KindTimeout, id, "read timed out", err)
	}
	return provider.NewError(provider.KindStreamInterrupted, id, fmt.Sprintf("read response: %v", err), err)
}
