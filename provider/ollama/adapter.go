// Package ollama implements the provider.Adapter contract for the native Ollama
// chat API.
//
// Ollama streams newline delimited JSON and delivers tool calls whole, without
// ids. The adapter synthesizes call ids and reports tool call turns with the
// tool_calls finish reason even though Ollama says "stop".
package ollama

import (
	"strings"

	"github.com/casualjim/confab/provider"
	"github.com/fogfish/opts"
)

// DefaultBaseURL is the address of a local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

// Adapter speaks the Ollama chat protocol.
type Adapter struct {
	baseURL   string
	keepAlive string
	numCtx    int
}

// Option configures an Adapter.
type Option = opts.Option[Adapter]

var (
	// WithBaseURL overrides the server address.
	WithBaseURL = opts.ForName[Adapter, string]("baseURL")
	// WithKeepAlive controls how long the model stays loaded after a request.
	WithKeepAlive = opts.ForName[Adapter, string]("keepAlive")
	// WithContextLength sets the num_ctx runtime option.
	WithContextLength = opts.ForName[Adapter, int]("numCtx")
)

// New creates an Ollama adapter.
func New(options ...Option) (*Adapter, error) {
	a := &Adapter{baseURL: DefaultBaseURL}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	a.baseURL = strings.TrimRight(a.baseURL, "/")
	return a, nil
}

// Must is New that panics on invalid options.
func Must(options ...Option) *Adapter {
	a, err := New(options...)
	if err != nil {
		panic(err)
	}
	return a
}

var _ provider.Adapter = (*Adapter)(nil)

func (a *Adapter) ID() provider.ID {
	return provider.Ollama
}

func (a *Adapter) ResolveURL(_ provider.EndpointKind, _ string) string {
	return a.baseURL + "/api/chat"
}
