// Package cohere implements the provider.Adapter contract for the Cohere v2 chat API.
//
// Tool plans are surfaced as reasoning and replayed as the tool_plan of the
// assistant turn that carries the tool calls. Citations are delivered as vendor
// extensions.
package cohere

import (
	"strings"

	"github.com/casualjim/confab/provider"
	"github.com/fogfish/opts"
)

// DefaultBaseURL is the Cohere API root.
const DefaultBaseURL = "https://api.cohere.com"

// Adapter speaks the Cohere v2 chat protocol.
type Adapter struct {
	baseURL string
}

// Option configures an Adapter.
type Option = opts.Option[Adapter]

// WithBaseURL overrides the API root.
var WithBaseURL = opts.ForName[Adapter, string]("baseURL")

// New creates a Cohere adapter.
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
	return provider.Cohere
}

func (a *Adapter) ResolveURL(_ provider.EndpointKind, _ string) string {
	return a.baseURL + "/v2/chat"
}
