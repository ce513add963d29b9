// Package google implements the provider.Adapter contract for the Gemini
// generateContent API.
//
// Gemini does not assign ids to function calls, the adapter synthesizes them so
// tool results can be correlated. Tool results are sent back as functionResponse
// parts named after the call they answer. Parameter schemas are stripped of the
// JSON schema keywords Gemini rejects.
package google

import (
	"net/url"
	"strings"

	"github.com/casualjim/confab/provider"
	"github.com/fogfish/opts"
)

// DefaultBaseURL is the Gemini API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter speaks the Gemini generateContent protocol.
type Adapter struct {
	baseURL string
	// includeThoughts asks thinking models to return thought summaries.
	includeThoughts bool
}

// Option configures an Adapter.
type Option = opts.Option[Adapter]

var (
	// WithBaseURL overrides the API root, including the API version.
	WithBaseURL = opts.ForName[Adapter, string]("baseURL")
	// WithThoughts toggles thought summaries for thinking models.
	WithThoughts = opts.ForName[Adapter, bool]("includeThoughts")
)

// New creates a Gemini adapter.
func New(options ...Option) (*Adapter, error) {
	a := &Adapter{baseURL: DefaultBaseURL, includeThoughts: true}
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
	return provider.Google
}

// ResolveURL returns the model specific endpoint. Streaming uses server sent events.
func (a *Adapter) ResolveURL(kind provider.EndpointKind, model string) string {
	model = url.PathEscape(strings.TrimPrefix(model, "models/"))
	if kind == provider.EndpointChatStream {
		return a.baseURL + "/models/" + model + ":streamGenerateContent?alt=sse"
	}
	return a.baseURL + "/models/" + model + ":generateContent"
}
