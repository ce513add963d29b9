package anthropic

import (
	"maps"
	"strings"

	"github.com/casualjim/confab/provider"
	"github.com/fogfish/opts"
)

const (
	// DefaultBaseURL is the Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultVersion is sent as the anthropic-version header.
	DefaultVersion = "2023-06-01"
	// DefaultMaxTokens is used when the request leaves max tokens unset. The messages
	// API requires it.
	DefaultMaxTokens = 4096
)

// Adapter speaks the Anthropic messages protocol.
type Adapter struct {
	baseURL          string
	version          string
	defaultMaxTokens int
	headers          map[string]string
}

// Option configures an Adapter.
type Option = opts.Option[Adapter]

var (
	// WithBaseURL overrides the API root.
	WithBaseURL = opts.ForName[Adapter, string]("baseURL")
	// WithVersion overrides the anthropic-version header.
	WithVersion = opts.ForName[Adapter, string]("version")
	// WithDefaultMaxTokens sets max_tokens for requests that leave it unset.
	WithDefaultMaxTokens = opts.ForName[Adapter, int]("defaultMaxTokens")
)

// WithBeta enables beta features through the anthropic-beta header.
func WithBeta(features ...string) Option {
	return opts.Type[Adapter](func(a *Adapter) error {
		if a.headers == nil {
			a.headers = make(map[string]string)
		}
		existing := a.headers["anthropic-beta"]
		all := append(strings.Split(existing, ","), features...)
		all = uniqueFeatures(all)
		a.headers["anthropic-beta"] = strings.Join(all, ",")
		return nil
	})
}

func uniqueFeatures(in []string) []string {
	out := in[:0]
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// New creates an Anthropic adapter.
func New(options ...Option) (*Adapter, error) {
	a := &Adapter{
		baseURL:          DefaultBaseURL,
		version:          DefaultVersion,
		defaultMaxTokens: DefaultMaxTokens,
	}
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
	return provider.Anthropic
}

func (a *Adapter) ResolveURL(_ provider.EndpointKind, _ string) string {
	return a.baseURL + "/v1/messages"
}

func (a *Adapter) requestHeaders() map[string]string {
	h := maps.Clone(a.headers)
	if h == nil {
		h = make(map[string]string, 1)
	}
	h["anthropic-version"] = a.version
	return h
}
