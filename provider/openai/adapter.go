package openai

import (
	"strings"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/provider"
	"github.com/fogfish/opts"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Adapter speaks the OpenAI chat completions protocol. OpenAI-compatible vendors
// reuse it with their own ID, base URL and quirks.
type Adapter struct {
	id      provider.ID
	baseURL string
	headers map[string]string

	// developerRole renders system messages as "developer" for reasoning models.
	developerRole bool
	// reasoningField is the delta/message member carrying reasoning text.
	reasoningField string
	// requiredToolChoice is the vendor spelling of the "required" tool choice.
	requiredToolChoice string
	noStreamOptions    bool
	noTokenStreaming   bool
	dropParams         []string
	extensionKeys      []string
	beforeSend         []BeforeSend
}

// BeforeSend patches the serialized body. Hooks run in registration order.
type BeforeSend func(body []byte, req *chat.Request) ([]byte, error)

// Option configures an Adapter.
type Option = opts.Option[Adapter]

var (
	// WithID overrides the provider ID the adapter registers under.
	WithID = opts.ForName[Adapter, provider.ID]("id")
	// WithBaseURL overrides the API root.
	WithBaseURL = opts.ForName[Adapter, string]("baseURL")
	// WithDeveloperRole toggles "developer" system messages for reasoning models.
	WithDeveloperRole = opts.ForName[Adapter, bool]("developerRole")
	// WithReasoningField names the member that carries reasoning text.
	WithReasoningField = opts.ForName[Adapter, string]("reasoningField")
	// WithRequiredToolChoice sets the vendor spelling of the required tool choice.
	WithRequiredToolChoice = opts.ForName[Adapter, string]("requiredToolChoice")
	// WithoutStreamOptions omits stream_options for vendors that reject it.
	WithoutStreamOptions = opts.ForName[Adapter, bool]("noStreamOptions")
	// WithoutTokenStreaming makes the adapter request whole responses and deliver
	// each as a complete assistant message.
	WithoutTokenStreaming = opts.ForName[Adapter, bool]("noTokenStreaming")
)

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return opts.Type[Adapter](func(a *Adapter) error {
		if a.headers == nil {
			a.headers = make(map[string]string)
		}
		a.headers[key] = value
		return nil
	})
}

// WithDroppedParams removes top-level request members the vendor rejects.
func WithDroppedParams(params ...string) Option {
	return opts.Type[Adapter](func(a *Adapter) error {
		a.dropParams = append(a.dropParams, params...)
		return nil
	})
}

// WithExtensionKeys lists top-level response members surfaced as vendor extensions.
func WithExtensionKeys(keys ...string) Option {
	return opts.Type[Adapter](func(a *Adapter) error {
		a.extensionKeys = append(a.extensionKeys, keys...)
		return nil
	})
}

// WithBeforeSend appends a body patch hook.
func WithBeforeSend(hook BeforeSend) Option {
	return opts.Type[Adapter](func(a *Adapter) error {
		a.beforeSend = append(a.beforeSend, hook)
		return nil
	})
}

// New creates an OpenAI adapter.
func New(options ...Option) (*Adapter, error) {
	a := &Adapter{
		id:            provider.OpenAI,
		baseURL:       DefaultBaseURL,
		developerRole: true,
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
	return a.id
}

// ResolveURL returns the chat completions URL. Streaming uses the same endpoint.
func (a *Adapter) ResolveURL(_ provider.EndpointKind, _ string) string {
	return a.baseURL + "/chat/completions"
}

// StreamsTokens reports whether the adapter streams token deltas.
func (a *Adapter) StreamsTokens() bool {
	return !a.noTokenStreaming
}

// IsReasoningModel reports whether model belongs to a reasoning family that rejects
// sampling parameters and expects developer messages.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}
