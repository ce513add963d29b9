package config

import (
	"fmt"
	"maps"
	"slices"

	"github.com/casualjim/confab"
	"github.com/casualjim/confab/provider"
	"github.com/casualjim/confab/provider/anthropic"
	"github.com/casualjim/confab/provider/builtin"
	"github.com/casualjim/confab/provider/cohere"
	"github.com/casualjim/confab/provider/compat"
	"github.com/casualjim/confab/provider/google"
	"github.com/casualjim/confab/provider/ollama"
	"github.com/casualjim/confab/provider/openai"
	"github.com/casualjim/confab/transport"
)

const kindCompat = "compat"

var kinds = []string{
	string(provider.OpenAI),
	string(provider.Anthropic),
	string(provider.Cohere),
	string(provider.Google),
	string(provider.Ollama),
	string(provider.DeepSeek),
	string(provider.Groq),
	string(provider.Mistral),
	string(provider.XAI),
	string(provider.OpenRouter),
	string(provider.Perplexity),
	kindCompat,
}

var openAIProfiles = map[string]func(...openai.Option) (*openai.Adapter, error){
	string(provider.DeepSeek):   compat.DeepSeek,
	string(provider.Groq):       compat.Groq,
	string(provider.Mistral):    compat.Mistral,
	string(provider.XAI):        compat.XAI,
	string(provider.OpenRouter): compat.OpenRouter,
	string(provider.Perplexity): compat.Perplexity,
}

func (p ProviderConfig) kind(name string) string {
	if p.Kind != "" {
		return p.Kind
	}
	return name
}

func isOpenAIFamily(kind string) bool {
	_, profile := openAIProfiles[kind]
	return profile || kind == string(provider.OpenAI) || kind == kindCompat
}

// Adapter builds the adapter of the named provider.
func (c Config) Adapter(name string) (provider.Adapter, error) {
	p, ok := c.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return p.adapter(provider.ID(name))
}

func (p ProviderConfig) adapter(id provider.ID) (provider.Adapter, error) {
	kind := p.kind(string(id))
	if isOpenAIFamily(kind) {
		return p.openAIAdapter(id, kind)
	}

	switch kind {
	case string(provider.Anthropic):
		var options []anthropic.Option
		if p.BaseURL != "" {
			options = append(options, anthropic.WithBaseURL(p.BaseURL))
		}
		if p.MaxTokens > 0 {
			options = append(options, anthropic.WithDefaultMaxTokens(p.MaxTokens))
		}
		return anthropic.New(options...)
	case string(provider.Cohere):
		var options []cohere.Option
		if p.BaseURL != "" {
			options = append(options, cohere.WithBaseURL(p.BaseURL))
		}
		return cohere.New(options...)
	case string(provider.Google):
		var options []google.Option
		if p.BaseURL != "" {
			options = append(options, google.WithBaseURL(p.BaseURL))
		}
		return google.New(options...)
	case string(provider.Ollama):
		var options []ollama.Option
		if p.BaseURL != "" {
			options = append(options, ollama.WithBaseURL(p.BaseURL))
		}
		if p.KeepAlive != "" {
			options = append(options, ollama.WithKeepAlive(p.KeepAlive))
		}
		if p.ContextLength > 0 {
			options = append(options, ollama.WithContextLength(p.ContextLength))
		}
		return ollama.New(options...)
	}
	return nil, fmt.Errorf("provider %s: unknown kind %q", id, kind)
}

func (p ProviderConfig) openAIAdapter(id provider.ID, kind string) (provider.Adapter, error) {
	var options []openai.Option
	if p.BaseURL != "" {
		options = append(options, openai.WithBaseURL(p.BaseURL))
	}
	for _, k := range slices.Sorted(maps.Keys(p.Headers)) {
		options = append(options, openai.WithHeader(k, p.Headers[k]))
	}
	options = append(options, openai.WithID(id))

	switch kind {
	case string(provider.OpenAI):
		return openai.New(options...)
	case kindCompat:
		return compat.Generic(id, p.BaseURL, options...)
	default:
		return openAIProfiles[kind](options...)
	}
}

// Registry returns the built-in adapters overlaid with every configured provider.
func (c Config) Registry() (*provider.Registry, error) {
	reg := builtin.Registry()
	for _, name := range slices.Sorted(maps.Keys(c.Providers)) {
		a, err := c.Adapter(name)
		if err != nil {
			return nil, err
		}
		reg.Register(a)
	}
	return reg, nil
}

// Transport builds the HTTP transport with the timeout, headers and API keys of
// the configuration.
func (c Config) Transport(options ...transport.Option) (*transport.HTTP, error) {
	base := []transport.Option{
		transport.WithTimeout(c.Timeout),
	}
	if c.UserAgent != "" {
		base = append(base, transport.WithUserAgent(c.UserAgent))
	}
	for _, k := range slices.Sorted(maps.Keys(c.Headers)) {
		base = append(base, transport.WithHeader(k, c.Headers[k]))
	}
	for _, name := range slices.Sorted(maps.Keys(c.Providers)) {
		if key := c.Providers[name].APIKey; key != "" {
			base = append(base, transport.WithAPIKey(provider.ID(name), key))
		}
	}
	return transport.New(append(base, options...)...)
}

// Endpoint builds the endpoint of the named provider, or of the default provider
// when name is empty.
func (c Config) Endpoint(name string, options ...transport.Option) (*confab.Endpoint, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" {
		return nil, fmt.Errorf("no provider named and no default configured")
	}
	if _, ok := c.Providers[name]; !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	tr, err := c.Transport(options...)
	if err != nil {
		return nil, err
	}
	return confab.NewEndpoint(provider.ID(name), tr, confab.WithRegistry(reg))
}

// Conversation starts a conversation against the named provider with its
// configured model.
func (c Config) Conversation(name string, options ...confab.ConversationOption) (*confab.Conversation, error) {
	if name == "" {
		name = c.Default
	}
	ep, err := c.Endpoint(name)
	if err != nil {
		return nil, err
	}
	return confab.NewConversation(ep, c.Providers[name].Model, options...)
}
