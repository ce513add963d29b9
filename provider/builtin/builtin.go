// Package builtin wires every adapter that ships with confab into a registry.
package builtin

import (
	"sync"

	"github.com/casualjim/confab/provider"
	"github.com/casualjim/confab/provider/anthropic"
	"github.com/casualjim/confab/provider/cohere"
	"github.com/casualjim/confab/provider/compat"
	"github.com/casualjim/confab/provider/google"
	"github.com/casualjim/confab/provider/ollama"
	"github.com/casualjim/confab/provider/openai"
)

// Adapters returns fresh instances of all built-in adapters with default settings.
func Adapters() []provider.Adapter {
	return []provider.Adapter{
		openai.Must(),
		anthropic.Must(),
		cohere.Must(),
		google.Must(),
		ollama.Must(),
		must(compat.DeepSeek()),
		must(compat.Groq()),
		must(compat.Mistral()),
		must(compat.XAI()),
		must(compat.OpenRouter()),
		must(compat.Perplexity()),
	}
}

// Registry creates a registry holding all built-in adapters. Extra adapters
// replace built-ins with the same ID.
func Registry(extra ...provider.Adapter) *provider.Registry {
	r := provider.NewRegistry(Adapters()...)
	for _, a := range extra {
		r.Register(a)
	}
	return r
}

var (
	global     *provider.Registry
	globalOnce sync.Once
)

// Global returns the process wide registry of built-in adapters.
func Global() *provider.Registry {
	globalOnce.Do(func() { global = Registry() })
	return global
}

func must(a *openai.Adapter, err error) *openai.Adapter {
	if err != nil {
		panic(err)
	}
	return a
}
