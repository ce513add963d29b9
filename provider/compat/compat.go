// Package compat provides profiles for vendors that speak the OpenAI chat completions
// protocol with their own base URL and quirks.
package compat

import (
	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/provider"
	"github.com/casualjim/confab/provider/openai"
	"github.com/tidwall/sjson"
)

const (
	DeepSeekBaseURL   = "https://api.deepseek.com/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	MistralBaseURL    = "https://api.mistral.ai/v1"
	XAIBaseURL        = "https://api.x.ai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	PerplexityBaseURL = "https://api.perplexity.ai"
)

// Generic creates an adapter for an OpenAI compatible vendor. Vendor options are
// applied after the profile defaults so callers can override them.
func Generic(id provider.ID, baseURL string, options ...openai.Option) (*openai.Adapter, error) {
	base := []openai.Option{
		openai.WithID(id),
		openai.WithBaseURL(baseURL),
		openai.WithDeveloperRole(false),
	}
	return openai.New(append(base, options...)...)
}

// DeepSeek streams its reasoning in reasoning_content and rejects replayed reasoning.
func DeepSeek(options ...openai.Option) (*openai.Adapter, error) {
	return Generic(provider.DeepSeek, DeepSeekBaseURL, append([]openai.Option{
		openai.WithReasoningField("reasoning_content"),
	}, options...)...)
}

// Groq rejects parameters it does not implement.
func Groq(options ...openai.Option) (*openai.Adapter, error) {
	return Generic(provider.Groq, GroqBaseURL, append([]openai.Option{
		openai.WithReasoningField("reasoning"),
		openai.WithDroppedParams("metadata", "logit_bias", "n"),
	}, options...)...)
}

// Mistral spells the required tool choice "any" and has no stream_options.
func Mistral(options ...openai.Option) (*openai.Adapter, error) {
	return Generic(provider.Mistral, MistralBaseURL, append([]openai.Option{
		openai.WithRequiredToolChoice("any"),
		openai.WithoutStreamOptions(true),
		openai.WithDroppedParams("user", "metadata", "parallel_tool_calls"),
		openai.WithBeforeSend(mistralMaxTokens),
	}, options...)...)
}

// XAI serves the grok models.
func XAI(options ...openai.Option) (*openai.Adapter, error) {
	return Generic(provider.XAI, XAIBaseURL, append([]openai.Option{
		openai.WithReasoningField("reasoning_content"),
	}, options...)...)
}

// OpenRouter routes to many upstream vendors and reports reasoning in "reasoning".
func OpenRouter(options ...openai.Option) (*openai.Adapter, error) {
	return Generic(provider.OpenRouter, OpenRouterBaseURL, append([]openai.Option{
		openai.WithReasoningField("reasoning"),
		openai.WithBeforeSend(openRouterReasoning),
	}, options...)...)
}

// Perplexity returns search citations next to the completion.
func Perplexity(options ...openai.Option) (*openai.Adapter, error) {
	return Generic(provider.Perplexity, PerplexityBaseURL, append([]openai.Option{
		openai.WithExtensionKeys("citations", "search_results"),
		openai.WithDroppedParams("tools", "tool_choice", "parallel_tool_calls"),
	}, options...)...)
}

// mistralMaxTokens keeps the classic max_tokens spelling for every model.
func mistralMaxTokens(body []byte, req *chat.Request) ([]byte, error) {
	if req.MaxTokens == nil {
		return body, nil
	}
	body, err := sjson.DeleteBytes(body, "max_completion_tokens")
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "max_tokens", *req.MaxTokens)
}

// openRouterReasoning translates the reasoning effort or budget into the unified
// reasoning object.
func openRouterReasoning(body []byte, req *chat.Request) ([]byte, error) {
	if req.ReasoningEffort == "" && req.ReasoningBudget == 0 {
		return body, nil
	}
	body, err := sjson.DeleteBytes(body, "reasoning_effort")
	if err != nil {
		return nil, err
	}
	if req.ReasoningBudget > 0 {
		return sjson.SetBytes(body, "reasoning.max_tokens", req.ReasoningBudget)
	}
	return sjson.SetBytes(body, "reasoning.effort", string(req.ReasoningEffort))
}
