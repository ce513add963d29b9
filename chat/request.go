package chat

import (
	"maps"
	"slices"
	"time"

	"github.com/casualjim/confab/pkg/messages"
	"github.com/fogfish/opts"
)

// ReasoningEffort is the coarse reasoning budget understood by OpenAI-style vendors.
type ReasoningEffort string

const (
	ReasoningEffortNone   ReasoningEffort = ""
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// AudioStrategy decides how previously generated assistant audio is replayed to the vendor.
type AudioStrategy int

const (
	// PreferNative replays the vendor audio reference while it is still valid and
	// falls back to the transcript once it expired.
	PreferNative AudioStrategy = iota
	// PreferTranscript always replays the transcript.
	PreferTranscript
)

// AudioOutput requests spoken output from vendors that support it.
type AudioOutput struct {
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

// StreamOptions tweaks streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Request is the vendor-neutral chat request template. A Conversation owns one and
// derives an effective request from it for every call.
type Request struct {
	Model             string
	Messages          []messages.Message
	Temperature       *float64
	TopP              *float64
	MaxTokens         *int
	Stop              []string
	Seed              *int64
	N                 *int
	FrequencyPenalty  *float64
	PresencePenalty   *float64
	Tools             []Tool
	ToolChoice        *ToolChoice
	ParallelToolCalls *bool
	ResponseFormat    *ResponseFormat
	Stream            bool
	StreamOptions     *StreamOptions
	ReasoningEffort   ReasoningEffort
	// ReasoningBudget is the token budget for vendors that take an explicit thinking budget.
	ReasoningBudget int
	Modalities      []string
	Audio           *AudioOutput
	AudioStrategy   AudioStrategy
	User            string
	Metadata        map[string]string
	// Extensions are merged verbatim into the top level of the wire body.
	Extensions map[string]any
	// PreserveResponseStart keeps leading whitespace of a streamed response.
	PreserveResponseStart bool
	// IssuedAt is the clock reading used for time dependent serialization decisions.
	IssuedAt time.Time
}

// Option configures a Request.
type Option = opts.Option[Request]

// NewRequest creates a request template for the given model.
func NewRequest(model string, options ...Option) (*Request, error) {
	r := &Request{Model: model}
	if err := opts.Apply(r, options); err != nil {
		return nil, err
	}
	return r, nil
}

// BasedOn clones base and applies the options to the clone.
func BasedOn(base *Request, options ...Option) (*Request, error) {
	r := base.Clone()
	if err := opts.Apply(r, options); err != nil {
		return nil, err
	}
	return r, nil
}

// Clone returns a deep copy of the request. Extension values are copied shallowly.
func (r *Request) Clone() *Request {
	if r == nil {
		return &Request{}
	}
	c := *r
	c.Messages = make([]messages.Message, len(r.Messages))
	for i, m := range r.Messages {
		c.Messages[i] = m.Clone()
	}
	if r.Messages == nil {
		c.Messages = nil
	}
	c.Temperature = clonePtr(r.Temperature)
	c.TopP = clonePtr(r.TopP)
	c.MaxTokens = clonePtr(r.MaxTokens)
	c.Seed = clonePtr(r.Seed)
	c.N = clonePtr(r.N)
	c.FrequencyPenalty = clonePtr(r.FrequencyPenalty)
	c.PresencePenalty = clonePtr(r.PresencePenalty)
	c.ToolChoice = clonePtr(r.ToolChoice)
	c.ParallelToolCalls = clonePtr(r.ParallelToolCalls)
	c.ResponseFormat = clonePtr(r.ResponseFormat)
	c.StreamOptions = clonePtr(r.StreamOptions)
	c.Audio = clonePtr(r.Audio)
	c.Stop = slices.Clone(r.Stop)
	c.Tools = slices.Clone(r.Tools)
	c.Modalities = slices.Clone(r.Modalities)
	c.Metadata = maps.Clone(r.Metadata)
	c.Extensions = maps.Clone(r.Extensions)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Override lists the per-call adjustments applied to a request template.
type Override struct {
	// Messages replaces the message list when non-nil.
	Messages []messages.Message
	Stream   bool
	// IncludeUsage forces usage reporting on streaming calls.
	IncludeUsage bool
	Now          time.Time
}

// With derives the effective request for a single call. The receiver is left untouched.
func (r *Request) With(o Override) *Request {
	eff := r.Clone()
	if o.Messages != nil {
		eff.Messages = make([]messages.Message, len(o.Messages))
		for i, m := range o.Messages {
			eff.Messages[i] = m.Clone()
		}
	}
	eff.Stream = o.Stream
	if o.Stream && o.IncludeUsage {
		if eff.StreamOptions == nil {
			eff.StreamOptions = &StreamOptions{}
		}
		eff.StreamOptions.IncludeUsage = true
	}
	if !o.Stream {
		eff.StreamOptions = nil
	}
	eff.IssuedAt = o.Now
	if eff.IssuedAt.IsZero() {
		eff.IssuedAt = time.Now()
	}
	return eff
}

// WantsUsage reports whether a streaming request asks the vendor for usage data.
func (r *Request) WantsUsage() bool {
	return r.StreamOptions != nil && r.StreamOptions.IncludeUsage
}

// HasTools reports whether the request declares any tools.
func (r *Request) HasTools() bool {
	return len(r.Tools) > 0
}

// ExtensionKeys returns the extension keys in sorted order.
func (r *Request) ExtensionKeys() []string {
	return slices.Sorted(maps.Keys(r.Extensions))
}
