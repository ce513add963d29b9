package chat

import (
	"github.com/fogfish/opts"
	"github.com/go-openapi/swag"
)

var (
	// WithModel sets the model identifier.
	WithModel = opts.ForName[Request, string]("Model")
	// WithUser sets the end-user identifier forwarded to the vendor.
	WithUser = opts.ForName[Request, string]("User")
	// WithReasoningEffort sets the coarse reasoning effort.
	WithReasoningEffort = opts.ForName[Request, ReasoningEffort]("ReasoningEffort")
	// WithReasoningBudget sets an explicit thinking token budget.
	WithReasoningBudget = opts.ForName[Request, int]("ReasoningBudget")
	// WithAudioStrategy selects how assistant audio is replayed.
	WithAudioStrategy = opts.ForName[Request, AudioStrategy]("AudioStrategy")
	// PreserveResponseStart disables trimming of leading whitespace in streamed responses.
	PreserveResponseStart = opts.ForName[Request, bool]("PreserveResponseStart")
)

func WithTemperature(v float64) Option {
	return opts.Type[Request](func(r *Request) error {
		r.Temperature = swag.Float64(v)
		return nil
	})
}

func WithTopP(v float64) Option {
	return opts.Type[Request](func(r *Request) error {
		r.TopP = swag.Float64(v)
		return nil
	})
}

func WithMaxTokens(v int) Option {
	return opts.Type[Request](func(r *Request) error {
		r.MaxTokens = swag.Int(v)
		return nil
	})
}

func WithSeed(v int64) Option {
	return opts.Type[Request](func(r *Request) error {
		r.Seed = swag.Int64(v)
		return nil
	})
}

func WithStop(stop ...string) Option {
	return opts.Type[Request](func(r *Request) error {
		r.Stop = append(r.Stop, stop...)
		return nil
	})
}

// WithTools appends tool declarations.
func WithTools(tool Tool, extra ...Tool) Option {
	return opts.Type[Request](func(r *Request) error {
		r.Tools = append(r.Tools, tool)
		r.Tools = append(r.Tools, extra...)
		return nil
	})
}

func WithToolChoice(choice ToolChoice) Option {
	return opts.Type[Request](func(r *Request) error {
		r.ToolChoice = &choice
		return nil
	})
}

func WithParallelToolCalls(v bool) Option {
	return opts.Type[Request](func(r *Request) error {
		r.ParallelToolCalls = swag.Bool(v)
		return nil
	})
}

func WithResponseFormat(f ResponseFormat) Option {
	return opts.Type[Request](func(r *Request) error {
		r.ResponseFormat = &f
		return nil
	})
}

// WithAudioOutput asks for spoken output in addition to text.
func WithAudioOutput(voice, format string) Option {
	return opts.Type[Request](func(r *Request) error {
		r.Audio = &AudioOutput{Voice: voice, Format: format}
		r.Modalities = []string{"text", "audio"}
		return nil
	})
}

func WithMetadata(key, value string) Option {
	return opts.Type[Request](func(r *Request) error {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string)
		}
		r.Metadata[key] = value
		return nil
	})
}

// WithExtension sets a vendor extension merged verbatim into the wire body.
func WithExtension(key string, value any) Option {
	return opts.Type[Request](func(r *Request) error {
		if r.Extensions == nil {
			r.Extensions = make(map[string]any)
		}
		r.Extensions[key] = value
		return nil
	})
}
