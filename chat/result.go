package chat

import (
	"github.com/casualjim/confab/pkg/messages"
	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
)

// FinishReason is the normalized reason a choice stopped generating.
type FinishReason string

const (
	FinishUnset             FinishReason = ""
	FinishEndTurn           FinishReason = "end_turn"
	FinishStopSequence      FinishReason = "stop_sequence"
	FinishLength            FinishReason = "length"
	FinishContentFilter     FinishReason = "content_filter"
	FinishToolCalls         FinishReason = "tool_calls"
	FinishRecitation        FinishReason = "recitation"
	FinishMalformedToolCall FinishReason = "malformed_tool_call"
	FinishCancel            FinishReason = "cancel"
	FinishError             FinishReason = "error"
	FinishOther             FinishReason = "other"
)

// StreamKind tells the reconciler how to treat a parsed result.
type StreamKind int

const (
	// StreamDelta is an ordinary result; streaming results carry a Delta.
	StreamDelta StreamKind = iota
	// StreamAppendAssistantMessage carries a complete assistant message that is
	// appended to history as is.
	StreamAppendAssistantMessage
	// StreamFinishData only carries finish reason and usage.
	StreamFinishData
)

func (k StreamKind) String() string {
	switch k {
	case StreamAppendAssistantMessage:
		return "append_assistant_message"
	case StreamFinishData:
		return "finish_data"
	default:
		return "delta"
	}
}

// Usage is the normalized token accounting for a call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	CachedTokens     int64 `json:"cached_tokens,omitempty"`
	ReasoningTokens  int64 `json:"reasoning_tokens,omitempty"`
}

// Normalize fills in the total when the vendor omitted it.
func (u *Usage) Normalize() {
	if u == nil {
		return
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if u == nil || other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.CachedTokens += other.CachedTokens
	u.ReasoningTokens += other.ReasoningTokens
}

// Merge overlays non-zero fields of other onto u. Vendors report prompt and
// completion usage in separate stream events.
func (u *Usage) Merge(other *Usage) {
	if u == nil || other == nil {
		return
	}
	if other.PromptTokens != 0 {
		u.PromptTokens = other.PromptTokens
	}
	if other.CompletionTokens != 0 {
		u.CompletionTokens = other.CompletionTokens
	}
	if other.TotalTokens != 0 {
		u.TotalTokens = other.TotalTokens
	}
	if other.CachedTokens != 0 {
		u.CachedTokens = other.CachedTokens
	}
	if other.ReasoningTokens != 0 {
		u.ReasoningTokens = other.ReasoningTokens
	}
}

// IsZero reports whether no tokens were counted.
func (u *Usage) IsZero() bool {
	return u == nil || *u == Usage{}
}

// Choice is one candidate completion. Non-streaming results fill Message, streaming
// results fill Delta.
type Choice struct {
	Index        int
	Message      messages.Message
	Delta        *messages.Message
	FinishReason FinishReason
}

// Result is the vendor-neutral outcome of a call or of a single stream frame.
type Result struct {
	ID        string
	Model     string
	Created   strfmt.DateTime
	Choices   []Choice
	Usage     *Usage
	Kind      StreamKind
	Extension gjson.Result
}

// First returns the choice with index 0, if any.
func (r *Result) First() (Choice, bool) {
	if r == nil {
		return Choice{}, false
	}
	for _, c := range r.Choices {
		if c.Index == 0 {
			return c, true
		}
	}
	return Choice{}, false
}

// FinishReason returns the finish reason of the first choice.
func (r *Result) FinishReason() FinishReason {
	c, _ := r.First()
	return c.FinishReason
}

// Empty reports whether the result carries neither choices nor usage.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Choices) == 0 && r.Usage == nil)
}
