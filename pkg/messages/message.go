package messages

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/casualjim/confab/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Message is one entry in a conversation history.
//
// Content and Parts are mutually exclusive: a message carries either plain text
// or a list of parts. ToolCalls only appear on assistant messages and ToolCallID
// only on tool messages.
type Message struct {
	ID         uuid.UUID       `json:"id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content,omitempty"`
	Parts      Parts           `json:"parts,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Audio      *AudioData      `json:"audio,omitempty"`
	Tokens     int64           `json:"tokens,omitempty"`
	Timestamp  strfmt.DateTime `json:"timestamp"`
}

// New creates a message with a fresh identity and the current timestamp.
func New(role Role) Message {
	return Message{
		ID:        uuidx.New(),
		Role:      role,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

// System creates a system message.
func System(content string) Message {
	m := New(RoleSystem)
	m.Content = content
	return m
}

// User creates a user message with plain text content.
func User(content string) Message {
	m := New(RoleUser)
	m.Content = content
	return m
}

// UserParts creates a user message made of content parts.
func UserParts(parts ...Part) Message {
	m := New(RoleUser)
	m.Parts = parts
	return m
}

// Assistant creates an assistant message with plain text content.
func Assistant(content string) Message {
	m := New(RoleAssistant)
	m.Content = content
	return m
}

// AssistantToolCalls creates an assistant message requesting the given tool calls.
func AssistantToolCalls(calls ...ToolCall) Message {
	m := New(RoleAssistant)
	m.ToolCalls = calls
	return m
}

// ToolResult creates a tool message answering the call with the given id.
func ToolResult(toolCallID, name, content string) Message {
	m := New(RoleTool)
	m.ToolCallID = toolCallID
	m.Name = name
	m.Content = content
	return m
}

var (
	ErrContentAndParts   = errors.New("message content and parts are mutually exclusive")
	ErrToolCallsRole     = errors.New("only assistant messages carry tool calls")
	ErrToolCallIDMissing = errors.New("tool messages require a tool call id")
	ErrToolCallIDRole    = errors.New("only tool messages carry a tool call id")
)

// Validate checks the structural invariants of the message.
func (m Message) Validate() error {
	if m.Content != "" && len(m.Parts) > 0 {
		return ErrContentAndParts
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return ErrToolCallsRole
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return ErrToolCallIDMissing
	}
	if m.Role != RoleTool && m.ToolCallID != "" {
		return ErrToolCallIDRole
	}
	for i, p := range m.Parts {
		if p == nil {
			return fmt.Errorf("part %d is nil", i)
		}
		if rp, ok := p.(ReasoningPart); ok {
			if err := rp.Validate(); err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
		}
	}
	return nil
}

// Text returns the textual content of the message: the content string, or the
// concatenation of its text parts.
func (m Message) Text() string {
	if m.Content != "" || len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// Reasoning returns the reasoning parts of the message in order.
func (m Message) Reasoning() []ReasoningPart {
	var out []ReasoningPart
	for _, p := range m.Parts {
		if rp, ok := p.(ReasoningPart); ok {
			out = append(out, rp)
		}
	}
	return out
}

// IsEmpty reports whether the message carries no content at all.
func (m Message) IsEmpty() bool {
	return m.Content == "" && len(m.Parts) == 0 && len(m.ToolCalls) == 0 && m.Audio == nil
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	m.Parts = slices.Clone(m.Parts)
	m.ToolCalls = slices.Clone(m.ToolCalls)
	if m.Audio != nil {
		a := *m.Audio
		m.Audio = &a
	}
	return m
}
