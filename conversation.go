package confab

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/internal/shorttermmemory"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/google/uuid"
)

// State is the lifecycle state of a Conversation.
type State int32

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateStreaming
	StateResolvingTools
)

func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateResolvingTools:
		return "resolving_tools"
	default:
		return "idle"
	}
}

var (
	// ErrRequestInFlight is returned when a round trip starts while another one
	// is still running on the same conversation.
	ErrRequestInFlight = errors.New("a request is already in flight")
	// ErrMessageNotFound is returned when an edit addresses an unknown message id.
	ErrMessageNotFound = shorttermmemory.ErrMessageNotFound
)

// Checkpoint is a snapshot of a conversation's history and usage totals.
type Checkpoint = shorttermmemory.Checkpoint

// NewCheckpoint builds a checkpoint from saved state. A nil id gets a fresh one.
func NewCheckpoint(id uuid.UUID, msgs []messages.Message, usage chat.Usage) Checkpoint {
	return shorttermmemory.NewCheckpoint(id, msgs, usage)
}

// Conversation owns a message history and drives round trips against one endpoint.
//
// A conversation has a single writer. History operations are not synchronized
// and must not run while a round trip is in flight, except from inside the
// callbacks of that round trip. RequestParameters is safe to call at any time.
type Conversation struct {
	endpoint  *Endpoint
	template  atomic.Pointer[chat.Request]
	history   *shorttermmemory.Aggregator
	state     atomic.Int32
	last      atomic.Pointer[chat.Result]
	logger    *slog.Logger
	now       func() time.Time
	wantUsage bool

	// collected by options before the template exists
	requestOptions []chat.Option
	base           *chat.Request
	initial        []messages.Message
	restore        *Checkpoint
}

// ConversationOption configures a Conversation.
type ConversationOption = opts.Option[Conversation]

var (
	// WithLogger sets the logger used for diagnostics.
	WithLogger = opts.ForName[Conversation, *slog.Logger]("logger")
	// WithClock replaces time.Now for time dependent decisions such as audio expiry.
	WithClock = opts.ForName[Conversation, func() time.Time]("now")
	// WithStreamUsage controls whether streaming calls ask the vendor for usage.
	WithStreamUsage = opts.ForName[Conversation, bool]("wantUsage")
)

// WithRequest uses req as the base of the request template. The request is cloned.
func WithRequest(req *chat.Request) ConversationOption {
	return opts.Type[Conversation](func(c *Conversation) error {
		c.base = req
		return nil
	})
}

// WithRequestOptions applies options to the request template.
func WithRequestOptions(options ...chat.Option) ConversationOption {
	return opts.Type[Conversation](func(c *Conversation) error {
		c.requestOptions = append(c.requestOptions, options...)
		return nil
	})
}

// WithMessages seeds the history.
func WithMessages(msgs ...messages.Message) ConversationOption {
	return opts.Type[Conversation](func(c *Conversation) error {
		c.initial = append(c.initial, msgs...)
		return nil
	})
}

// WithCheckpoint continues from a snapshot: the conversation takes over its id,
// messages and usage totals. Messages from WithMessages follow the snapshot.
func WithCheckpoint(cp Checkpoint) ConversationOption {
	return opts.Type[Conversation](func(c *Conversation) error {
		c.restore = &cp
		return nil
	})
}

// NewConversation creates a conversation against endpoint for model.
func NewConversation(endpoint *Endpoint, model string, options ...ConversationOption) (*Conversation, error) {
	if endpoint == nil {
		return nil, errors.New("conversation requires an endpoint")
	}
	c := &Conversation{
		endpoint:  endpoint,
		history:   shorttermmemory.New(),
		logger:    slog.Default(),
		now:       time.Now,
		wantUsage: true,
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}

	base := c.base
	if base == nil {
		base = &chat.Request{}
	}
	tmpl, err := chat.BasedOn(base, c.requestOptions...)
	if err != nil {
		return nil, fmt.Errorf("request template: %w", err)
	}
	if model != "" {
		tmpl.Model = model
	}
	// history lives in the conversation, never in the template
	tmpl.Messages = nil
	c.template.Store(tmpl)
	c.base, c.requestOptions = nil, nil

	if c.restore != nil {
		for _, m := range c.restore.Messages() {
			if err := m.Validate(); err != nil {
				return nil, err
			}
		}
		c.restore.MergeInto(c.history)
	}
	for _, m := range c.initial {
		if _, err := c.AppendMessage(m); err != nil {
			return nil, err
		}
	}
	c.initial, c.restore = nil, nil
	c.logger = c.logger.With(slogx.LoggerName("confab.conversation"), slog.String("provider", endpoint.Provider().String()))
	return c, nil
}

// Endpoint returns the endpoint this conversation talks to.
func (c *Conversation) Endpoint() *Endpoint {
	return c.endpoint
}

// State returns the current lifecycle state.
func (c *Conversation) State() State {
	return State(c.state.Load())
}

func (c *Conversation) begin(s State) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(s)) {
		return ErrRequestInFlight
	}
	return nil
}

func (c *Conversation) transition(s State) {
	c.state.Store(int32(s))
}

// RequestParameters returns a copy of the request template.
func (c *Conversation) RequestParameters() *chat.Request {
	return c.template.Load().Clone()
}

// UpdateRequestParameters applies options to a copy of the template and swaps it in.
func (c *Conversation) UpdateRequestParameters(options ...chat.Option) error {
	next, err := chat.BasedOn(c.template.Load(), options...)
	if err != nil {
		return err
	}
	next.Messages = nil
	c.template.Store(next)
	return nil
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []messages.Message {
	return c.history.Messages()
}

// Message returns the message with the given id.
func (c *Conversation) Message(id uuid.UUID) (messages.Message, bool) {
	return c.history.Get(id)
}

// Usage returns the token usage accumulated over all round trips.
func (c *Conversation) Usage() chat.Usage {
	return c.history.Usage()
}

// ID identifies the history. It is kept across WithCheckpoint.
func (c *Conversation) ID() uuid.UUID {
	return c.history.ID()
}

// Checkpoint snapshots the history and the usage totals.
func (c *Conversation) Checkpoint() Checkpoint {
	return c.history.Checkpoint()
}

// MostRecentResult returns the result of the last round trip, or nil.
func (c *Conversation) MostRecentResult() *chat.Result {
	return c.last.Load()
}

// AppendSystemMessage appends a system message.
func (c *Conversation) AppendSystemMessage(text string) messages.Message {
	return c.history.Add(messages.System(text))
}

// PrependSystemMessage inserts a system message at the start of the history.
func (c *Conversation) PrependSystemMessage(text string) messages.Message {
	return c.history.Prepend(messages.System(text))
}

// AppendUserInput appends a plain text user message.
func (c *Conversation) AppendUserInput(text string) messages.Message {
	return c.history.Add(messages.User(text))
}

// AppendUserInputParts appends a multi-part user message.
func (c *Conversation) AppendUserInputParts(parts ...messages.Part) (messages.Message, error) {
	return c.AppendMessage(messages.UserParts(parts...))
}

// AppendExampleChatbotOutput appends an assistant message, typically a few-shot example.
func (c *Conversation) AppendExampleChatbotOutput(text string) messages.Message {
	return c.history.Add(messages.Assistant(text))
}

// AppendToolResult appends the answer to a tool call.
func (c *Conversation) AppendToolResult(toolCallID, name, content string) (messages.Message, error) {
	return c.AppendMessage(messages.ToolResult(toolCallID, name, content))
}

// AppendMessage validates and appends m. A message without an id gets one.
func (c *Conversation) AppendMessage(m messages.Message) (messages.Message, error) {
	if err := m.Validate(); err != nil {
		return messages.Message{}, err
	}
	return c.history.Add(m.Clone()), nil
}

// EditMessage replaces the text of a message. Parts are dropped.
func (c *Conversation) EditMessage(id uuid.UUID, content string) error {
	return c.history.Edit(id, func(m *messages.Message) {
		m.Content = content
		m.Parts = nil
	})
}

// EditMessageParts replaces the content of a message with parts.
func (c *Conversation) EditMessageParts(id uuid.UUID, parts ...messages.Part) error {
	var verr error
	err := c.history.Edit(id, func(m *messages.Message) {
		next := m.Clone()
		next.Content = ""
		next.Parts = append(messages.Parts{}, parts...)
		if verr = next.Validate(); verr == nil {
			*m = next
		}
	})
	if err != nil {
		return err
	}
	return verr
}

// RemoveMessage deletes a message from the history.
func (c *Conversation) RemoveMessage(id uuid.UUID) error {
	return c.history.Remove(id)
}

// Clear drops the history and the accumulated usage.
func (c *Conversation) Clear() {
	c.history.Clear()
	c.last.Store(nil)
}

// historySource exposes an aggregator as the message source of a request.
type historySource struct {
	agg *shorttermmemory.Aggregator
}

func (s historySource) Messages() []messages.Message {
	return s.agg.Messages()
}
