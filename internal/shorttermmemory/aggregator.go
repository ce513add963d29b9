package shorttermmemory

import (
	"errors"
	"slices"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/uuidx"
	"github.com/google/uuid"
)

// ErrMessageNotFound is returned when an operation addresses an unknown message id.
var ErrMessageNotFound = errors.New("message not found")

// AggregatedMessages represents an ordered collection of messages.
type AggregatedMessages []messages.Message

// Len returns the number of messages in the collection.
func (a AggregatedMessages) Len() int {
	return len(a)
}

func (a AggregatedMessages) clone() AggregatedMessages {
	out := make(AggregatedMessages, len(a))
	for i, m := range a {
		out[i] = m.Clone()
	}
	return out
}

// New creates and initializes a new Aggregator instance.
// It sets up:
// - A new unique identifier
// - An empty message collection
// - Zero-initialized usage statistics
//
// Example:
//
//	agg := New()
//	// agg is ready to accept messages and track usage
func New() *Aggregator {
	return &Aggregator{
		id:       uuidx.New(),
		messages: make(AggregatedMessages, 0),
		usage:    chat.Usage{},
	}
}

// Aggregator manages a collection of messages and their associated usage statistics.
// A round trip takes a Checkpoint before it touches the history and restores it
// when the round trip fails.
type Aggregator struct {
	id       uuid.UUID          // Unique identifier for this aggregator
	messages AggregatedMessages // Collection of messages being managed
	usage    chat.Usage         // Usage statistics for token consumption
}

// ID returns the unique identifier of this aggregator.
func (a *Aggregator) ID() uuid.UUID {
	return a.id
}

// Len returns the total number of messages currently held by the aggregator.
func (a *Aggregator) Len() int {
	return a.messages.Len()
}

// Messages returns a copy of all messages in the aggregator.
// Modifications to the returned messages won't affect the aggregator.
func (a *Aggregator) Messages() AggregatedMessages {
	return a.messages.clone()
}

// Get returns the message with the given id.
func (a *Aggregator) Get(id uuid.UUID) (messages.Message, bool) {
	idx := a.indexOf(id)
	if idx < 0 {
		return messages.Message{}, false
	}
	return a.messages[idx].Clone(), true
}

func (a *Aggregator) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(a.messages, func(m messages.Message) bool { return m.ID == id })
}

// Add appends a message. Messages without an id get one.
func (a *Aggregator) Add(m messages.Message) messages.Message {
	if m.ID == uuid.Nil {
		m.ID = uuidx.New()
	}
	a.messages = append(a.messages, m)
	return m
}

// Prepend inserts a message at the start of the history.
func (a *Aggregator) Prepend(m messages.Message) messages.Message {
	if m.ID == uuid.Nil {
		m.ID = uuidx.New()
	}
	a.messages = slices.Insert(a.messages, 0, m)
	return m
}

// Edit applies fn to the message with the given id. The id itself can not change.
func (a *Aggregator) Edit(id uuid.UUID, fn func(*messages.Message)) error {
	idx := a.indexOf(id)
	if idx < 0 {
		return ErrMessageNotFound
	}
	m := a.messages[idx]
	fn(&m)
	m.ID = id
	a.messages[idx] = m
	return nil
}

// Remove deletes the message with the given id.
func (a *Aggregator) Remove(id uuid.UUID) error {
	idx := a.indexOf(id)
	if idx < 0 {
		return ErrMessageNotFound
	}
	a.messages = slices.Delete(a.messages, idx, idx+1)
	return nil
}

// Clear drops all messages and usage.
func (a *Aggregator) Clear() {
	a.messages = a.messages[:0]
	a.usage = chat.Usage{}
}

// AttributeUsage records tokens on the most recent user message.
func (a *Aggregator) AttributeUsage(tokens int64) {
	for i := len(a.messages) - 1; i >= 0; i-- {
		if a.messages[i].Role == messages.RoleUser {
			a.messages[i].Tokens = tokens
			return
		}
	}
}

// Usage returns the accumulated usage statistics of this aggregator.
func (a *Aggregator) Usage() chat.Usage {
	return a.usage
}

// AddUsage accumulates u into the usage statistics.
func (a *Aggregator) AddUsage(u *chat.Usage) {
	a.usage.Add(u)
}

// Checkpoint creates a snapshot of the current aggregator state.
// The checkpoint includes:
// - The aggregator's unique ID
// - A deep copy of all current messages
// - The current usage statistics
//
// Example:
//
//	checkpoint := agg.Checkpoint()  // Save current state
//	// ... make changes to agg ...
//	agg.Restore(checkpoint)         // roll back
func (a *Aggregator) Checkpoint() Checkpoint {
	return Checkpoint{
		id:       a.id,
		messages: a.Messages(),
		usage:    a.usage,
	}
}

// Restore rolls the aggregator back to a checkpoint.
func (a *Aggregator) Restore(c Checkpoint) {
	a.messages = c.Messages()
	a.usage = c.usage
}

// Checkpoint represents a snapshot of an aggregator's state at a specific point in time.
// It contains an immutable copy of the aggregator's state, including:
// - The unique identifier of the source aggregator
// - A snapshot of all messages at checkpoint time
// - The usage statistics at checkpoint time
type Checkpoint struct {
	id       uuid.UUID
	messages AggregatedMessages
	usage    chat.Usage
}

// NewCheckpoint builds a checkpoint from saved state, for example a session
// loaded from disk. A nil id gets a fresh one.
func NewCheckpoint(id uuid.UUID, msgs []messages.Message, usage chat.Usage) Checkpoint {
	if id == uuid.Nil {
		id = uuidx.New()
	}
	return Checkpoint{
		id:       id,
		messages: AggregatedMessages(msgs).clone(),
		usage:    usage,
	}
}

// ID returns the unique identifier of the aggregator that created this checkpoint.
func (c Checkpoint) ID() uuid.UUID {
	return c.id
}

// Messages returns a copy of all messages that were present in the aggregator
// at the time this checkpoint was created.
func (c Checkpoint) Messages() AggregatedMessages {
	return c.messages.clone()
}

// Usage returns the usage statistics that were recorded in the aggregator
// at the time this checkpoint was created.
func (c Checkpoint) Usage() chat.Usage {
	return c.usage
}

// MergeInto merges the checkpoint's state into another aggregator.
// This operation:
// - Appends copies of the checkpoint's messages
// - Combines the checkpoint's usage statistics with the target aggregator's
// - Adopts the checkpoint's id
//
// Example:
//
//	checkpoint := sourceAgg.Checkpoint()
//	targetAgg := New()
//	checkpoint.MergeInto(targetAgg)  // targetAgg now continues sourceAgg
func (c Checkpoint) MergeInto(other *Aggregator) {
	other.messages = append(other.messages, c.Messages()...)
	other.usage.Add(&c.usage)
	if c.id != uuid.Nil {
		other.id = c.id
	}
}
