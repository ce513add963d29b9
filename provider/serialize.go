package provider

import (
	"errors"
	"time"

	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MessageSource supplies the current history of the conversation a request is bound to.
type MessageSource interface {
	Messages() []messages.Message
}

// SerializeOptions are the per-call adjustments applied while serializing.
type SerializeOptions struct {
	// Source, when set, supplies the messages of the effective request.
	Source MessageSource
	Stream bool
	// WantUsage asks the vendor for usage telemetry on streaming calls.
	WantUsage bool
	// Now is the clock reading for time dependent decisions. Defaults to time.Now.
	Now time.Time
	// Mutate rewrites the effective request right before the adapter sees it.
	Mutate func(*chat.Request) *chat.Request
}

// WireRequest is a fully serialized call, ready for a Transport.
type WireRequest struct {
	Provider ID
	URL      string
	Body     []byte
	Headers  map[string]string
	Framing  Framing
	Stream   bool
	// Effective is the request the body was rendered from.
	Effective *chat.Request
	Meta      WireMeta
}

// WireMeta is diagnostic bookkeeping. Nothing in the engine branches on it.
type WireMeta struct {
	RequestID    uuid.UUID
	Model        string
	MessageCount int
	ToolCount    int
	Timestamp    strfmt.DateTime
}

var wireMetaJSON = []byte(`{}`)

// MarshalJSON renders the metadata for structured logs.
func (m WireMeta) MarshalJSON() ([]byte, error) {
	result := wireMetaJSON
	var err error
	if result, err = sjson.SetBytes(result, "request_id", m.RequestID.String()); err != nil {
		return nil, err
	}
	if result, err = sjson.SetBytes(result, "model", m.Model); err != nil {
		return nil, err
	}
	if result, err = sjson.SetBytes(result, "message_count", m.MessageCount); err != nil {
		return nil, err
	}
	if result, err = sjson.SetBytes(result, "tool_count", m.ToolCount); err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "timestamp", m.Timestamp.String())
}

func (m *WireMeta) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid wire meta json")
	}
	id, err := uuid.Parse(gjson.GetBytes(data, "request_id").String())
	if err != nil {
		return err
	}
	ts, err := strfmt.ParseDateTime(gjson.GetBytes(data, "timestamp").String())
	if err != nil {
		return err
	}
	m.RequestID = id
	m.Model = gjson.GetBytes(data, "model").String()
	m.MessageCount = int(gjson.GetBytes(data, "message_count").Int())
	m.ToolCount = int(gjson.GetBytes(data, "tool_count").Int())
	m.Timestamp = ts
	return nil
}

// Serialize builds the effective request for one call and renders it with the adapter
// registered for id. The request passed in is never modified.
func Serialize(reg *Registry, id ID, req *chat.Request, o SerializeOptions) (WireRequest, error) {
	adapter, err := reg.Lookup(id)
	if err != nil {
		return WireRequest{}, err
	}
	if req == nil {
		return WireRequest{}, NewError(KindSerialization, id, "nil request", nil)
	}

	override := chat.Override{
		Stream:       o.Stream,
		IncludeUsage: o.WantUsage,
		Now:          o.Now,
	}
	if o.Source != nil {
		override.Messages = o.Source.Messages()
		if override.Messages == nil {
			override.Messages = []messages.Message{}
		}
	}
	eff := req.With(override)
	if o.Mutate != nil {
		if mutated := o.Mutate(eff); mutated != nil {
			eff = mutated
		}
	}

	body, err := adapter.SerializeRequest(eff)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			return WireRequest{}, err
		}
		return WireRequest{}, NewError(KindSerialization, id, "serialize request", err)
	}

	kind := EndpointChat
	if eff.Stream {
		kind = EndpointChatStream
	}
	return WireRequest{
		Provider:  id,
		URL:       adapter.ResolveURL(kind, eff.Model),
		Body:      body.Body,
		Headers:   body.Headers,
		Framing:   body.Framing,
		Stream:    eff.Stream,
		Effective: eff,
		Meta: WireMeta{
			RequestID:    uuidx.New(),
			Model:        eff.Model,
			MessageCount: len(eff.Messages),
			ToolCount:    len(eff.Tools),
			Timestamp:    strfmt.DateTime(eff.IssuedAt),
		},
	}, nil
}
