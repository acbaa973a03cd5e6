package event

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Type names an event body variant.
type Type string

const (
	TypeMessageCreated Type = "message.created"
	TypeMessageEdited  Type = "message.edited"
	TypeMessageDeleted Type = "message.deleted"
	TypeMembersChanged Type = "members.changed"
	TypeChannelEdited  Type = "channel.edited"
	TypeChannelDeleted Type = "channel.deleted"
	TypePreview        Type = "preview"
)

// Ephemeral reports whether events of this type skip the durable log.
func (t Type) Ephemeral() bool {
	return t == TypePreview
}

// Body is one of the closed set of event payloads defined in this package.
type Body interface {
	Type() Type
}

// Event is what travels through the hub: the encoded envelope plus the topic
// and the millisecond timestamp it was stored (or fanned out) at.
type Event struct {
	Topic     string
	Timestamp int64
	Data      []byte
}

// Envelope is the serialized form of an event body. ID identifies the event
// across the live and replay paths, so clients deduplicate on it.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope wraps body with a fresh ID. A nil body, including a nil pointer
// to a body struct, is rejected with ErrNilBody.
func NewEnvelope(body Body) (Envelope, error) {
	if isNil(body) {
		return Envelope{}, ErrNilBody
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %w", ErrEncodeFailed, body.Type(), err)
	}
	return Envelope{ID: uuid.New(), Type: body.Type(), Payload: payload}, nil
}

// Encode returns the wire form of the envelope.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return data, nil
}

// Body decodes the payload into its typed variant.
func (e Envelope) Body() (Body, error) {
	var b Body
	switch e.Type {
	case TypeMessageCreated:
		b = &MessageCreated{}
	case TypeMessageEdited:
		b = &MessageEdited{}
	case TypeMessageDeleted:
		b = &MessageDeleted{}
	case TypeMembersChanged:
		b = &MembersChanged{}
	case TypeChannelEdited:
		b = &ChannelEdited{}
	case TypeChannelDeleted:
		b = &ChannelDeleted{}
	case TypePreview:
		b = &Preview{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	if err := json.Unmarshal(e.Payload, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, e.Type, err)
	}
	return b, nil
}

// Decode parses an encoded envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return e, nil
}

// Envelope decodes the event data.
func (e Event) Envelope() (Envelope, error) {
	return Decode(e.Data)
}

func isNil(body Body) bool {
	if body == nil {
		return true
	}
	v := reflect.ValueOf(body)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
