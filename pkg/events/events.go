package events

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart     EventType = "start"
	EventTypePartial   EventType = "partial"
	EventTypeFinal     EventType = "final"
	EventTypeInterrupt EventType = "interrupt"
	EventTypeError     EventType = "error"
)

// EventMetadata identifies which send an event belongs to.
type EventMetadata struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.MessageID)
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
}

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw payload if the event was deserialized from JSON (see NewEventFromJSON)
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{
		EventImpl: EventImpl{
			Type_:     EventTypeStart,
			Metadata_: metadata,
		},
	}
}

// EventPartial carries one streamed text delta plus the completion
// accumulated so far.
type EventPartial struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewPartialEvent(metadata EventMetadata, delta string, completion string) *EventPartial {
	return &EventPartial{
		EventImpl: EventImpl{
			Type_:     EventTypePartial,
			Metadata_: metadata,
		},
		Delta:      delta,
		Completion: completion,
	}
}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{
			Type_:     EventTypeFinal,
			Metadata_: metadata,
		},
		Text: text,
	}
}

// EventInterrupt is emitted when a stream is cancelled mid-flight. Text
// holds whatever partial completion had arrived before the stop.
type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{
			Type_:     EventTypeInterrupt,
			Metadata_: metadata,
		},
		Text: text,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		ErrorString: err.Error(),
	}
}

func (e *EventError) Error() error {
	return errors.New(e.ErrorString)
}

// NewEventFromJSON deserializes an event published over the message bus
// back into its typed representation.
func NewEventFromJSON(b []byte) (Event, error) {
	var base EventImpl
	if err := json.Unmarshal(b, &base); err != nil {
		return nil, err
	}

	var ret Event
	switch base.Type_ {
	case EventTypeStart:
		ret = &EventStart{}
	case EventTypePartial:
		ret = &EventPartial{}
	case EventTypeFinal:
		ret = &EventFinal{}
	case EventTypeInterrupt:
		ret = &EventInterrupt{}
	case EventTypeError:
		ret = &EventError{}
	default:
		return nil, errors.Errorf("unknown event type %q", base.Type_)
	}

	if err := json.Unmarshal(b, ret); err != nil {
		return nil, err
	}
	if impl, ok := ret.(interface{ setPayload([]byte) }); ok {
		impl.setPayload(b)
	}

	return ret, nil
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
