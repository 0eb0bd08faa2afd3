package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func testMetadata() EventMetadata {
	return EventMetadata{
		MessageID: "msg-1",
		SessionID: "session-1",
		Model:     "test-model",
	}
}

func TestPartialEventJSONRoundTrip(t *testing.T) {
	event := NewPartialEvent(testMetadata(), "wor", "hello wor")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := NewEventFromJSON(data)
	require.NoError(t, err)

	partial, ok := decoded.(*EventPartial)
	require.True(t, ok)
	require.Equal(t, EventTypePartial, partial.Type())
	require.Equal(t, "wor", partial.Delta)
	require.Equal(t, "hello wor", partial.Completion)
	require.Equal(t, "msg-1", partial.Metadata().MessageID)
	require.Equal(t, data, partial.Payload())
}

func TestFinalEventJSONRoundTrip(t *testing.T) {
	event := NewFinalEvent(testMetadata(), "hello world")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := NewEventFromJSON(data)
	require.NoError(t, err)

	final, ok := decoded.(*EventFinal)
	require.True(t, ok)
	require.Equal(t, "hello world", final.Text)
}

func TestErrorEventCarriesErrorString(t *testing.T) {
	event := NewErrorEvent(testMetadata(), errors.New("boom"))

	data, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := NewEventFromJSON(data)
	require.NoError(t, err)

	errEvent, ok := decoded.(*EventError)
	require.True(t, ok)
	require.Equal(t, "boom", errEvent.ErrorString)
	require.EqualError(t, errEvent.Error(), "boom")
}

func TestNewEventFromJSONRejectsUnknownType(t *testing.T) {
	_, err := NewEventFromJSON([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
}

type recordingHandler struct {
	types []EventType
}

func (h *recordingHandler) HandleStart(_ context.Context, e *EventStart) error {
	h.types = append(h.types, e.Type())
	return nil
}

func (h *recordingHandler) HandlePartial(_ context.Context, e *EventPartial) error {
	h.types = append(h.types, e.Type())
	return nil
}

func (h *recordingHandler) HandleFinal(_ context.Context, e *EventFinal) error {
	h.types = append(h.types, e.Type())
	return nil
}

func (h *recordingHandler) HandleInterrupt(_ context.Context, e *EventInterrupt) error {
	h.types = append(h.types, e.Type())
	return nil
}

func (h *recordingHandler) HandleError(_ context.Context, e *EventError) error {
	h.types = append(h.types, e.Type())
	return nil
}

func TestDispatchRoutesToMatchingHandler(t *testing.T) {
	handler := &recordingHandler{}
	metadata := testMetadata()
	ctx := context.Background()

	require.NoError(t, Dispatch(ctx, handler, NewStartEvent(metadata)))
	require.NoError(t, Dispatch(ctx, handler, NewPartialEvent(metadata, "a", "a")))
	require.NoError(t, Dispatch(ctx, handler, NewFinalEvent(metadata, "a")))
	require.NoError(t, Dispatch(ctx, handler, NewInterruptEvent(metadata, "a")))
	require.NoError(t, Dispatch(ctx, handler, NewErrorEvent(metadata, errors.New("x"))))

	require.Equal(t, []EventType{
		EventTypeStart, EventTypePartial, EventTypeFinal, EventTypeInterrupt, EventTypeError,
	}, handler.types)
}

func TestHandlerSinkDispatchesSynchronously(t *testing.T) {
	handler := &recordingHandler{}
	sink := NewHandlerSink(handler)

	require.NoError(t, sink.PublishEvent(NewStartEvent(testMetadata())))
	require.Equal(t, []EventType{EventTypeStart}, handler.types)
}
