package events

import "context"

// Sink represents a destination for streaming transport events.
// Implementations can publish events to a message bus, a logger, or hand
// them straight to a Handler.
type Sink interface {
	PublishEvent(event Event) error
}

// Handler is the contract consumed by anything that reacts to a streaming
// response: the chat controller, CLI printers, web clients.
type Handler interface {
	HandleStart(ctx context.Context, e *EventStart) error
	HandlePartial(ctx context.Context, e *EventPartial) error
	HandleFinal(ctx context.Context, e *EventFinal) error
	HandleInterrupt(ctx context.Context, e *EventInterrupt) error
	HandleError(ctx context.Context, e *EventError) error
}

// HandlerSink dispatches events synchronously to a Handler, bypassing the
// message bus. Used in tests and in single-consumer wiring.
type HandlerSink struct {
	handler Handler
}

func NewHandlerSink(handler Handler) *HandlerSink {
	return &HandlerSink{handler: handler}
}

func (s *HandlerSink) PublishEvent(event Event) error {
	return Dispatch(context.Background(), s.handler, event)
}

var _ Sink = (*HandlerSink)(nil)

// Dispatch routes a typed event to the matching Handler method. Unknown
// event types are ignored.
func Dispatch(ctx context.Context, handler Handler, e Event) error {
	switch ev := e.(type) {
	case *EventStart:
		return handler.HandleStart(ctx, ev)
	case *EventPartial:
		return handler.HandlePartial(ctx, ev)
	case *EventFinal:
		return handler.HandleFinal(ctx, ev)
	case *EventInterrupt:
		return handler.HandleInterrupt(ctx, ev)
	case *EventError:
		return handler.HandleError(ctx, ev)
	}
	return nil
}
