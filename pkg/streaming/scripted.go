package streaming

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/weft/pkg/conversation"
	"github.com/go-go-golems/weft/pkg/events"
)

// SendRecord captures one dispatched send for later inspection.
type SendRecord struct {
	Messages conversation.Conversation
	Options  SendOptions
}

// ScriptedSession is a transport stand-in that never talks to a network.
// Send records the dispatched conversation and parks the session in the
// submitted state; the test (or the CLI's offline mode) then drives the
// reply explicitly with EmitDelta, Finish, Fail or Interrupt.
//
// Completion events are never published from inside Send, so callers can
// hold their own locks across Send without re-entrancy.
type ScriptedSession struct {
	sinks []events.Sink

	mu       sync.Mutex
	status   Status
	sent     []SendRecord
	metadata events.EventMetadata
	buf      string
}

func NewScriptedSession(sinks ...events.Sink) *ScriptedSession {
	return &ScriptedSession{
		sinks:  sinks,
		status: StatusIdle,
	}
}

// AddSink registers another event destination. Lets the controller be
// wired up after the session is constructed.
func (s *ScriptedSession) AddSink(sink events.Sink) {
	s.sinks = append(s.sinks, sink)
}

func (s *ScriptedSession) Send(_ context.Context, messages conversation.Conversation, options SendOptions) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}

	s.mu.Lock()
	if s.status.Generating() {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.status = StatusSubmitted
	s.buf = ""
	s.metadata = events.EventMetadata{
		MessageID: uuid.NewString(),
		SessionID: options.Metadata.SessionID,
		Model:     options.Model,
	}
	s.sent = append(s.sent, SendRecord{
		Messages: messages.Clone(),
		Options:  options,
	})
	metadata := s.metadata
	s.mu.Unlock()

	s.publishEvent(events.NewStartEvent(metadata))
	return nil
}

func (s *ScriptedSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stop marks the current reply interrupted, flushing whatever partial
// completion was emitted so far.
func (s *ScriptedSession) Stop() {
	s.mu.Lock()
	if !s.status.Generating() {
		s.mu.Unlock()
		log.Debug().Msg("Stop called with no reply in flight")
		return
	}
	s.status = StatusReady
	metadata := s.metadata
	text := s.buf
	s.mu.Unlock()

	s.publishEvent(events.NewInterruptEvent(metadata, text))
}

// EmitDelta streams one text chunk of the pending reply.
func (s *ScriptedSession) EmitDelta(delta string) {
	s.mu.Lock()
	s.status = StatusStreaming
	s.buf += delta
	metadata := s.metadata
	completion := s.buf
	s.mu.Unlock()

	s.publishEvent(events.NewPartialEvent(metadata, delta, completion))
}

// Finish completes the pending reply with the given full text. The status
// settles to ready before the final event goes out, so handlers observing
// the session during dispatch see a free channel.
func (s *ScriptedSession) Finish(text string) {
	s.mu.Lock()
	s.status = StatusReady
	metadata := s.metadata
	s.mu.Unlock()

	s.publishEvent(events.NewFinalEvent(metadata, text))
}

// Fail ends the pending reply with a transport error.
func (s *ScriptedSession) Fail(err error) {
	s.mu.Lock()
	s.status = StatusError
	metadata := s.metadata
	s.mu.Unlock()

	s.publishEvent(events.NewErrorEvent(metadata, err))
}

// Sent returns every recorded send, oldest first.
func (s *ScriptedSession) Sent() []SendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]SendRecord, len(s.sent))
	copy(ret, s.sent)
	return ret
}

func (s *ScriptedSession) publishEvent(event events.Event) {
	for _, sink := range s.sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("failed to publish event")
		}
	}
}

var _ Session = (*ScriptedSession)(nil)
