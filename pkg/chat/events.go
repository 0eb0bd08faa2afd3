package chat

import (
	"context"

	"github.com/go-go-golems/weft/pkg/conversation"
	"github.com/go-go-golems/weft/pkg/events"
)

// The controller consumes transport events through the events.Handler
// contract. Completion (final, interrupt or error) frees the channel and
// triggers a queue drain; one failed attempt never poisons the rest of the
// queue.

func (c *Controller) HandleStart(_ context.Context, _ *events.EventStart) error {
	c.mu.Lock()
	c.streamBuf = ""
	// fresh id for the streaming placeholder row of this reply
	c.streamID = conversation.NewNodeID()
	c.mu.Unlock()
	return nil
}

func (c *Controller) HandlePartial(_ context.Context, e *events.EventPartial) error {
	c.mu.Lock()
	c.streamBuf = e.Completion
	c.mu.Unlock()
	return nil
}

// HandleFinal appends the finished assistant reply. The reply landing also
// resolves any pending edit: the hidden cutoff clears and every new
// message becomes visible.
func (c *Controller) HandleFinal(ctx context.Context, e *events.EventFinal) error {
	c.mu.Lock()
	if e.Text != "" {
		c.live = append(c.live, conversation.NewChatMessage(conversation.RoleAssistant, e.Text))
	}
	c.streamBuf = ""
	c.hiddenAfter = -1
	c.mu.Unlock()

	c.drain(ctx)
	return nil
}

// HandleInterrupt keeps whatever partial reply had arrived before the
// stop. The queue still drains once the stopped state settles.
func (c *Controller) HandleInterrupt(ctx context.Context, e *events.EventInterrupt) error {
	c.mu.Lock()
	if e.Text != "" {
		c.live = append(c.live, conversation.NewChatMessage(conversation.RoleAssistant, e.Text))
	}
	c.streamBuf = ""
	c.mu.Unlock()

	c.drain(ctx)
	return nil
}

// HandleError surfaces the transport failure inline. The attempt is
// terminal: recovery is always a fresh user action (retry or a new send),
// never an automatic resend.
func (c *Controller) HandleError(ctx context.Context, e *events.EventError) error {
	err := e.Error()
	c.mu.Lock()
	c.lastErr = err
	c.streamBuf = ""
	c.mu.Unlock()

	c.logger.Error().Err(err).Msg("transport error")

	c.drain(ctx)
	return nil
}

// drain releases queued messages one at a time in strict FIFO order. A
// dispatch failure logs and moves on to the next entry; a successful
// dispatch stops the drain until that send completes in turn.
func (c *Controller) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.session.Status().Generating() || c.queue.Len() == 0 {
			c.mu.Unlock()
			return
		}

		entry, _ := c.queue.DequeueFront()
		c.lastErr = nil
		c.hiddenAfter = -1
		// the entry id carries over so the pending UI row becomes the
		// live message without re-keying
		c.live = append(c.live, conversation.NewChatMessage(conversation.RoleUser, entry.Text,
			conversation.WithID(conversation.NodeID(entry.ID))))
		payload, options := c.outboundLocked(nil)
		queueLen := c.queue.Len()
		c.mu.Unlock()

		c.logger.Debug().Int("queue_len", queueLen).Msg("draining queued message")

		if err := c.session.Send(ctx, payload, options); err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			c.logger.Error().Err(err).Msg("failed to send queued message")
			continue
		}
		return
	}
}

var _ events.Handler = (*Controller)(nil)
