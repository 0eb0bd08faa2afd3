package chat

import (
	"github.com/go-go-golems/weft/pkg/conversation"
)

// DisplayMessage is one row of the rendered conversation, with the flags
// the UI derives from controller state.
type DisplayMessage struct {
	*conversation.Message
	// Streaming marks the synthetic assistant slot holding the reply
	// while it is still being produced.
	Streaming bool
	// Pending marks a queued user message that has not been sent yet.
	Pending bool
}

// DisplayMessages derives the message list presented to the UI:
//
//   - the live history, cut to the hidden-after prefix while an edit/retry
//     replacement is pending
//   - a synthetic streaming assistant message while the transport is
//     producing output, unless the last visible message already is an
//     assistant message (keeps a stable slot for the typing indicator)
//   - all queued entries appended last as pending user messages, in FIFO
//     order, regardless of transport state
//
// The displayed sequence always preserves chronological send order within
// the visible branch.
func (c *Controller) DisplayMessages() []DisplayMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	visible := c.visibleLocked()
	ret := make([]DisplayMessage, 0, len(visible)+c.queue.Len()+1)
	for _, msg := range visible {
		ret = append(ret, DisplayMessage{Message: msg})
	}

	if c.session.Status().Generating() {
		if len(ret) == 0 || ret[len(ret)-1].Role != conversation.RoleAssistant {
			// stable id per reply so UI rows keyed by id don't re-mount
			// on every render
			if c.streamID == conversation.NullNode {
				c.streamID = conversation.NewNodeID()
			}
			ret = append(ret, DisplayMessage{
				Message:   conversation.NewChatMessage(conversation.RoleAssistant, c.streamBuf, conversation.WithID(c.streamID)),
				Streaming: true,
			})
		}
	}

	for _, entry := range c.queue.Entries() {
		ret = append(ret, DisplayMessage{
			Message: conversation.NewChatMessage(conversation.RoleUser, entry.Text, conversation.WithID(conversation.NodeID(entry.ID))),
			Pending: true,
		})
	}

	return ret
}
