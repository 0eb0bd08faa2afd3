package conversation

import (
	"fmt"
	"strings"

	"github.com/huandu/go-clone"
)

// Conversation is an ordered linear message history. While live it is
// append-only; it is truncated only as part of a branch-creating operation.
type Conversation []*Message

// Clone returns a deep copy of the conversation. Branch snapshots and the
// live working copy must never share message references.
func (messages Conversation) Clone() Conversation {
	if messages == nil {
		return nil
	}
	return clone.Clone(messages).(Conversation)
}

// IndexOf returns the position of the message with the given ID, or -1.
func (messages Conversation) IndexOf(id NodeID) int {
	for i, msg := range messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// LastIndexOfRole returns the position of the last message with the given
// role, or -1.
func (messages Conversation) LastIndexOfRole(role Role) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == role {
			return i
		}
	}
	return -1
}

// GetSinglePrompt concatenates all the messages together with a prompt in front.
// It just concatenates all the messages together with a prompt in front (if there are more than one message).
func (messages Conversation) GetSinglePrompt() string {
	if len(messages) == 0 {
		return ""
	}

	if len(messages) == 1 {
		return messages[0].Text
	}

	prompt := ""
	for _, message := range messages {
		prompt += fmt.Sprintf("[%s]: %s\n", message.Role, message.Text)
	}

	return prompt
}

// Transcript renders the conversation one message per line, mostly for
// logging and the CLI transcript view.
func (messages Conversation) Transcript() string {
	var sb strings.Builder
	for _, message := range messages {
		sb.WriteString(message.View())
		sb.WriteString("\n")
	}
	return sb.String()
}
