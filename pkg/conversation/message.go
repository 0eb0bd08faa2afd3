package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/go-go-golems/weft/pkg/attachments"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleTool      Role = "tool"
)

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var uuid uuid.UUID
	if err := json.Unmarshal(data, &uuid); err != nil {
		return err
	}
	*id = NodeID(uuid)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

var NullNode = NodeID(uuid.Nil)

// Message is a single entry in a linear conversation history.
//
// Once a message has been sent it is immutable: edits and retries never
// mutate a message in place, they fork the history into a new branch.
type Message struct {
	ID   NodeID    `json:"id"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`

	Attachments []*attachments.Attachment `json:"attachments,omitempty"`
	Metadata    map[string]interface{}    `json:"metadata,omitempty"`
}

type MessageOption func(*Message)

func WithID(id NodeID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func WithTime(time time.Time) MessageOption {
	return func(message *Message) {
		message.Time = time
	}
}

func WithMetadata(metadata map[string]interface{}) MessageOption {
	return func(message *Message) {
		message.Metadata = metadata
	}
}

func WithAttachments(atts ...*attachments.Attachment) MessageOption {
	return func(message *Message) {
		message.Attachments = atts
	}
}

func NewChatMessage(role Role, text string, options ...MessageOption) *Message {
	ret := &Message{
		ID:   NewNodeID(),
		Role: role,
		Text: text,
		Time: time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (m *Message) View() string {
	// If we are markdown, add a newline so that it becomes valid markdown to parse.
	text := m.Text
	if strings.HasPrefix(text, "```") {
		text = "\n" + text
	}
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(text, "\n"))
}
