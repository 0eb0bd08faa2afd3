package streaming

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/weft/pkg/attachments"
	"github.com/go-go-golems/weft/pkg/conversation"
)

var (
	ErrSessionBusy = errors.New("session already has an active send")
	ErrNoMessages  = errors.New("no messages to send")
)

// Status is the transport-owned state of a streaming session.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitted
	StatusStreaming
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSubmitted:
		return "submitted"
	case StatusStreaming:
		return "streaming"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Generating reports whether the session is actively producing output.
// Sends arriving in this window must be queued, not dispatched.
func (s Status) Generating() bool {
	return s == StatusSubmitted || s == StatusStreaming
}

// Metadata identifies the send within the surrounding application.
type Metadata struct {
	OrganizationID string
	SessionID      string
	UserID         string
	ProjectID      string
	DocumentID     string
}

type SendOptions struct {
	Model       string
	Metadata    Metadata
	Attachments []*attachments.Attachment
}

// Session is the single well-typed send capability of a streaming
// transport. Send dispatches the conversation and returns once the request
// is in flight; the reply arrives incrementally as events on the session's
// sinks. At most one send is in flight at a time.
type Session interface {
	Send(ctx context.Context, messages conversation.Conversation, options SendOptions) error
	Status() Status
	Stop()
}
