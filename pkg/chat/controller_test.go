package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/weft/pkg/conversation"
	"github.com/go-go-golems/weft/pkg/events"
	"github.com/go-go-golems/weft/pkg/streaming"
)

func newTestController(t *testing.T, options ...ControllerOption) (*Controller, *streaming.ScriptedSession) {
	t.Helper()
	session := streaming.NewScriptedSession()
	controller := NewController(session, options...)
	session.AddSink(events.NewHandlerSink(controller))
	return controller, session
}

func TestPlainSendWhileIdle(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "hello"))

	history := controller.History()
	require.Len(t, history, 1)
	require.Equal(t, conversation.RoleUser, history[0].Role)
	require.Equal(t, "hello", history[0].Text)
	require.True(t, controller.IsGenerating())

	session.Finish("hi")

	require.False(t, controller.IsGenerating())
	display := controller.DisplayMessages()
	require.Len(t, display, 2)
	require.Equal(t, "hello", display[0].Text)
	require.Equal(t, conversation.RoleAssistant, display[1].Role)
	require.Equal(t, "hi", display[1].Text)
}

func TestSendWhileStreamingIsQueued(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "first"))
	require.NoError(t, controller.Send(ctx, "second"))

	// live history untouched, the message sits in the queue
	require.Len(t, controller.History(), 1)
	require.Equal(t, []string{"second"}, controller.QueueEntries())

	session.Finish("reply")

	// completion drained the queue and auto-sent "second"
	require.Equal(t, 0, controller.QueueLen())
	sent := session.Sent()
	require.Len(t, sent, 2)
	lastPayload := sent[1].Messages
	require.Equal(t, "second", lastPayload[len(lastPayload)-1].Text)
	require.True(t, controller.IsGenerating())

	session.Finish("reply 2")
	require.Len(t, controller.History(), 4)
}

func TestQueueOverflowIsSilentlyDropped(t *testing.T) {
	ctx := context.Background()
	controller, _ := newTestController(t)

	require.NoError(t, controller.Send(ctx, "in flight"))
	for i := 1; i <= 6; i++ {
		require.NoError(t, controller.Send(ctx, fmt.Sprintf("m%d", i)))
	}

	require.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, controller.QueueEntries())
}

func TestQueueDrainsInFIFOOrder(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "first"))
	require.NoError(t, controller.Send(ctx, "q1"))
	require.NoError(t, controller.Send(ctx, "q2"))

	session.Finish("r1")
	session.Finish("r2")
	session.Finish("r3")

	sent := session.Sent()
	require.Len(t, sent, 3)
	require.Equal(t, "q1", lastText(sent[1].Messages))
	require.Equal(t, "q2", lastText(sent[2].Messages))
	require.Equal(t, 0, controller.QueueLen())
}

func lastText(messages conversation.Conversation) string {
	return messages[len(messages)-1].Text
}

func TestRetrySnapshotsAndResends(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")

	userID := controller.History()[0].ID
	require.NoError(t, controller.Retry(ctx))

	_, key := controller.ActiveBranch()
	require.Equal(t, fmt.Sprintf("retry-%s", userID), key)
	require.Equal(t, 1, controller.BranchCount())

	// live history dropped the previous assistant reply
	history := controller.History()
	require.Len(t, history, 1)
	require.Equal(t, "A", history[0].Text)

	// the resend went out with the same user message
	sent := session.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, "A", lastText(sent[1].Messages))

	session.Finish("B2")
	require.Len(t, controller.History(), 2)
	require.Equal(t, "B2", controller.History()[1].Text)
}

func TestRetryWithoutUserMessage(t *testing.T) {
	controller, _ := newTestController(t)
	require.ErrorIs(t, controller.Retry(context.Background()), ErrNoUserMessage)
}

func TestSubmitEditForksAndHidesSuffix(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")
	require.NoError(t, controller.Send(ctx, "C"))
	session.Finish("D")

	history := controller.History()
	target := history[2] // user message "C"
	targetIndex := 2

	staged, err := controller.BeginEdit(target.ID)
	require.NoError(t, err)
	require.Equal(t, "C", staged)

	require.NoError(t, controller.SubmitEdit(ctx, "C2"))

	// only the prefix plus the replacement is visible while the reply is pending
	display := controller.DisplayMessages()
	real := 0
	for _, msg := range display {
		if !msg.Streaming && !msg.Pending {
			real++
		}
	}
	require.Equal(t, targetIndex+1, real)
	require.Equal(t, "C2", display[targetIndex].Text)

	session.Finish("D2")

	// cutoff cleared once the replacement's reply landed
	display = controller.DisplayMessages()
	require.Len(t, display, 4)
	require.Equal(t, []string{"A", "B", "C2", "D2"}, displayTexts(display))
}

func displayTexts(display []DisplayMessage) []string {
	ret := make([]string, len(display))
	for i, msg := range display {
		ret[i] = msg.Text
	}
	return ret
}

func TestEditBranchSnapshotIsIsolated(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")

	before := controller.History()
	target := before[0]

	_, err := controller.BeginEdit(target.ID)
	require.NoError(t, err)
	require.NoError(t, controller.SubmitEdit(ctx, "A2"))
	session.Finish("B2")

	// a second branch so navigation has somewhere to go
	require.NoError(t, controller.Retry(ctx))
	session.Finish("B3")

	// keep mutating the live history
	require.NoError(t, controller.Send(ctx, "more"))
	session.Finish("even more")

	// the edit snapshot still holds the exact pre-truncation history
	require.True(t, controller.PrevBranch())
	restored := controller.History()
	require.Len(t, restored, 2)
	require.Equal(t, "A", restored[0].Text)
	require.Equal(t, "B", restored[1].Text)
}

func TestBeginEditRejectsAssistantMessage(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")

	_, err := controller.BeginEdit(controller.History()[1].ID)
	require.ErrorIs(t, err, ErrNotUserMessage)
}

func TestSendWhileEditingIsRejected(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")

	_, err := controller.BeginEdit(controller.History()[0].ID)
	require.NoError(t, err)

	require.ErrorIs(t, controller.Send(ctx, "other"), ErrEditInProgress)

	controller.CancelEdit()
	require.NoError(t, controller.Send(ctx, "other"))
}

func TestCyclicBranchNavigationRoundTrip(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")

	for i := 0; i < 3; i++ {
		require.NoError(t, controller.Retry(ctx))
		session.Finish(fmt.Sprintf("B%d", i+2))
	}
	require.Equal(t, 3, controller.BranchCount())

	startIndex, startKey := controller.ActiveBranch()
	for i := 0; i < 3; i++ {
		require.True(t, controller.NextBranch())
	}
	index, key := controller.ActiveBranch()
	require.Equal(t, startIndex, index)
	require.Equal(t, startKey, key)
}

func TestBranchNavigationNoOpWithOneBranch(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.False(t, controller.NextBranch())
	require.False(t, controller.PrevBranch())

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")
	require.NoError(t, controller.Retry(ctx))
	session.Finish("B2")

	require.Equal(t, 1, controller.BranchCount())
	require.False(t, controller.NextBranch())
}

func TestBranchSwitchAppliesCutoffAsHiddenBoundary(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")
	require.NoError(t, controller.Retry(ctx))
	session.Finish("B2")
	require.NoError(t, controller.Retry(ctx))
	session.Finish("B3")

	// switch to the first retry branch: snapshot [A, B], cutoff at A
	require.True(t, controller.NextBranch())
	_, key := controller.ActiveBranch()
	require.Contains(t, key, "retry-")

	display := controller.DisplayMessages()
	require.Len(t, display, 1)
	require.Equal(t, "A", display[0].Text)

	// the full snapshot is still there underneath
	require.Len(t, controller.History(), 2)
}

func TestBranchSwitchRefusedWhileStreaming(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")
	require.NoError(t, controller.Retry(ctx))
	session.Finish("B2")
	require.NoError(t, controller.Retry(ctx))
	session.Finish("B3")
	require.Equal(t, 2, controller.BranchCount())

	require.NoError(t, controller.Send(ctx, "C"))
	session.EmitDelta("rep")

	// switching mid-stream would let the in-flight reply land on the
	// restored branch
	require.False(t, controller.NextBranch())
	require.False(t, controller.PrevBranch())

	session.Finish("reply-to-C")

	history := controller.History()
	require.Equal(t, []string{"A", "B3", "C", "reply-to-C"}, historyTexts(history))

	// once the channel is free, switching works again
	require.True(t, controller.NextBranch())
}

func historyTexts(history conversation.Conversation) []string {
	ret := make([]string, len(history))
	for i, msg := range history {
		ret[i] = msg.Text
	}
	return ret
}

func TestDisplayRowIDsAreStableAcrossRenders(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "first"))
	session.EmitDelta("partial ")
	require.NoError(t, controller.Send(ctx, "queued"))

	first := controller.DisplayMessages()
	second := controller.DisplayMessages()
	require.Len(t, first, 3)

	// streaming placeholder and pending row keep their ids between renders
	require.Equal(t, first[1].ID, second[1].ID)
	require.Equal(t, first[2].ID, second[2].ID)

	// the pending row keeps its id once it drains into the live history
	pendingID := first[2].ID
	session.Finish("r1")
	require.Equal(t, pendingID, controller.History()[2].ID)
}

func TestTransportErrorSurfacesAndDrainContinues(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "first"))
	require.NoError(t, controller.Send(ctx, "second"))

	session.Fail(errors.New("boom"))

	// the failure did not poison the queue: "second" went out on its own
	require.Equal(t, 0, controller.QueueLen())
	require.Len(t, session.Sent(), 2)
}

func TestTransportErrorIsTerminalForAttempt(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "first"))
	session.Fail(errors.New("boom"))

	require.Error(t, controller.LastError())
	require.Contains(t, controller.LastError().Error(), "boom")
	require.Len(t, session.Sent(), 1)

	// recovery is a fresh user action
	require.NoError(t, controller.Send(ctx, "again"))
	require.NoError(t, controller.LastError())
}

func TestStopKeepsPartialReplyAndDrainsQueue(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "first"))
	session.EmitDelta("par")
	require.NoError(t, controller.Send(ctx, "second"))

	controller.Stop()

	history := controller.History()
	require.Equal(t, "par", history[1].Text)
	require.Equal(t, conversation.RoleAssistant, history[1].Role)

	// queued message drained once the stopped state settled
	require.Equal(t, 0, controller.QueueLen())
	require.Len(t, session.Sent(), 2)
}

func TestDisplayShowsStreamingPlaceholderAndPendingEntries(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "first"))
	session.EmitDelta("partial ")
	require.NoError(t, controller.Send(ctx, "queued"))

	display := controller.DisplayMessages()
	require.Len(t, display, 3)

	require.Equal(t, "first", display[0].Text)
	require.True(t, display[1].Streaming)
	require.Equal(t, conversation.RoleAssistant, display[1].Role)
	require.Equal(t, "partial ", display[1].Text)
	require.True(t, display[2].Pending)
	require.Equal(t, "queued", display[2].Text)
}

func TestNewChatResetsEverything(t *testing.T) {
	ctx := context.Background()
	controller, session := newTestController(t)

	require.NoError(t, controller.Send(ctx, "A"))
	session.Finish("B")
	require.NoError(t, controller.Retry(ctx))
	session.Finish("B2")
	require.NoError(t, controller.Send(ctx, "C"))
	require.NoError(t, controller.Send(ctx, "queued"))

	controller.NewChat()

	require.Empty(t, controller.History())
	require.Equal(t, 0, controller.BranchCount())
	require.Equal(t, 0, controller.QueueLen())
	require.Empty(t, controller.DisplayMessages())
	require.NoError(t, controller.LastError())
}

func TestEmptySendIsRejected(t *testing.T) {
	controller, _ := newTestController(t)
	require.ErrorIs(t, controller.Send(context.Background(), "   "), ErrEmptyMessage)
}
