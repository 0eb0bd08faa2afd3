package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/weft/pkg/attachments"
	"github.com/go-go-golems/weft/pkg/conversation"
	"github.com/go-go-golems/weft/pkg/sendqueue"
	"github.com/go-go-golems/weft/pkg/store"
	"github.com/go-go-golems/weft/pkg/streaming"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrEditInProgress   = errors.New("an edit is already in progress")
	ErrNoEditInProgress = errors.New("no edit in progress")
	ErrNotUserMessage   = errors.New("message is not a user message")
	ErrMessageNotFound  = errors.New("message not found in live history")
	ErrNoUserMessage    = errors.New("conversation has no user message")
	ErrGenerating       = errors.New("a response is still streaming")
	ErrNoStore          = errors.New("no session store configured")
)

type editState struct {
	originID conversation.NodeID
}

// Controller orchestrates a linear chat history against a streaming
// transport.
//
// It owns:
// - the live message list and the hidden-after visibility cutoff
// - the branch store holding every fork taken by edit/retry actions
// - the bounded send queue serializing user input behind an in-flight reply
//
// The controller reacts to transport completion through the events.Handler
// contract; wire its Handler side to the session's sinks (directly or
// through an event router).
//
// BranchStore and Queue are private to one controller instance, scoped to
// a single chat session. All entry points serialize on one mutex; the
// session is never called with the mutex held, so synchronous event
// delivery cannot deadlock.
type Controller struct {
	logger      zerolog.Logger
	session     streaming.Session
	store       store.SessionStore
	baseOptions streaming.SendOptions

	mu           sync.Mutex
	live         conversation.Conversation
	branches     *conversation.BranchStore
	queue        *sendqueue.Queue
	activeBranch int
	hiddenAfter  int // -1 when nothing is hidden
	editing      *editState
	streamBuf    string
	streamID     conversation.NodeID
	lastErr      error
}

type ControllerOption func(*Controller)

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithStore(s store.SessionStore) ControllerOption {
	return func(c *Controller) {
		c.store = s
	}
}

// WithSendOptions sets the model and metadata attached to every outbound
// send (org/session/user/project/document identifiers).
func WithSendOptions(options streaming.SendOptions) ControllerOption {
	return func(c *Controller) {
		c.baseOptions = options
	}
}

func WithQueueCapacity(capacity int) ControllerOption {
	return func(c *Controller) {
		c.queue = sendqueue.NewWithCapacity(capacity)
	}
}

// WithMessages seeds the live history, e.g. from a persisted session.
func WithMessages(messages ...*conversation.Message) ControllerOption {
	return func(c *Controller) {
		c.live = append(c.live, messages...)
	}
}

func NewController(session streaming.Session, options ...ControllerOption) *Controller {
	ret := &Controller{
		logger:      zerolog.Nop(),
		session:     session,
		branches:    conversation.NewBranchStore(),
		queue:       sendqueue.New(),
		hiddenAfter: -1,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Send dispatches a user message, or enqueues it when a response is still
// streaming. A fresh send always returns to "everything visible": the
// hidden cutoff is cleared before the message is appended.
func (c *Controller) Send(ctx context.Context, text string, atts ...*attachments.Attachment) error {
	text = strings.TrimSpace(text)
	if text == "" && len(atts) == 0 {
		return ErrEmptyMessage
	}
	if err := attachments.ValidateSet(atts); err != nil {
		return err
	}

	c.mu.Lock()
	if c.editing != nil {
		c.mu.Unlock()
		return ErrEditInProgress
	}
	if c.session.Status().Generating() {
		if len(atts) > 0 {
			c.logger.Warn().Int("attachments", len(atts)).Msg("attachments dropped from queued send")
		}
		before := c.queue.Len()
		c.queue.Enqueue(text)
		if c.queue.Len() == before {
			c.logger.Debug().Msg("send queue full, message dropped")
		}
		c.mu.Unlock()
		return nil
	}

	c.lastErr = nil
	c.hiddenAfter = -1
	c.live = append(c.live, conversation.NewChatMessage(conversation.RoleUser, text, conversation.WithAttachments(atts...)))
	payload, options := c.outboundLocked(atts)
	c.mu.Unlock()

	return c.dispatch(ctx, payload, options)
}

// BeginEdit stages an edit of the given user message and returns its text
// for the input field. Nothing in the history is touched yet.
func (c *Controller) BeginEdit(id conversation.NodeID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.live.IndexOf(id)
	if idx < 0 {
		return "", ErrMessageNotFound
	}
	if c.live[idx].Role != conversation.RoleUser {
		return "", ErrNotUserMessage
	}

	c.editing = &editState{originID: id}
	return c.live[idx].Text, nil
}

func (c *Controller) CancelEdit() {
	c.mu.Lock()
	c.editing = nil
	c.mu.Unlock()
}

// EditingID returns the message currently staged for editing, if any.
func (c *Controller) EditingID() (conversation.NodeID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return conversation.NullNode, false
	}
	return c.editing.originID, true
}

// SubmitEdit forks the conversation at the staged message: the full
// current history is snapshotted into the branch store, the live list is
// truncated to the messages before the edit target, the cutoff hides
// everything past the target, and the new text is sent in its place. The
// cutoff clears once the replacement's reply lands.
//
// Snapshot, truncation and cutoff are applied atomically under the
// controller mutex before the resend goes out.
func (c *Controller) SubmitEdit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.editing == nil {
		c.mu.Unlock()
		return ErrNoEditInProgress
	}
	if c.session.Status().Generating() {
		c.mu.Unlock()
		return ErrGenerating
	}

	originID := c.editing.originID
	c.editing = nil
	targetIndex := c.live.IndexOf(originID)
	if targetIndex < 0 {
		c.mu.Unlock()
		return ErrMessageNotFound
	}

	key := c.branches.NextKey(conversation.BranchKindEdit, originID)
	c.branches.Record(key, c.live, targetIndex)
	c.activeBranch = c.branches.Count() - 1

	// The edited message itself is dropped; the resend below replaces it.
	c.live = c.live[:targetIndex]
	c.hiddenAfter = targetIndex
	c.lastErr = nil
	c.live = append(c.live, conversation.NewChatMessage(conversation.RoleUser, text))

	c.logger.Debug().Str("branch_key", key).Int("cutoff", targetIndex).Msg("recorded edit branch")

	payload, options := c.outboundLocked(nil)
	c.mu.Unlock()

	return c.dispatch(ctx, payload, options)
}

// Retry regenerates the reply to the last user message. The current
// history is snapshotted, the previous assistant reply is dropped from the
// live list, and the same user message is sent again. Retry does not hide
// anything; it actively regenerates.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Status().Generating() {
		c.mu.Unlock()
		return ErrGenerating
	}

	idx := c.live.LastIndexOfRole(conversation.RoleUser)
	if idx < 0 {
		c.mu.Unlock()
		return ErrNoUserMessage
	}
	originID := c.live[idx].ID

	key := c.branches.NextKey(conversation.BranchKindRetry, originID)
	c.branches.Record(key, c.live, idx)
	c.activeBranch = c.branches.Count() - 1

	c.live = c.live[:idx+1]
	c.hiddenAfter = -1
	c.lastErr = nil

	c.logger.Debug().Str("branch_key", key).Int("cutoff", idx).Msg("recorded retry branch")

	payload, options := c.outboundLocked(c.live[idx].Attachments)
	c.mu.Unlock()

	return c.dispatch(ctx, payload, options)
}

// NextBranch cycles forward through the recorded branches. It restores the
// target branch's snapshot as the live history and applies its cutoff, so
// only the pre-fork prefix shows until the user sends again on that
// branch. A no-op unless more than one branch exists, and refused while a
// reply is streaming.
func (c *Controller) NextBranch() bool {
	return c.cycleBranch(1)
}

// PrevBranch cycles backward. See NextBranch.
func (c *Controller) PrevBranch() bool {
	return c.cycleBranch(-1)
}

func (c *Controller) cycleBranch(delta int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// switching mid-stream would let the in-flight reply land on the
	// restored branch's history
	if c.session.Status().Generating() {
		return false
	}

	order := c.branches.CreationOrder()
	n := len(order)
	if n < 2 {
		return false
	}

	c.activeBranch = ((c.activeBranch+delta)%n + n) % n
	key := order[c.activeBranch]
	branch, ok := c.branches.Get(key)
	if !ok {
		return false
	}

	c.live = branch.Snapshot.Clone()
	c.hiddenAfter = branch.CutoffIndex
	c.editing = nil

	c.logger.Debug().Str("branch_key", key).Int("active_branch", c.activeBranch).Msg("switched branch")
	return true
}

// NewChat stops any in-flight reply and resets every piece of state:
// history, branches, queue, cutoff, edit staging.
func (c *Controller) NewChat() {
	// clear the queue first so the stop's settling does not drain stale
	// sends into the fresh chat
	c.mu.Lock()
	c.queue.Clear()
	c.mu.Unlock()

	c.session.Stop()

	c.mu.Lock()
	c.live = nil
	c.branches.Clear()
	c.queue.Clear()
	c.activeBranch = 0
	c.hiddenAfter = -1
	c.editing = nil
	c.streamBuf = ""
	c.streamID = conversation.NullNode
	c.lastErr = nil
	c.mu.Unlock()
}

// Stop cancels the in-flight reply. Queued messages are kept and drain
// once the stopped state settles.
func (c *Controller) Stop() {
	c.session.Stop()
}

// LoadSession seeds the controller from the session store, replacing all
// current state. On failure the error is logged and the history stays
// empty.
func (c *Controller) LoadSession(ctx context.Context, id string) error {
	if c.store == nil {
		return ErrNoStore
	}

	messages, err := c.store.LoadSession(ctx, id)
	if err != nil {
		c.logger.Error().Err(err).Str("session_id", id).Msg("failed to load session")
		return err
	}

	c.mu.Lock()
	c.live = messages
	c.branches.Clear()
	c.queue.Clear()
	c.activeBranch = 0
	c.hiddenAfter = -1
	c.editing = nil
	c.streamBuf = ""
	c.streamID = conversation.NullNode
	c.lastErr = nil
	c.mu.Unlock()

	return nil
}

// SaveSession persists the live history under the given id.
func (c *Controller) SaveSession(ctx context.Context, id string) error {
	if c.store == nil {
		return ErrNoStore
	}

	c.mu.Lock()
	messages := c.live.Clone()
	c.mu.Unlock()

	return c.store.SaveSession(ctx, id, messages)
}

// History returns a copy of the full live history, ignoring the hidden
// cutoff.
func (c *Controller) History() conversation.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live.Clone()
}

func (c *Controller) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

func (c *Controller) QueueEntries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Texts()
}

// RemoveQueued cancels the queued message at the given index.
func (c *Controller) RemoveQueued(index int) {
	c.mu.Lock()
	c.queue.Remove(index)
	c.mu.Unlock()
}

func (c *Controller) BranchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.branches.Count()
}

// ActiveBranch returns the index into the branch creation order and the
// key of the active branch. Before any branch exists the index is 0 and
// the key is empty: the original path.
func (c *Controller) ActiveBranch() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order := c.branches.CreationOrder()
	if c.activeBranch < len(order) {
		return c.activeBranch, order[c.activeBranch]
	}
	return c.activeBranch, ""
}

func (c *Controller) IsGenerating() bool {
	return c.session.Status().Generating()
}

// LastError returns the error of the most recent failed send attempt, or
// nil. It is cleared by the next send.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// visibleLocked returns the live prefix presented to the UI and to
// downstream send operations.
func (c *Controller) visibleLocked() conversation.Conversation {
	if c.hiddenAfter < 0 {
		return c.live
	}
	end := c.hiddenAfter + 1
	if end > len(c.live) {
		end = len(c.live)
	}
	return c.live[:end]
}

func (c *Controller) outboundLocked(atts []*attachments.Attachment) (conversation.Conversation, streaming.SendOptions) {
	options := c.baseOptions
	options.Attachments = atts
	return c.visibleLocked().Clone(), options
}

func (c *Controller) dispatch(ctx context.Context, payload conversation.Conversation, options streaming.SendOptions) error {
	c.logger.Trace().Str("prompt", payload.GetSinglePrompt()).Msg("dispatching send")
	if err := c.session.Send(ctx, payload, options); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("failed to dispatch send")
		return err
	}
	return nil
}
