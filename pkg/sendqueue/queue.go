package sendqueue

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultCapacity caps how many outbound messages can pile up behind an
// in-flight streaming response.
const DefaultCapacity = 5

// Entry is one queued outbound message. The ID is minted at enqueue time
// and follows the message into the live history when it is sent, so UI
// rows keyed by id stay stable across renders.
type Entry struct {
	ID   uuid.UUID
	Text string
}

// Queue is a bounded FIFO of pending outbound user messages. It holds
// sends that arrive while a response is still streaming and releases them
// one at a time once the channel is free.
//
// Overflow is a silent drop, not an error. Capping latency and memory was
// preferred over signalling backpressure beyond the visible queue-length
// indicator.
//
// A Queue is private to one controller and relies on its serialization;
// it is not safe for concurrent use on its own.
type Queue struct {
	entries  []Entry
	capacity int
}

func New() *Queue {
	return NewWithCapacity(DefaultCapacity)
}

func NewWithCapacity(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends text to the queue, preserving FIFO order. Empty or
// whitespace-only input and enqueues past capacity are silently dropped.
func (q *Queue) Enqueue(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if len(q.entries) >= q.capacity {
		return
	}
	q.entries = append(q.entries, Entry{ID: uuid.New(), Text: text})
}

// DequeueFront removes and returns the oldest entry, or false if the
// queue is empty.
func (q *Queue) DequeueFront() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// Remove drops the entry at the given index, for user-initiated
// cancellation of a queued item. Out-of-range indices are a no-op.
func (q *Queue) Remove(index int) {
	if index < 0 || index >= len(q.entries) {
		return
	}
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
}

func (q *Queue) Clear() {
	q.entries = nil
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queued entries in FIFO order.
func (q *Queue) Entries() []Entry {
	ret := make([]Entry, len(q.entries))
	copy(ret, q.entries)
	return ret
}

// Texts returns just the queued message texts in FIFO order.
func (q *Queue) Texts() []string {
	ret := make([]string, len(q.entries))
	for i, entry := range q.entries {
		ret[i] = entry.Text
	}
	return ret
}
