package conversation

import (
	"fmt"
)

// BranchKind describes what user action created a branch.
type BranchKind string

const (
	BranchKindEdit  BranchKind = "edit"
	BranchKindRetry BranchKind = "retry"
)

// Branch is a saved fork of the conversation history, captured at the
// moment a user edited a past message or retried the last exchange.
//
// CutoffIndex points at the last message of Snapshot that is shared with
// the path the user diverged from. Messages after the cutoff belong to the
// snapshot's own exploration path and are hidden while a different branch
// is active.
type Branch struct {
	Key         string       `json:"key"`
	Snapshot    Conversation `json:"snapshot"`
	CutoffIndex int          `json:"cutoffIndex"`
}

// BranchStore holds every fork taken during a chat session.
//
// It owns:
// - the branch snapshots, keyed by branch key (snapshots are deep copies,
//   never shared with the live history)
// - the append-only creation order used for deterministic cyclic navigation
//
// There is no eviction. Growth is driven only by explicit user edit/retry
// actions, which bounds it by user patience.
type BranchStore struct {
	branches map[string]*Branch
	order    []string
	perKey   map[string]int
}

func NewBranchStore() *BranchStore {
	return &BranchStore{
		branches: make(map[string]*Branch),
		perKey:   make(map[string]int),
	}
}

// NextKey issues a collision-free key for a new branch originating at the
// given message. The first branch for an origin gets the bare
// "<kind>-<id>" key; later forks of the same origin are disambiguated with
// a monotonic suffix so no earlier exploration is silently overwritten.
func (bs *BranchStore) NextKey(kind BranchKind, originID NodeID) string {
	base := fmt.Sprintf("%s-%s", kind, originID)
	bs.perKey[base]++
	if bs.perKey[base] == 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, bs.perKey[base])
}

// Record stores (or overwrites) a branch under the given key. The snapshot
// is deep-copied so later mutations of the caller's history can never leak
// into the stored branch. A new key is appended to the creation order;
// overwriting an existing key keeps its original position.
func (bs *BranchStore) Record(key string, snapshot Conversation, cutoffIndex int) {
	if _, exists := bs.branches[key]; !exists {
		bs.order = append(bs.order, key)
	}
	bs.branches[key] = &Branch{
		Key:         key,
		Snapshot:    snapshot.Clone(),
		CutoffIndex: cutoffIndex,
	}
}

// Get returns the branch stored under key, or false if absent. The
// returned branch is the store's copy; callers must clone the snapshot
// before using it as a live history.
func (bs *BranchStore) Get(key string) (*Branch, bool) {
	b, ok := bs.branches[key]
	return b, ok
}

func (bs *BranchStore) Count() int {
	return len(bs.branches)
}

// CreationOrder returns the branch keys oldest first. The newest branch is
// always the highest index.
func (bs *BranchStore) CreationOrder() []string {
	ret := make([]string, len(bs.order))
	copy(ret, bs.order)
	return ret
}

// Clear drops all branches. Used on new-chat.
func (bs *BranchStore) Clear() {
	bs.branches = make(map[string]*Branch)
	bs.order = nil
	bs.perKey = make(map[string]int)
}
