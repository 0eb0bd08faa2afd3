package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func testHistory(texts ...string) Conversation {
	var ret Conversation
	for i, text := range texts {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		ret = append(ret, NewChatMessage(role, text))
	}
	return ret
}

func TestRecordStoresSnapshotAndCutoff(t *testing.T) {
	bs := NewBranchStore()
	history := testHistory("A", "B")

	bs.Record("retry-1", history, 0)

	branch, ok := bs.Get("retry-1")
	require.True(t, ok)
	require.Equal(t, 0, branch.CutoffIndex)
	require.Len(t, branch.Snapshot, 2)
	require.Equal(t, "A", branch.Snapshot[0].Text)
	require.Equal(t, "B", branch.Snapshot[1].Text)
}

func TestSnapshotIsIsolatedFromCallerHistory(t *testing.T) {
	bs := NewBranchStore()
	history := testHistory("A", "B")

	bs.Record("edit-1", history, 0)

	// mutating the live history must never reach the stored snapshot
	history[0].Text = "mutated"

	branch, _ := bs.Get("edit-1")
	require.Equal(t, "A", branch.Snapshot[0].Text)
	require.Len(t, branch.Snapshot, 2)
}

func TestCreationOrderIsAppendOnly(t *testing.T) {
	bs := NewBranchStore()
	history := testHistory("A")

	bs.Record("k1", history, 0)
	bs.Record("k2", history, 0)
	bs.Record("k3", history, 0)
	require.Equal(t, []string{"k1", "k2", "k3"}, bs.CreationOrder())

	// overwriting an existing key keeps its position
	bs.Record("k1", history, 0)
	require.Equal(t, []string{"k1", "k2", "k3"}, bs.CreationOrder())
	require.Equal(t, 3, bs.Count())
}

func TestNextKeyDisambiguatesRepeatedOrigins(t *testing.T) {
	bs := NewBranchStore()
	originID := NewNodeID()

	k1 := bs.NextKey(BranchKindEdit, originID)
	k2 := bs.NextKey(BranchKindEdit, originID)
	k3 := bs.NextKey(BranchKindEdit, originID)

	require.Equal(t, fmt.Sprintf("edit-%s", originID), k1)
	require.Equal(t, fmt.Sprintf("edit-%s-2", originID), k2)
	require.Equal(t, fmt.Sprintf("edit-%s-3", originID), k3)

	// a different kind for the same origin gets its own counter
	require.Equal(t, fmt.Sprintf("retry-%s", originID), bs.NextKey(BranchKindRetry, originID))
}

func TestClearDropsEverything(t *testing.T) {
	bs := NewBranchStore()
	originID := NewNodeID()
	bs.Record(bs.NextKey(BranchKindRetry, originID), testHistory("A"), 0)

	bs.Clear()
	require.Equal(t, 0, bs.Count())
	require.Empty(t, bs.CreationOrder())

	// counters reset too: the bare key is available again
	require.Equal(t, fmt.Sprintf("retry-%s", originID), bs.NextKey(BranchKindRetry, originID))
}

func TestGetMissingKey(t *testing.T) {
	bs := NewBranchStore()
	_, ok := bs.Get("nope")
	require.False(t, ok)
}
