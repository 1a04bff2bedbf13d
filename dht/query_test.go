package dht

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foobarren/freeswitch-old/nodeid"
)

// expectedClosest recomputes Closest's answer independently from Dump, using
// the same filter semantics Closest itself applies, so tests aren't coupled
// to the trie's internal split/widening mechanics.
func expectedClosest(t *testing.T, table *Table, target nodeid.ID, n int, filter QueryFilter) []nodeid.ID {
	t.Helper()

	var kept []DumpEntry
	for _, e := range table.Dump() {
		if filter.TypeMask != 0 && !e.Type.Has(filter.TypeMask) {
			continue
		}
		if !e.Family.matches(filter.Family) {
			continue
		}
		if filter.ActiveOnly && e.Flags != FlagActive {
			continue
		}
		kept = append(kept, e)
	}

	sort.Slice(kept, func(i, j int) bool {
		return nodeid.Less(nodeid.XOR(kept[i].ID, target), nodeid.XOR(kept[j].ID, target))
	})
	if len(kept) > n {
		kept = kept[:n]
	}

	ids := make([]nodeid.ID, len(kept))
	for i, e := range kept {
		ids[i] = e.ID
	}
	return ids
}

func TestClosestOrdersByNonDecreasingDistance(t *testing.T) {
	local := randID(t)
	table := NewTable(local)

	// K random ids always fit in the root bucket; more could overflow the
	// non-splittable right leaf and make an insert return ErrCapacity.
	const count = K
	for i := 0; i < count; i++ {
		id := randID(t)
		require.NoError(t, table.CreateOrTouch(id, newTestAddr("a"), FamilyV4, TypeRemote))
	}

	target := randID(t)
	// n == population: the final population-wide sort, not the widening
	// heuristic, is what this test is checking.
	result := table.Closest(target, count, QueryFilter{})
	defer result.ReleaseAll()

	got := result.Nodes()
	require.Len(t, got, count)

	for i := 1; i < len(got); i++ {
		prev := nodeid.XOR(got[i-1].Node().ID, target)
		cur := nodeid.XOR(got[i].Node().ID, target)
		assert.False(t, nodeid.Less(cur, prev), "result not sorted at index %d", i)
	}

	want := expectedClosest(t, table, target, count, QueryFilter{})
	require.Len(t, got, len(want))
	for i, ref := range got {
		assert.Equal(t, want[i], ref.Node().ID, "position %d", i)
	}
}

func TestClosestAppliesFilter(t *testing.T) {
	local := randID(t)
	table := NewTable(local)

	const count = K // random ids beyond K could overflow the non-splittable right leaf
	ids := make([]nodeid.ID, count)
	for i := 0; i < count; i++ {
		family := FamilyV4
		typ := TypeRemote
		if i%3 == 0 {
			family = FamilyV6
		}
		if i%7 == 0 {
			typ = TypeLocal
		}
		id := randID(t)
		require.NoError(t, table.CreateOrTouch(id, newTestAddr("a"), family, typ))
		if i%2 == 0 {
			table.Touch(id) // promotes to FlagActive; everything else stays FlagDubious
		}
		ids[i] = id
	}

	target := randID(t)
	filter := QueryFilter{Family: FamilyV4, TypeMask: TypeRemote, ActiveOnly: true}

	result := table.Closest(target, count, filter)
	defer result.ReleaseAll()

	got := result.Nodes()
	want := expectedClosest(t, table, target, count, filter)
	require.Len(t, got, len(want))

	for i, ref := range got {
		n := ref.Node()
		assert.Equal(t, want[i], n.ID, "position %d", i)
		assert.True(t, n.Family.matches(filter.Family))
		assert.True(t, n.Type.Has(filter.TypeMask))
	}
}

func TestClosestWidensAcrossSplitLeaves(t *testing.T) {
	var local nodeid.ID // all-zero: low id[0] values stay on the local side

	table := NewTable(local)

	const count = K + 10
	ids := make([]nodeid.ID, count)
	for i := 0; i < count; i++ {
		var id nodeid.ID
		id[0] = byte(i)
		id[nodeid.Len-1] = byte(i + 1)
		require.NoErrorf(t, table.CreateOrTouch(id, newTestAddr("a"), FamilyV4, TypeRemote),
			"insert %d should not fail: the local-side bucket should keep splitting", i)
		ids[i] = id
	}

	// More than K entries on the local side force at least one split, so a
	// query wide enough to need the whole population can't be satisfied by
	// the starting leaf alone — it must widen out to sibling subtrees.
	require.NotNil(t, table.root.left)
	require.NotNil(t, table.root.right)

	result := table.Closest(local, count, QueryFilter{})
	defer result.ReleaseAll()

	got := result.Nodes()
	assert.Len(t, got, count)

	seen := make(map[nodeid.ID]bool, len(got))
	for _, ref := range got {
		seen[ref.Node().ID] = true
	}
	for _, id := range ids {
		assert.True(t, seen[id], "missing %s from widened result", id)
	}

	for i := 1; i < len(got); i++ {
		prev := nodeid.XOR(got[i-1].Node().ID, local)
		cur := nodeid.XOR(got[i].Node().ID, local)
		assert.False(t, nodeid.Less(cur, prev))
	}

	// The widening walk should have cached at least one sibling lookup
	// rather than leaving every left1bit/right1bit nil.
	cached := false
	var walk func(n *trieNode)
	walk = func(n *trieNode) {
		if n == nil {
			return
		}
		if n.left1bit != nil || n.right1bit != nil {
			cached = true
		}
		walk(n.left)
		walk(n.right)
	}
	walk(table.root)
	assert.True(t, cached, "expected Closest to populate a sibling cache while widening")
}

func TestClosestNExceedsPopulationReturnsAllAvailable(t *testing.T) {
	local := randID(t)
	table := NewTable(local)

	ids := []nodeid.ID{randID(t), randID(t), randID(t)}
	for _, id := range ids {
		require.NoError(t, table.CreateOrTouch(id, newTestAddr("a"), FamilyV4, TypeRemote))
	}

	result := table.Closest(randID(t), 50, QueryFilter{})
	defer result.ReleaseAll()

	assert.Len(t, result.Nodes(), len(ids))
}

func TestClosestReleaseAllReleasesEveryRef(t *testing.T) {
	local := randID(t)
	table := NewTable(local)

	for i := 0; i < 5; i++ {
		require.NoError(t, table.CreateOrTouch(randID(t), newTestAddr("a"), FamilyV4, TypeRemote))
	}

	result := table.Closest(randID(t), 5, QueryFilter{})
	got := result.Nodes()
	require.NotEmpty(t, got)

	result.ReleaseAll()

	for _, ref := range got {
		assert.Panics(t, func() { ref.Release() }, "ReleaseAll should have already released every ref")
	}
}
