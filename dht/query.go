package dht

import (
	"sort"

	"github.com/foobarren/freeswitch-old/nodeid"
)

// QueryFilter narrows a Closest call to a subset of stored peers.
type QueryFilter struct {
	// TypeMask restricts results to nodes whose Type shares a bit with
	// this mask. A zero value matches every type.
	TypeMask NodeType
	// Family restricts results by address family. FamilyEither matches
	// both; the zero value is FamilyV4, which matches only IPv4 peers.
	Family Family
	// ActiveOnly, when set, excludes dubious and expired slots.
	ActiveOnly bool
}

func (f QueryFilter) accepts(s *slot) bool {
	if f.TypeMask != 0 && !s.typ.Has(f.TypeMask) {
		return false
	}
	if !s.family.matches(f.Family) {
		return false
	}
	if f.ActiveOnly && s.flags != FlagActive {
		return false
	}
	return true
}

// candidate pairs a borrowed node with its XOR distance from the query
// target, so the merge step can sort without recomputing distance.
type candidate struct {
	ref  *NodeRef
	dist nodeid.ID
}

// Closest returns up to n peers whose IDs are nearest to target by XOR
// distance, closest first, subject to filter. It starts at the leaf
// target itself would occupy and walks outward — the sibling subtree at
// each ancestor, narrowest to widest — stopping once it has collected at
// least n matching candidates from a fully-visited ancestor level, the
// same "expand the mask by one bit at a time until satisfied" rule the
// routing table is built around.
//
// Every NodeRef in the result must be released exactly once; QueryResult
// provides ReleaseAll for convenience.
func (t *Table) Closest(target nodeid.ID, n int, filter QueryFilter) QueryResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var all []candidate
	leaf := t.root.descend(target)
	visited := map[*trieNode]bool{}

	collect := func(lf *trieNode) {
		if visited[lf] {
			return
		}
		visited[lf] = true
		all = append(all, t.collectLeaf(lf, target, filter)...)
	}
	collect(leaf)

	// Widen outward: at each ancestor, pull in the sibling subtree's
	// leaves too, recording the last leaf walked on that side in the
	// ancestor's sibling cache.
	cur := leaf
	for cur.parent != nil && len(all) < n {
		p := cur.parent
		var sibling *trieNode
		if p.left == cur {
			sibling = p.right
		} else {
			sibling = p.left
		}
		if sibling != nil {
			t.collectSubtreeCached(p, cur, sibling, target, filter, collect)
		}
		cur = p
	}

	sort.Slice(all, func(i, j int) bool {
		return nodeid.Less(all[i].dist, all[j].dist)
	})
	if len(all) > n {
		for _, extra := range all[n:] {
			extra.ref.Release()
		}
		all = all[:n]
	}

	refs := make([]*NodeRef, len(all))
	for i, c := range all {
		refs[i] = c.ref
	}
	return QueryResult{refs: refs}
}

// collectSubtreeCached collects every leaf of sibling's subtree and
// records the last leaf it walked in p's right1bit or left1bit (the side
// opposite from). Nothing reads that cache back: every query walks the
// whole sibling subtree again, so a stale entry cannot affect results.
func (t *Table) collectSubtreeCached(p, from, sibling *trieNode, target nodeid.ID, filter QueryFilter, collect func(*trieNode)) {
	var cachedSlot **trieNode
	if p.left == from {
		cachedSlot = &p.right1bit
	} else {
		cachedSlot = &p.left1bit
	}

	var walk func(n *trieNode)
	walk = func(n *trieNode) {
		if n.isLeaf() {
			collect(n)
			*cachedSlot = n
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(sibling)
}

// collectLeaf borrows a NodeRef for every slot in lf's bucket that
// satisfies filter, tagging each with its XOR distance to target.
func (t *Table) collectLeaf(lf *trieNode, target nodeid.ID, filter QueryFilter) []candidate {
	lf.bucket.mu.RLock()
	defer lf.bucket.mu.RUnlock()

	var out []candidate
	for i := range lf.bucket.slots {
		s := &lf.bucket.slots[i]
		if !s.inUse || !filter.accepts(s) {
			continue
		}
		out = append(out, candidate{
			ref:  borrowNode(s.node),
			dist: nodeid.XOR(s.id, target),
		})
	}
	return out
}

// QueryResult holds the borrowed peers returned by Closest.
type QueryResult struct {
	refs []*NodeRef
}

// Nodes returns the ordered, closest-first list of borrowed references.
func (r QueryResult) Nodes() []*NodeRef {
	return r.refs
}

// ReleaseAll releases every NodeRef in the result.
func (r QueryResult) ReleaseAll() {
	for _, ref := range r.refs {
		ref.Release()
	}
}
