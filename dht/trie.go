package dht

import "github.com/foobarren/freeswitch-old/nodeid"

// trieNode is one element of the routing table's binary trie. A leaf owns
// a Bucket and no children; an internal node owns exactly two children
// and no bucket. The root starts as a leaf with an all-ones mask and is
// treated as splittable even though it has no parent — the same "fake
// left" convention the routing table's origin uses.
//
// Only isLocalSide nodes may ever split further, which is what keeps the
// table's total size bounded. split always marks the left child (the ids
// at or below the narrowed mask) as the local side and the right child as
// non-splittable; the table's local ID is not consulted, so the refined
// side contains the local ID only when that ID falls in the left half at
// every split (for example, an all-zero local ID).
type trieNode struct {
	parent *trieNode
	left   *trieNode
	right  *trieNode

	// left1bit/right1bit record the last leaf a closest-N walk visited in
	// this node's left or right subtree. They are never authoritative and
	// no lookup reads them.
	left1bit  *trieNode
	right1bit *trieNode

	bucket      *Bucket
	mask        nodeid.ID
	isLocalSide bool
}

func newRootTrieNode() *trieNode {
	return &trieNode{
		mask:        nodeid.MaxID(),
		bucket:      newBucket(),
		isLocalSide: true,
	}
}

// isLeaf reports whether n owns a bucket directly.
func (n *trieNode) isLeaf() bool {
	return n.bucket != nil
}

// descend walks from n to the leaf that owns id, following the rule: at
// each internal node, take the left child if it exists and id satisfies
// its mask, otherwise take the right child. The root's all-ones mask
// guarantees this never fails to terminate at a leaf.
func (n *trieNode) descend(id nodeid.ID) *trieNode {
	cur := n
	for !cur.isLeaf() {
		if cur.left != nil && nodeid.MaskMatch(id, cur.left.mask) {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur
}

// split divides a leaf into two children: a more restrictive left leaf
// (one bit narrower, on the local side, eligible for further splitting)
// and a right leaf that inherits the parent's old mask and bucket
// wholesale. Every slot in the old bucket whose id now satisfies the
// left mask is moved into the new left bucket, preserving insertion
// order; everything else stays put in what becomes the right leaf.
//
// The leaf being split must already be locked for writing by the caller;
// split re-parents the bucket's slots without taking any bucket lock
// itself, since the old bucket is about to be detached from the trie
// entirely and handed to the new right leaf.
func (n *trieNode) split() {
	leftMask := nodeid.ShiftRight(n.mask)

	left := &trieNode{
		parent:      n,
		mask:        leftMask,
		bucket:      newBucket(),
		isLocalSide: true,
	}
	right := &trieNode{
		parent:      n,
		mask:        n.mask,
		bucket:      n.bucket,
		isLocalSide: false,
	}

	old := n.bucket
	for i := range old.slots {
		s := &old.slots[i]
		if !s.inUse {
			continue
		}
		if nodeid.MaskMatch(s.id, leftMask) {
			moveSlot(old, left.bucket, i)
		}
	}

	n.bucket = nil
	n.left = left
	n.right = right
}

// moveSlot relocates the occupant of src.slots[i] into the first free (or
// expired) slot of dst, compacting src by clearing the vacated slot.
func moveSlot(src, dst *Bucket, i int) {
	s := src.slots[i]
	j := dst.freeSlotLocked()
	if j < 0 {
		// A split never overflows a fresh, empty destination bucket:
		// the source held at most K slots and the destination starts
		// with zero, so this would indicate a broken invariant.
		panic("dht: split produced more slots than bucket capacity")
	}
	dst.slots[j] = s
	dst.count++
	src.slots[i] = slot{}
	src.count--
}
