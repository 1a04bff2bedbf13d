package dht

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/foobarren/freeswitch-old/nodeid"
)

// NodeType is a bitset describing what role a peer plays. Local nodes are
// exempt from the liveness sweep's expiry logic.
type NodeType uint8

const (
	// TypeRemote marks an ordinary discovered peer, subject to aging.
	TypeRemote NodeType = 1 << iota
	// TypeLocal marks a node that must never be expired by the sweep.
	TypeLocal
)

// Has reports whether t shares any bit with mask — the same semantics the
// closest-N query uses to filter by type_mask.
func (t NodeType) Has(mask NodeType) bool {
	return t&mask != 0
}

// Family identifies a peer's network address family. FamilyEither is only
// meaningful as a Closest filter value; it is never stored on a Node.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
	FamilyEither
)

// matches reports whether a node's concrete family satisfies a filter
// value, which may be FamilyEither.
func (f Family) matches(filter Family) bool {
	return filter == FamilyEither || f == filter
}

// Node is a peer record. It outlives any single bucket slot: Delete only
// unlinks it from its slot and queues it for reclamation, so a caller that
// is still holding a NodeRef from an earlier Find or Closest call keeps a
// valid, unmodified view of it.
//
// refLock doubles as the reference count described in the design notes:
// every borrow takes a read lock, Release drops it, and the deferred
// reclamation sweep only frees the node once a non-blocking write lock
// succeeds — i.e. once no reader remains. This gives an unbounded number
// of concurrent readers and at most one reclaimer, with no separate
// counter to keep in sync.
//
//export DHTNode
type Node struct {
	ID      nodeid.ID
	Addr    net.Addr
	Family  Family
	Type    NodeType
	refLock sync.RWMutex
}

// reset clears a node so the pool can recycle its allocation.
func (n *Node) reset() {
	n.ID = nodeid.ID{}
	n.Addr = nil
	n.Family = 0
	n.Type = 0
}

// NodeRef is a borrowed handle to a Node returned by Find and Closest.
// The caller must call Release exactly once when done with it; failing
// to do so permanently blocks reclamation of that Node.
type NodeRef struct {
	node     *Node
	released int32
}

func borrowNode(n *Node) *NodeRef {
	n.refLock.RLock()
	return &NodeRef{node: n}
}

// Node returns the underlying peer record. The record must not be
// retained past Release.
func (r *NodeRef) Node() *Node {
	return r.node
}

// Release drops this borrow. Calling it more than once is a programming
// error and panics, matching the "invariant violations are fatal" rule.
func (r *NodeRef) Release() {
	if !atomic.CompareAndSwapInt32(&r.released, 0, 1) {
		panic("dht: NodeRef released more than once")
	}
	r.node.refLock.RUnlock()
}
