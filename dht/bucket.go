package dht

import (
	"sync"
	"time"

	"github.com/foobarren/freeswitch-old/nodeid"
)

// K is the fixed capacity of a bucket: the maximum number of peers any
// single leaf of the routing trie may hold at once.
const K = 20

// Flags classifies a slot's liveness, driven by the sweep and by ping
// responses surfaced through Touch/Expire.
type Flags uint8

const (
	// FlagDubious marks a freshly inserted slot, or one the sweep found
	// older than expiredAge, that has not yet answered a ping. The sweep
	// still ages and pings these like any other non-expired slot.
	FlagDubious Flags = iota
	// FlagActive marks a slot the sweep and closest-N query treat as
	// live and routable.
	FlagActive
	// FlagExpired marks a slot that failed to respond to PingMax probes;
	// it is eligible to be overwritten by a fresh insert.
	FlagExpired
)

// slot is one occupant of a bucket.
type slot struct {
	inUse            bool
	id               nodeid.ID
	node             *Node
	family           Family
	typ              NodeType
	lastSeen         time.Time
	outstandingPings uint8
	touched          bool
	flags            Flags
}

// Bucket is a fixed-capacity, prefix-bounded container of peer slots. It
// is always reached through a trie leaf and never accessed without that
// leaf's identity (its mask) already having been checked by the caller.
//
//export DHTBucket
type Bucket struct {
	mu           sync.RWMutex
	slots        [K]slot
	count        int
	expiredCount int
}

// newBucket returns an empty bucket.
func newBucket() *Bucket {
	return &Bucket{}
}

// findLocked returns the index of the slot holding id, or -1. Caller must
// hold at least a read lock on mu.
func (b *Bucket) findLocked(id nodeid.ID) int {
	for i := range b.slots {
		if b.slots[i].inUse && b.slots[i].id == id {
			return i
		}
	}
	return -1
}

// freeSlotLocked returns the index of an empty or expired slot suitable
// for a fresh occupant, or -1 if the bucket is full of dubious/active
// entries. Caller must hold the write lock.
func (b *Bucket) freeSlotLocked() int {
	for i := range b.slots {
		if !b.slots[i].inUse {
			return i
		}
	}
	for i := range b.slots {
		if b.slots[i].flags == FlagExpired {
			return i
		}
	}
	return -1
}

// occupyLocked installs node into slot i as a freshly inserted, dubious
// entry. Caller must hold the write lock.
func (b *Bucket) occupyLocked(i int, node *Node, now time.Time) {
	wasExpired := b.slots[i].inUse && b.slots[i].flags == FlagExpired
	b.slots[i] = slot{
		inUse:    true,
		id:       node.ID,
		node:     node,
		family:   node.Family,
		typ:      node.Type,
		lastSeen: now,
		flags:    FlagDubious,
	}
	if wasExpired {
		b.expiredCount--
	} else {
		b.count++
	}
}

// clearLocked empties slot i, returning the node it held. Caller must
// hold the write lock.
//
// This intentionally leaves expiredCount untouched even if the cleared
// slot was flagged expired: the sweep is the only writer that increments
// it, and occupyLocked (reinsertion into an expired slot) and
// Table.touchLocked (a late touch reviving an expired slot) are the only
// writers that decrement it. Deletion was never one of those writers in
// the original design this mirrors, so it stays that way here too.
func (b *Bucket) clearLocked(i int) *Node {
	n := b.slots[i].node
	b.slots[i] = slot{}
	b.count--
	return n
}
