package dht

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/foobarren/freeswitch-old/nodeid"
)

const (
	// sweepLongInterval is the cadence between sweeps when the previous
	// cycle sent no probes.
	sweepLongInterval = 300 * time.Second
	// sweepShortInterval is the cadence used after a cycle that sent at
	// least one probe, so a slot pinged this round gets re-checked soon.
	sweepShortInterval = 120 * time.Second

	// inactiveAge is how long a slot may go untouched before the sweep
	// pings it.
	inactiveAge = 600 * time.Second
	// expiredAge is how long a slot may go untouched before the sweep
	// marks it dubious and pings it more urgently.
	expiredAge = 900 * time.Second
	// pingMax is the number of unanswered probes a slot tolerates before
	// the sweep expires it outright.
	pingMax = 3
)

// Table is the routing table's façade: the one type application code and
// the host's sweep driver interact with. It owns the trie, the node pool,
// the pinger, and the deferred-reclamation queue, and enforces the
// table -> bucket -> node lock ordering on every operation.
//
//export DHTTable
type Table struct {
	mu      sync.RWMutex
	root    *trieNode
	localID nodeid.ID

	pool   Pool
	clock  Clock
	pinger Pinger
	log    *logrus.Entry

	reclaimMu   sync.Mutex
	reclaimable []*Node

	sweepMu       sync.Mutex
	nextSweep     time.Time
	sweepInterval time.Duration
}

// Option configures a Table at construction time.
type Option func(*Table)

// WithPool overrides the default free-list Pool.
func WithPool(p Pool) Option {
	return func(t *Table) { t.pool = p }
}

// WithClock overrides the default wall-clock time source, for deterministic
// tests of aging and sweep behavior.
func WithClock(c Clock) Option {
	return func(t *Table) { t.clock = c }
}

// WithPinger installs the host's liveness-probe transport. Without one, the
// sweep still ages and expires slots but never dispatches probes.
func WithPinger(p Pinger) Option {
	return func(t *Table) { t.pinger = p }
}

// WithLogger overrides the table's structured logger.
func WithLogger(log *logrus.Entry) Option {
	return func(t *Table) { t.log = log }
}

// NewTable constructs an empty routing table for localID. The root bucket
// starts as a single splittable leaf, exactly as if the local ID's own
// slot had already carved out the nearest-possible prefix.
func NewTable(localID nodeid.ID, opts ...Option) *Table {
	t := &Table{
		root:          newRootTrieNode(),
		localID:       localID,
		pool:          newFreeListPool(),
		clock:         defaultClock,
		pinger:        noopPinger{},
		log:           logrus.WithField("component", "dht.table"),
		sweepInterval: sweepLongInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.nextSweep = t.clock.Now().Add(t.sweepInterval)
	return t
}

// CreateOrTouch inserts id as a new peer, or refreshes its lastSeen and
// clears its miss count if it is already present. A full, splittable leaf
// is split and retried; since a single split only narrows the owning
// prefix by one bit, every colliding id can still land back in the new
// leaf, so splitting recurses — bounded by the mask's remaining bits —
// until either a slot opens up or the leaf is no longer eligible to split
// (it sits on the non-local side, or its mask is already exhausted), at
// which point it reports ErrCapacity rather than evicting anything —
// eviction is the sweep's job, not insertion's.
func (t *Table) CreateOrTouch(id nodeid.ID, addr net.Addr, family Family, typ NodeType) error {
	if t.tryInsertOrTouch(id, addr, family, typ) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	leaf := t.root.descend(id)
	leaf.bucket.mu.Lock()
	if idx := leaf.bucket.findLocked(id); idx >= 0 {
		t.touchLocked(leaf.bucket, idx)
		leaf.bucket.mu.Unlock()
		return nil
	}
	if j := leaf.bucket.freeSlotLocked(); j >= 0 {
		t.occupySlot(leaf.bucket, j, id, addr, family, typ)
		leaf.bucket.mu.Unlock()
		return nil
	}
	leaf.bucket.mu.Unlock()

	// Each iteration narrows the mask by one more bit, so this terminates
	// in at most nodeid.Len*8 splits even in the worst case.
	for {
		if !leaf.isLocalSide || nodeid.Exhausted(leaf.mask) {
			return ErrCapacity
		}

		leaf.bucket.mu.Lock()
		leaf.split()
		leaf.bucket.mu.Unlock()

		leaf = t.root.descend(id)
		leaf.bucket.mu.Lock()
		if j := leaf.bucket.freeSlotLocked(); j >= 0 {
			t.occupySlot(leaf.bucket, j, id, addr, family, typ)
			leaf.bucket.mu.Unlock()
			return nil
		}
		leaf.bucket.mu.Unlock()
	}
}

// tryInsertOrTouch attempts the common case — the target leaf already has
// room, or already holds id — under only a table read lock. It reports
// whether it succeeded; false means the caller must retry under the
// table's write lock to (possibly) split.
func (t *Table) tryInsertOrTouch(id nodeid.ID, addr net.Addr, family Family, typ NodeType) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf := t.root.descend(id)
	leaf.bucket.mu.Lock()
	defer leaf.bucket.mu.Unlock()

	if idx := leaf.bucket.findLocked(id); idx >= 0 {
		t.touchLocked(leaf.bucket, idx)
		return true
	}
	if j := leaf.bucket.freeSlotLocked(); j >= 0 {
		t.occupySlot(leaf.bucket, j, id, addr, family, typ)
		return true
	}
	return false
}

// occupySlot allocates a Node from the pool and installs it. Caller must
// hold the bucket's write lock.
func (t *Table) occupySlot(b *Bucket, i int, id nodeid.ID, addr net.Addr, family Family, typ NodeType) {
	node := t.pool.Get()
	node.ID = id
	node.Addr = addr
	node.Family = family
	node.Type = typ
	b.occupyLocked(i, node, t.clock.Now())
}

// touchLocked refreshes an already-present slot: clears its outstanding
// pings, marks it active, and — if it had been flagged expired —
// decrements the bucket's expiredCount, since this is the sole writer
// responsible for that decrement outside of insertion into a fresh slot.
// Caller must hold the bucket's write lock.
func (t *Table) touchLocked(b *Bucket, i int) {
	s := &b.slots[i]
	if s.flags == FlagExpired {
		b.expiredCount--
	}
	s.lastSeen = t.clock.Now()
	s.outstandingPings = 0
	s.touched = true
	s.flags = FlagActive
}

// Touch marks id as having answered a ping, the host's side of the
// ping/pong contract established by Pinger. It is a no-op — not an error
// — if id is not present, since a late response for an already-expired
// and reclaimed slot is expected, not exceptional.
func (t *Table) Touch(id nodeid.ID) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf := t.root.descend(id)
	leaf.bucket.mu.Lock()
	defer leaf.bucket.mu.Unlock()

	if idx := leaf.bucket.findLocked(id); idx >= 0 {
		t.touchLocked(leaf.bucket, idx)
	}
}

// Expire marks id as having failed to answer a ping. Unlike the sweep's
// own aging pass, a single Expire call does not itself evict the slot —
// it only records the miss; eviction still happens only once
// outstandingPings reaches pingMax, during the next sweep.
func (t *Table) Expire(id nodeid.ID) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf := t.root.descend(id)
	leaf.bucket.mu.Lock()
	defer leaf.bucket.mu.Unlock()

	if idx := leaf.bucket.findLocked(id); idx >= 0 {
		leaf.bucket.slots[idx].outstandingPings++
	}
}

// Delete removes id from the table immediately, handing its Node off to
// the deferred-reclamation queue rather than the pool directly: a caller
// elsewhere may still be holding a NodeRef borrowed from an earlier Find
// or Closest call, and refLock must confirm no such borrow remains before
// the Node's storage is recycled.
func (t *Table) Delete(id nodeid.ID) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf := t.root.descend(id)
	leaf.bucket.mu.Lock()
	idx := leaf.bucket.findLocked(id)
	if idx < 0 {
		leaf.bucket.mu.Unlock()
		return ErrAbsent
	}
	n := leaf.bucket.clearLocked(idx)
	leaf.bucket.mu.Unlock()

	t.enqueueReclaim(n)
	return nil
}

// Find returns a borrowed reference to id's Node, or ErrAbsent. The
// returned NodeRef must be released exactly once.
func (t *Table) Find(id nodeid.ID) (*NodeRef, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf := t.root.descend(id)
	leaf.bucket.mu.RLock()
	idx := leaf.bucket.findLocked(id)
	var n *Node
	if idx >= 0 {
		n = leaf.bucket.slots[idx].node
	}
	leaf.bucket.mu.RUnlock()

	if n == nil {
		return nil, ErrAbsent
	}
	return borrowNode(n), nil
}

func (t *Table) enqueueReclaim(n *Node) {
	t.reclaimMu.Lock()
	defer t.reclaimMu.Unlock()
	t.reclaimable = append(t.reclaimable, n)
}

// DumpEntry describes one occupied slot, for diagnostics and tests.
type DumpEntry struct {
	ID       nodeid.ID
	Family   Family
	Type     NodeType
	LastSeen time.Time
	Flags    Flags
}

// Dump walks every leaf bucket and returns every occupied slot. It takes
// only the table's read lock and each bucket's read lock in turn, so it
// may interleave with concurrent inserts elsewhere in the trie.
func (t *Table) Dump() []DumpEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []DumpEntry
	var walk func(n *trieNode)
	walk = func(n *trieNode) {
		if n.isLeaf() {
			n.bucket.mu.RLock()
			for i := range n.bucket.slots {
				s := &n.bucket.slots[i]
				if !s.inUse {
					continue
				}
				out = append(out, DumpEntry{
					ID:       s.id,
					Family:   s.family,
					Type:     s.typ,
					LastSeen: s.lastSeen,
					Flags:    s.flags,
				})
			}
			n.bucket.mu.RUnlock()
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
	return out
}
