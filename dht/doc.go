// Package dht implements the Kademlia-style routing table used by the
// embedded peer overlay that backs the cluster's trust/identity layer.
//
// The routing table is a binary trie of fixed-capacity buckets, keyed by
// XOR distance. Insertion adaptively splits full buckets, always refining
// the lower (left) half of the ID space, liveness is tracked per
// slot through a dubious/active/expired state machine driven by pings,
// and closest-N lookups walk the trie outward from the target.
//
// The table is the hard, concurrent part of an otherwise simple protocol:
// many reader goroutines call CreateOrTouch/Find/Closest while a single
// maintenance goroutine calls Sweep. Structural changes (splits) take a
// table-wide write lock; everything else takes only the table's read lock
// plus the bucket (and, for borrowed nodes, the node) it touches. See doc
// comments on Table for
// the locking order.
//
// Key components:
//
//   - nodeid.ID: fixed-width peer identifier and the XOR/mask algebra
//     the trie uses for splitting and descent.
//   - Node: a peer record, reference-counted via its own RWMutex so a
//     caller's borrow blocks reclamation without blocking other readers.
//   - Bucket: a capacity-K array of slots, each with its own liveness
//     flags, guarded by a per-bucket RWMutex.
//   - Table: owns the trie root and drives CreateOrTouch, Find, Touch,
//     Expire, Delete, Closest and the periodic Sweep.
//
// Example usage:
//
//	local, _ := nodeid.Random()
//	table := dht.NewTable(local, dht.WithPinger(transport))
//
//	err := table.CreateOrTouch(peerID, addr, dht.FamilyV4, dht.TypeRemote)
//
//	result := table.Closest(targetID, 8, dht.QueryFilter{ActiveOnly: true})
//	defer result.ReleaseAll()
//
// Pings are dispatched through an injected Pinger; the table never does
// network I/O itself. A maintenance goroutine is expected to call Sweep
// on the interval Table.NextSweep reports.
package dht
