package dht

import "time"

// Sweep drives the liveness state machine and drains the deferred
// reclamation queue. It is meant to be called periodically by the host
// (see NextSweep for the recommended cadence) — it never blocks: every
// bucket it visits is probed with a non-blocking TryLock, and a bucket
// currently held by an application operation is simply skipped for this
// cycle rather than waited on.
func (t *Table) Sweep() {
	t.mu.RLock()
	sentPing := t.sweepTrie(t.root)
	t.mu.RUnlock()

	t.drainReclaim()

	t.sweepMu.Lock()
	if sentPing {
		t.sweepInterval = sweepShortInterval
	} else {
		t.sweepInterval = sweepLongInterval
	}
	t.nextSweep = t.clock.Now().Add(t.sweepInterval)
	t.sweepMu.Unlock()
}

// NextSweep reports when the host should next call Sweep.
func (t *Table) NextSweep() time.Time {
	t.sweepMu.Lock()
	defer t.sweepMu.Unlock()
	return t.nextSweep
}

func (t *Table) sweepTrie(n *trieNode) bool {
	if n.isLeaf() {
		return t.sweepLeaf(n)
	}
	left := t.sweepTrie(n.left)
	right := t.sweepTrie(n.right)
	return left || right
}

// sweepLeaf applies the aging state machine to every occupied slot in one
// bucket. It reports whether it dispatched at least one ping.
func (t *Table) sweepLeaf(n *trieNode) bool {
	b := n.bucket
	if !b.mu.TryLock() {
		t.log.WithField("skipped", "locked").Debug("sweep skipping busy bucket")
		return false
	}
	defer b.mu.Unlock()

	now := t.clock.Now()
	sentPing := false

	for i := range b.slots {
		s := &b.slots[i]
		if !s.inUse || s.typ.Has(TypeLocal) {
			continue
		}

		age := now.Sub(s.lastSeen)

		switch {
		case int(s.outstandingPings) >= pingMax:
			if s.flags != FlagExpired {
				s.flags = FlagExpired
				b.expiredCount++
			}

		case s.outstandingPings > 0:
			t.dispatchPing(s, now)
			sentPing = true

		case age > expiredAge:
			s.flags = FlagDubious
			t.dispatchPing(s, now)
			sentPing = true

		case age > inactiveAge:
			t.dispatchPing(s, now)
			sentPing = true
		}
	}

	return sentPing
}

func (t *Table) dispatchPing(s *slot, now time.Time) {
	req := newPingRequest(s.id, s.node.Addr)
	if err := t.pinger.Ping(req); err != nil {
		t.log.WithError(err).WithField("target", s.id.String()).Warn("ping dispatch failed")
		return
	}
	s.outstandingPings++
}

// drainReclaim attempts to reclaim every node queued by Delete. A node is
// only handed back to the pool once a non-blocking write lock on its
// refLock succeeds, confirming no caller still holds a NodeRef borrowed
// from it; nodes that fail this check stay queued for the next sweep.
func (t *Table) drainReclaim() {
	t.reclaimMu.Lock()
	pending := t.reclaimable
	t.reclaimable = nil
	t.reclaimMu.Unlock()

	var retry []*Node
	for _, n := range pending {
		if n.refLock.TryLock() {
			n.refLock.Unlock()
			t.pool.Put(n)
		} else {
			retry = append(retry, n)
		}
	}

	if len(retry) == 0 {
		return
	}
	t.reclaimMu.Lock()
	t.reclaimable = append(t.reclaimable, retry...)
	t.reclaimMu.Unlock()
}
