package dht

import "errors"

// ErrCapacity is returned when a bucket is full, holds no expired slot to
// reclaim, and sits on the non-splittable (right) side of the trie, or
// whose mask is already exhausted. Callers may retry later; it is never
// logged as an error since it is an expected, non-fatal outcome.
var ErrCapacity = errors.New("dht: bucket full, cannot split further")

// ErrAbsent is returned by Find and Delete when no slot matches the given
// id. Touch and Expire treat a missing id as a silent no-op instead, since
// a late ping outcome for an already-evicted slot is routine. ErrAbsent is
// never elevated to an error-level log.
var ErrAbsent = errors.New("dht: node not present")
