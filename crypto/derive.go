package crypto

import (
	"golang.org/x/crypto/blake2b"

	"github.com/foobarren/freeswitch-old/nodeid"
)

// DeriveID hashes a peer's long-term public key down to the fixed-width
// identifier the routing table routes on. This is a convenience for
// callers wiring a real identity into the table; the table itself never
// derives or inspects how an ID was produced.
func DeriveID(pubKey []byte) nodeid.ID {
	sum := blake2b.Sum256(pubKey)

	var id nodeid.ID
	copy(id[:], sum[:nodeid.Len])
	return id
}
