// Package crypto provides the long-term key material a host uses to
// authenticate the Noise sessions its ping transport opens, and the
// BLAKE2b identifier derivation that turns a peer's public key into the
// nodeid.ID the routing table actually routes on.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id := crypto.DeriveID(keys.Public[:])
package crypto

import (
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair is a Curve25519 key pair, suitable for both NaCl box operations
// and as the static key of a Noise IK session.
//
//export DHTKeyPair
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	logger := logrus.WithField("function", "GenerateKeyPair")

	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithError(err).Error("key generation failed")
		return nil, err
	}

	return &KeyPair{Public: *publicKey, Private: *privateKey}, nil
}

// FromSecretKey derives a key pair from an existing private key, clamping
// it per Curve25519's convention before deriving the public half.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	var clamped [32]byte
	copy(clamped[:], secretKey[:])
	clamped[0] &= 248
	clamped[31] &= 127
	clamped[31] |= 64

	var publicKey [32]byte
	curve25519.ScalarBaseMult(&publicKey, &clamped)
	ZeroBytes(clamped[:])

	return &KeyPair{Public: publicKey, Private: secretKey}, nil
}

func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
