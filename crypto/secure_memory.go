package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe erases data in place using a constant-time XOR the compiler
// cannot optimize away, then returns an error if data was nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	subtle.XORBytes(data, data, data)
	runtime.KeepAlive(data)

	return nil
}

// ZeroBytes wipes data, discarding the (only-possible-on-nil) error.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyPair erases a KeyPair's private half.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return errors.New("cannot wipe nil KeyPair")
	}
	return SecureWipe(kp.Private[:])
}
