package crypto

import (
	"bytes"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	keyPair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}

	if keyPair == nil {
		t.Fatal("GenerateKeyPair() returned nil key pair")
	}

	if isZeroKey(keyPair.Public) {
		t.Error("GenerateKeyPair() returned zero public key")
	}

	if isZeroKey(keyPair.Private) {
		t.Error("GenerateKeyPair() returned zero private key")
	}

	keyPair2, _ := GenerateKeyPair()
	if bytes.Equal(keyPair.Public[:], keyPair2.Public[:]) {
		t.Error("Multiple GenerateKeyPair() calls produced identical public keys")
	}
}

func TestFromSecretKey(t *testing.T) {
	cases := []struct {
		name      string
		secretKey [32]byte
		wantError bool
	}{
		{
			name:      "valid key",
			secretKey: [32]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32},
			wantError: false,
		},
		{
			name:      "zero key",
			secretKey: [32]byte{},
			wantError: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keyPair, err := FromSecretKey(tc.secretKey)

			if tc.wantError {
				if err == nil {
					t.Fatal("FromSecretKey() expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("FromSecretKey() unexpected error: %v", err)
			}
			if keyPair == nil {
				t.Fatal("FromSecretKey() returned nil key pair")
			}
			if isZeroKey(keyPair.Public) {
				t.Error("FromSecretKey() returned zero public key")
			}
			if !bytes.Equal(keyPair.Private[:], tc.secretKey[:]) {
				t.Error("FromSecretKey() modified the private key")
			}
		})
	}
}

func TestFromSecretKeyDeterministic(t *testing.T) {
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i + 1)
	}

	first, err := FromSecretKey(secret)
	if err != nil {
		t.Fatalf("FromSecretKey() error: %v", err)
	}
	second, err := FromSecretKey(secret)
	if err != nil {
		t.Fatalf("FromSecretKey() error: %v", err)
	}

	if !bytes.Equal(first.Public[:], second.Public[:]) {
		t.Error("FromSecretKey() is not deterministic for the same secret")
	}
}
