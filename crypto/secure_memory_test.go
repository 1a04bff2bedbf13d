package crypto

import "testing"

func TestSecureWipe(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}

	if isZeroKey(kp.Private) {
		t.Fatal("private key is all zeros before wiping, test cannot proceed")
	}

	if err := SecureWipe(kp.Private[:]); err != nil {
		t.Fatalf("SecureWipe() error: %v", err)
	}

	if !isZeroKey(kp.Private) {
		t.Error("SecureWipe() did not zero the key")
	}
}

func TestSecureWipeNil(t *testing.T) {
	if err := SecureWipe(nil); err == nil {
		t.Error("SecureWipe(nil) expected error, got nil")
	}
}

func TestWipeKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}

	if err := WipeKeyPair(kp); err != nil {
		t.Fatalf("WipeKeyPair() error: %v", err)
	}

	if !isZeroKey(kp.Private) {
		t.Error("WipeKeyPair() did not zero the private key")
	}
}

func TestZeroBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	ZeroBytes(data)

	for i, b := range data {
		if b != 0 {
			t.Errorf("ZeroBytes() left byte %d = %d, want 0", i, b)
		}
	}
}
