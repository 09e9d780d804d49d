package crypto

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestRoundTrip(t *testing.T) {
	a, err := New(testKey())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	const secret = "wb-api-key-abc123"
	enc, err := a.EncryptToString(secret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == secret {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := a.DecryptString(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != secret {
		t.Fatalf("got %q, want %q", got, secret)
	}
}

func TestNoncesDiffer(t *testing.T) {
	a, _ := New(testKey())
	e1, _ := a.EncryptToString("same")
	e2, _ := a.EncryptToString("same")
	if e1 == e2 {
		t.Fatal("two encryptions of the same plaintext must differ")
	}
}

func TestTamperedCiphertextFails(t *testing.T) {
	a, _ := New(testKey())
	enc, _ := a.EncryptToString("secret")

	b := []byte(enc)
	b[len(b)-1] ^= 1
	if _, err := a.DecryptString(string(b)); err == nil {
		t.Fatal("tampered ciphertext decrypted")
	}
}

func TestWrongKeyFails(t *testing.T) {
	a, _ := New(testKey())
	enc, _ := a.EncryptToString("secret")

	other, _ := New(bytes.Repeat([]byte{0x24}, 32))
	if _, err := other.DecryptString(enc); err == nil {
		t.Fatal("foreign key decrypted the ciphertext")
	}
}

func TestBadKeyLength(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatal("expected an error for a non-AES key length")
	}
}
