package olocus

import (
	"bytes"
	"errors"
	"testing"
)

func TestCipher_SealOpen(t *testing.T) {
	for _, ct := range AllCipherTypes() {
		t.Run(string(ct), func(t *testing.T) {
			key := NewSecret(32)
			c, err := NewCipher(ct, key)
			if err != nil {
				t.Fatal(err)
			}
			if c.Type() != ct {
				t.Fatalf("Type() = %q, want %q", c.Type(), ct)
			}

			nonce := NewSecret(32)[:c.NonceSize()]
			plaintext := []byte("protected extension payload")
			additional := []byte("header bytes")

			ciphertext := c.Seal(nonce, plaintext, additional)
			if len(ciphertext) != len(plaintext)+c.Overhead() {
				t.Fatalf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+c.Overhead())
			}

			opened, err := c.Open(nonce, ciphertext, additional)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Fatalf("opened %q, want %q", opened, plaintext)
			}

			// Tampered ciphertext fails authentication.
			tampered := append([]byte{}, ciphertext...)
			tampered[0] ^= 0xFF
			if _, err := c.Open(nonce, tampered, additional); !errors.Is(err, ErrAuthCodeInvalid) {
				t.Fatalf("expected ErrAuthCodeInvalid, got %v", err)
			}

			// Wrong additional data fails authentication.
			if _, err := c.Open(nonce, ciphertext, []byte("other header")); !errors.Is(err, ErrAuthCodeInvalid) {
				t.Fatalf("expected ErrAuthCodeInvalid, got %v", err)
			}
		})
	}
}

func TestCipher_KeySize(t *testing.T) {
	t.Parallel()

	for _, ct := range AllCipherTypes() {
		if _, err := NewCipher(ct, make([]byte, 16)); !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("%s: expected ErrInvalidFormat for short key, got %v", ct, err)
		}
	}
}

func TestCipher_InvalidType(t *testing.T) {
	t.Parallel()

	if (CipherType("NOPE")).IsValid() {
		t.Fatal("expected unknown type to be invalid")
	}
	if _, err := NewCipher(CipherType("NOPE"), make([]byte, 32)); !errors.Is(err, ErrAlgorithmUnsupported) {
		t.Fatalf("expected ErrAlgorithmUnsupported, got %v", err)
	}
}
