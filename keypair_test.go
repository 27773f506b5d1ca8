package olocus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var signTestData = []byte("The quick brown fox jumps over the lazy dog.")

func TestKeyPair(t *testing.T) {
	for _, kpType := range AllKeyPairTypes() {
		t.Run(string(kpType), func(t *testing.T) {
			// Generate and types.
			priv, err := kpType.New()
			if err != nil {
				t.Fatal(err)
			}
			if !priv.HasPrivate() {
				t.Fatal("new key has no private")
			}
			if priv.Type() != kpType {
				t.Fatalf("Type() = %q, want %q", priv.Type(), kpType)
			}
			pub := priv.ToPublic()
			if pub.HasPrivate() {
				t.Fatal("pubkey has private")
			}

			// Sign and verify.
			sig, err := priv.Sign(signTestData)
			if err != nil {
				t.Fatal(err)
			}
			err = pub.Verify(signTestData, sig)
			if err != nil {
				t.Fatal(err)
			}

			// Tampered data must fail with ErrInvalidSignature.
			tampered := append([]byte{}, signTestData...)
			tampered[0] ^= 0x01
			err = pub.Verify(tampered, sig)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}

			// Public-only keys cannot sign.
			if _, err := pub.Sign(signTestData); !errors.Is(err, ErrNoPrivateKey) {
				t.Fatalf("expected ErrNoPrivateKey, got %v", err)
			}

			// Verification key from raw public key bytes, as carried in a
			// block's public key field.
			verifier, err := kpType.PublicKeyPair(priv.PublicKeyData())
			if err != nil {
				t.Fatal(err)
			}
			if err := verifier.Verify(signTestData, sig); err != nil {
				t.Fatal(err)
			}

			// Import / Export.

			// Export private key.
			privExport, err := priv.Export()
			if err != nil {
				t.Fatal(err)
			}
			privText := privExport.Text()
			privBytes, err := privExport.Bytes()
			if err != nil {
				t.Fatal(err)
			}

			// Import private key.
			privImportText, err := LoadKeyFromText(privText)
			if err != nil {
				t.Fatal(err)
			}
			privImportBytes, err := LoadKeyFromBytes(privBytes)
			if err != nil {
				t.Fatal(err)
			}
			assert.Equal(t, privImportText, privImportBytes, "imports must match")
			importedPriv, err := LoadKeyPair(privImportText)
			if err != nil {
				t.Fatal(err)
			}
			assert.EqualExportedValues(t, priv, importedPriv)

			// Imported private key must still produce verifiable signatures.
			sig2, err := importedPriv.Sign(signTestData)
			if err != nil {
				t.Fatal(err)
			}
			if err := pub.Verify(signTestData, sig2); err != nil {
				t.Fatal(err)
			}

			// Export public key.
			pubExport, err := pub.Export()
			if err != nil {
				t.Fatal(err)
			}
			pubText := pubExport.Text()
			pubBytes, err := pubExport.Bytes()
			if err != nil {
				t.Fatal(err)
			}

			// Import public key.
			pubImportText, err := LoadKeyFromText(pubText)
			if err != nil {
				t.Fatal(err)
			}
			pubImportBytes, err := LoadKeyFromBytes(pubBytes)
			if err != nil {
				t.Fatal(err)
			}
			assert.Equal(t, pubImportText, pubImportBytes, "imports must match")
			importedPub, err := LoadKeyPair(pubImportText)
			if err != nil {
				t.Fatal(err)
			}
			assert.EqualExportedValues(t, pub, importedPub)
			if err := importedPub.Verify(signTestData, sig); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestKeyPairType_Invalid(t *testing.T) {
	t.Parallel()

	if (KeyPairType("NOPE")).IsValid() {
		t.Fatal("expected unknown type to be invalid")
	}
	if _, err := NewKeyPair(KeyPairType("NOPE")); !errors.Is(err, ErrInvalidKeyPairType) {
		t.Fatalf("expected ErrInvalidKeyPairType, got %v", err)
	}
	if _, err := KeyPairType("NOPE").PublicKeyPair(nil); !errors.Is(err, ErrInvalidKeyPairType) {
		t.Fatalf("expected ErrInvalidKeyPairType, got %v", err)
	}
}

func TestPublicKeyPair_RejectsMalformedKeys(t *testing.T) {
	t.Parallel()

	// Wrong size for Ed25519.
	if _, err := KeyPairTypeEd25519.PublicKeyPair(make([]byte, 16)); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}

	// Not a compressed P-256 point.
	if _, err := KeyPairTypeECDSAP256.PublicKeyPair(make([]byte, 33)); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestLoadKeyPair_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	stored := &StoredKey{Type: "RSA-4096", IsPrivate: true, Key: make([]byte, 64)}
	if _, err := LoadKeyPair(stored); !errors.Is(err, ErrInvalidKeyPairType) {
		t.Fatalf("expected ErrInvalidKeyPairType, got %v", err)
	}
}

func TestECDSAP256_PrivateScalarRoundTrip(t *testing.T) {
	t.Parallel()

	priv, err := KeyPairTypeECDSAP256.New()
	if err != nil {
		t.Fatal(err)
	}
	stored, err := priv.Export()
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Key) != 32 {
		t.Fatalf("exported scalar is %d bytes, want 32", len(stored.Key))
	}

	imported, err := LoadKeyPair(stored)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := imported.Sign(signTestData)
	if err != nil {
		t.Fatal(err)
	}
	if err := priv.ToPublic().Verify(signTestData, sig); err != nil {
		t.Fatal(err)
	}

	// Out of range scalars are rejected.
	if _, err := LoadKeyPair(&StoredKey{Type: "ECDSA-P256", IsPrivate: true, Key: make([]byte, 32)}); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat for zero scalar, got %v", err)
	}
}
