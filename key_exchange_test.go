package olocus

import (
	"bytes"
	"crypto/ecdh"
	"errors"
	"testing"
)

func TestKeyExchangeType_IsValid(t *testing.T) {
	t.Parallel()

	for _, ket := range AllKeyExchangeTypes() {
		if !ket.IsValid() {
			t.Fatalf("expected %s to be valid", ket)
		}
	}
	if (KeyExchangeType("NOPE")).IsValid() {
		t.Fatalf("expected unknown type to be invalid")
	}
}

func TestNewKeyExchange_InvalidType(t *testing.T) {
	t.Parallel()

	ke, err := NewKeyExchange(KeyExchangeType("invalid"))
	if !errors.Is(err, ErrAlgorithmUnsupported) {
		t.Fatalf("expected ErrAlgorithmUnsupported, got %v", err)
	}
	if ke != nil {
		t.Fatalf("expected nil KeyExchange for invalid type")
	}
}

func TestKeyExchange_ExchangeMsgFormat(t *testing.T) {
	t.Parallel()

	// X25519 public keys are 32 bytes, P-256 uncompressed points 65 bytes.
	sizes := map[KeyExchangeType]int{
		KeyExchangeTypeX25519:   32,
		KeyExchangeTypeECDHP256: 65,
	}
	curves := map[KeyExchangeType]ecdh.Curve{
		KeyExchangeTypeX25519:   ecdh.X25519(),
		KeyExchangeTypeECDHP256: ecdh.P256(),
	}

	for _, ket := range AllKeyExchangeTypes() {
		t.Run(string(ket), func(t *testing.T) {
			ke, err := NewKeyExchange(ket)
			if err != nil {
				t.Fatal(err)
			}
			if ke.Type() != ket {
				t.Fatalf("Type() = %q, want %q", ke.Type(), ket)
			}

			exMsg, err := ke.ExchangeMsg()
			if err != nil {
				t.Fatal(err)
			}
			if len(exMsg) != sizes[ket] {
				t.Fatalf("ExchangeMsg length = %d, want %d", len(exMsg), sizes[ket])
			}
			if _, err := curves[ket].NewPublicKey(exMsg); err != nil {
				t.Fatalf("ExchangeMsg() is not a valid %s public key: %v", ket, err)
			}
		})
	}
}

func TestKeyExchange_SharedKeysMatchBetweenPeers(t *testing.T) {
	t.Parallel()

	for _, ket := range AllKeyExchangeTypes() {
		t.Run(string(ket), func(t *testing.T) {
			alice, err := NewKeyExchange(ket)
			if err != nil {
				t.Fatal(err)
			}
			bob, err := NewKeyExchange(ket)
			if err != nil {
				t.Fatal(err)
			}

			aliceMsg, err := alice.ExchangeMsg()
			if err != nil {
				t.Fatal(err)
			}
			bobMsg, err := bob.ExchangeMsg()
			if err != nil {
				t.Fatal(err)
			}

			aliceKM, err := alice.MakeKeys(bobMsg, KeyMakerTypeBlake3)
			if err != nil {
				t.Fatal(err)
			}
			bobKM, err := bob.MakeKeys(aliceMsg, KeyMakerTypeBlake3)
			if err != nil {
				t.Fatal(err)
			}

			// Both sides must derive identical keys for identical inputs.
			aliceKey, err := aliceKM.DeriveKey("test context", "party", 32)
			if err != nil {
				t.Fatal(err)
			}
			bobKey, err := bobKM.DeriveKey("test context", "party", 32)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(aliceKey, bobKey) {
				t.Fatalf("derived keys differ\nalice: %x\nbob:   %x", aliceKey, bobKey)
			}
		})
	}
}

func TestKeyExchange_SingleUse(t *testing.T) {
	t.Parallel()

	alice, err := NewKeyExchange(KeyExchangeTypeX25519)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := NewKeyExchange(KeyExchangeTypeX25519)
	if err != nil {
		t.Fatal(err)
	}
	bobMsg, err := bob.ExchangeMsg()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := alice.MakeKeys(bobMsg, KeyMakerTypeBlake3); err != nil {
		t.Fatal(err)
	}

	// Second use must fail.
	if _, err := alice.MakeKeys(bobMsg, KeyMakerTypeBlake3); !errors.Is(err, ErrCannotReuse) {
		t.Fatalf("expected ErrCannotReuse, got %v", err)
	}
}

func TestKeyExchange_RejectsGarbageMessage(t *testing.T) {
	t.Parallel()

	alice, err := NewKeyExchange(KeyExchangeTypeECDHP256)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.MakeKeys([]byte("definitely not a point"), KeyMakerTypeBlake3); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestKeyExchange_BurnBlocksUse(t *testing.T) {
	t.Parallel()

	ke, err := NewKeyExchange(KeyExchangeTypeX25519)
	if err != nil {
		t.Fatal(err)
	}
	ke.Burn()

	if _, err := ke.ExchangeMsg(); !errors.Is(err, ErrNoPrivateKey) {
		t.Fatalf("expected ErrNoPrivateKey after burn, got %v", err)
	}
}
