package olocus

import (
	"bytes"
	"errors"
	"testing"
)

func TestStoredKey_TextFormat(t *testing.T) {
	t.Parallel()

	sk := &StoredKey{
		Type:      "Ed25519",
		IsPrivate: false,
		Key:       []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	text := sk.Text()
	loaded, err := LoadKeyFromText(text)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Type != sk.Type || loaded.IsPrivate != sk.IsPrivate || !bytes.Equal(loaded.Key, sk.Key) {
		t.Fatalf("text round trip mismatch: %+v != %+v", loaded, sk)
	}

	sk.IsPrivate = true
	loaded, err = LoadKeyFromText(sk.Text())
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.IsPrivate {
		t.Fatal("private flag lost in text round trip")
	}
}

func TestLoadKeyFromText_Malformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"Ed25519",
		"Ed25519:public",
		"Ed25519:sorta:3vQB7B",
		":public:3vQB7B",
		"Ed25519:public:not!!base58",
		"Ed25519:public:3vQB7B:extra",
	}
	for _, text := range cases {
		if _, err := LoadKeyFromText(text); err == nil {
			t.Fatalf("expected error for %q", text)
		}
	}
}

func TestStoredKey_BytesAndJSON(t *testing.T) {
	t.Parallel()

	sk := &StoredKey{
		Type:      "X25519",
		IsPrivate: true,
		Key:       NewSecret(32),
	}

	data, err := sk.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	fromBytes, err := LoadKeyFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if fromBytes.Type != sk.Type || !bytes.Equal(fromBytes.Key, sk.Key) {
		t.Fatal("binary round trip mismatch")
	}

	jsonData, err := sk.JSON()
	if err != nil {
		t.Fatal(err)
	}
	fromJSON, err := LoadKeyFromJSON(jsonData)
	if err != nil {
		t.Fatal(err)
	}
	if fromJSON.Type != sk.Type || !bytes.Equal(fromJSON.Key, sk.Key) {
		t.Fatal("json round trip mismatch")
	}

	// Empty key or type must be rejected on load.
	empty, err := (&StoredKey{}).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKeyFromBytes(empty); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if _, err := LoadKeyFromJSON([]byte(`{}`)); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if _, err := LoadKeyFromBytes([]byte("not cbor at all")); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestFindStoredKeyType(t *testing.T) {
	t.Parallel()

	sk := &StoredKey{Type: "ed25519", Key: []byte{1}}

	found, ok := FindStoredKeyType(sk, AllKeyPairTypes())
	if !ok {
		t.Fatal("expected to find key type with case insensitive match")
	}
	if found != KeyPairTypeEd25519 {
		t.Fatalf("found %q, want %q", found, KeyPairTypeEd25519)
	}

	sk.Type = "Kyber768"
	if _, ok := FindStoredKeyType(sk, AllKeyPairTypes()); ok {
		t.Fatal("expected no match for unknown type")
	}

	if !sk.IsType("kyber768") {
		t.Fatal("IsType must match case insensitively")
	}
}
