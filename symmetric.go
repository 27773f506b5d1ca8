package olocus

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

type CipherType string

const (
	CipherTypeChaCha20Poly1305 CipherType = "ChaCha20-Poly1305"
	CipherTypeAES256GCM        CipherType = "AES-256-GCM"

	cipherKeySize = 32
)

func AllCipherTypes() []CipherType {
	return []CipherType{
		CipherTypeChaCha20Poly1305,
		CipherTypeAES256GCM,
	}
}

func (ct CipherType) IsValid() bool {
	switch ct {
	case CipherTypeChaCha20Poly1305, CipherTypeAES256GCM:
		return true
	}
	return false
}

func (ct CipherType) String() string {
	return string(ct)
}

// Cipher is the symmetric AEAD capability handed to extensions that protect
// data with keys derived from a negotiated session. The kernel itself never
// encrypts anything.
type Cipher interface {
	Type() CipherType
	NonceSize() int
	Overhead() int
	Seal(nonce, plaintext, additionalData []byte) []byte
	Open(nonce, ciphertext, additionalData []byte) ([]byte, error)
	Burn()
}

func NewCipher(ct CipherType, key []byte) (Cipher, error) {
	return ct.New(key)
}

func (ct CipherType) New(key []byte) (Cipher, error) {
	if len(key) != cipherKeySize {
		return nil, fmt.Errorf("%w: cipher key must be %d bytes", ErrInvalidFormat, cipherKeySize)
	}

	switch ct {
	case CipherTypeChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, err
		}
		return &aeadCipher{cipherType: ct, aead: aead, key: key}, nil

	case CipherTypeAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &aeadCipher{cipherType: ct, aead: aead, key: key}, nil

	default:
		return nil, fmt.Errorf("%w: cipher type %q", ErrAlgorithmUnsupported, ct)
	}
}

type aeadCipher struct {
	cipherType CipherType
	aead       cipher.AEAD
	key        []byte
}

func (ac *aeadCipher) Type() CipherType {
	return ac.cipherType
}

func (ac *aeadCipher) NonceSize() int {
	return ac.aead.NonceSize()
}

func (ac *aeadCipher) Overhead() int {
	return ac.aead.Overhead()
}

func (ac *aeadCipher) Seal(nonce, plaintext, additionalData []byte) []byte {
	return ac.aead.Seal(nil, nonce, plaintext, additionalData)
}

func (ac *aeadCipher) Open(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	plaintext, err := ac.aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthCodeInvalid, err)
	}
	return plaintext, nil
}

func (ac *aeadCipher) Burn() {
	clear(ac.key)
	ac.aead = nil
}
