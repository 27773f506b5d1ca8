package olocus

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

type KeyPairType string

const (
	KeyPairTypeEd25519   KeyPairType = "Ed25519"
	KeyPairTypeECDSAP256 KeyPairType = "ECDSA-P256"
)

func AllKeyPairTypes() []KeyPairType {
	return []KeyPairType{
		KeyPairTypeEd25519,
		KeyPairTypeECDSAP256,
	}
}

func (kpt KeyPairType) IsValid() bool {
	switch kpt {
	case KeyPairTypeEd25519, KeyPairTypeECDSAP256:
		return true
	}
	return false
}

func (kpt KeyPairType) String() string {
	return string(kpt)
}

// KeyPair is the signing capability used for block signatures and
// negotiation identities. Built-in types and extension-supplied
// implementations satisfy the same interface.
type KeyPair interface {
	Type() KeyPairType
	PublicKey() crypto.PublicKey
	PublicKeyData() []byte

	HasPrivate() bool
	ToPublic() KeyPair

	Sign(data []byte) (sig []byte, err error)
	Verify(data, sig []byte) error

	Export() (*StoredKey, error)
	Burn()
}

func NewKeyPair(kpType KeyPairType) (KeyPair, error) {
	return kpType.New()
}

func (kpt KeyPairType) New() (KeyPair, error) {
	switch kpt {
	case KeyPairTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &Ed25519KeyPair{
			pubKey:  pub,
			privKey: priv,
		}, nil

	case KeyPairTypeECDSAP256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		return &ECDSAP256KeyPair{
			pubKey:  &priv.PublicKey,
			privKey: priv,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeyPairType, kpt)
	}
}

// PublicKeyPair builds a verify-only key pair from raw public key bytes, as
// they appear in a block's public key field.
func (kpt KeyPairType) PublicKeyPair(pubKeyData []byte) (KeyPair, error) {
	switch kpt {
	case KeyPairTypeEd25519:
		if len(pubKeyData) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrInvalidFormat, ed25519.PublicKeySize)
		}
		return &Ed25519KeyPair{
			pubKey: ed25519.PublicKey(pubKeyData),
		}, nil

	case KeyPairTypeECDSAP256:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), pubKeyData)
		if x == nil {
			return nil, fmt.Errorf("%w: not a compressed P-256 point", ErrInvalidFormat)
		}
		return &ECDSAP256KeyPair{
			pubKey: &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeyPairType, kpt)
	}
}

func LoadKeyPair(stored *StoredKey) (KeyPair, error) {
	// Get and check key type.
	kpType, ok := FindStoredKeyType(stored, AllKeyPairTypes())
	if !ok {
		return nil, ErrInvalidKeyPairType
	}

	switch kpType {
	case KeyPairTypeEd25519:
		key := &Ed25519KeyPair{}
		if stored.IsPrivate {
			if len(stored.Key) != ed25519.PrivateKeySize {
				return nil, ErrInvalidFormat
			}
			key.privKey = stored.Key
			key.pubKey = key.privKey.Public().(ed25519.PublicKey)
		} else {
			if len(stored.Key) != ed25519.PublicKeySize {
				return nil, ErrInvalidFormat
			}
			key.pubKey = stored.Key
		}
		return key, nil

	case KeyPairTypeECDSAP256:
		if stored.IsPrivate {
			priv, err := loadP256PrivateKey(stored.Key)
			if err != nil {
				return nil, err
			}
			return &ECDSAP256KeyPair{pubKey: &priv.PublicKey, privKey: priv}, nil
		}
		return KeyPairTypeECDSAP256.PublicKeyPair(stored.Key)

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeyPairType, kpType)
	}
}

// Ed25519KeyPair signs over the raw message, no pre-hashing.
type Ed25519KeyPair struct {
	pubKey  ed25519.PublicKey
	privKey ed25519.PrivateKey
}

func (edkp *Ed25519KeyPair) Type() KeyPairType {
	return KeyPairTypeEd25519
}

func (edkp *Ed25519KeyPair) PublicKey() crypto.PublicKey {
	return edkp.pubKey
}

func (edkp *Ed25519KeyPair) PublicKeyData() []byte {
	return edkp.pubKey
}

func (edkp *Ed25519KeyPair) HasPrivate() bool {
	return edkp.privKey != nil
}

func (edkp *Ed25519KeyPair) ToPublic() KeyPair {
	return &Ed25519KeyPair{
		pubKey: edkp.pubKey,
	}
}

func (edkp *Ed25519KeyPair) Sign(data []byte) (sig []byte, err error) {
	if edkp.privKey == nil {
		return nil, ErrNoPrivateKey
	}
	return edkp.privKey.Sign(rand.Reader, data, &ed25519.Options{})
}

func (edkp *Ed25519KeyPair) Verify(data, sig []byte) error {
	if edkp.pubKey == nil {
		return ErrNoPublicKey
	}
	if err := ed25519.VerifyWithOptions(edkp.pubKey, data, sig, &ed25519.Options{}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

func (edkp *Ed25519KeyPair) Export() (*StoredKey, error) {
	return exportKeyPair(edkp.Type(), edkp.privKey, edkp.pubKey)
}

func (edkp *Ed25519KeyPair) Burn() {
	// TODO: Use guaranteed memory wiping as soon as Go supports it.
	clear(edkp.privKey)
	clear(edkp.pubKey)
	edkp.privKey = nil
	edkp.pubKey = nil
}

// ECDSAP256KeyPair signs the SHA-256 digest of the message with ASN.1
// encoded signatures. Public keys travel as compressed points (33 bytes),
// private keys as the raw scalar (32 bytes).
type ECDSAP256KeyPair struct {
	pubKey  *ecdsa.PublicKey
	privKey *ecdsa.PrivateKey
}

func (eckp *ECDSAP256KeyPair) Type() KeyPairType {
	return KeyPairTypeECDSAP256
}

func (eckp *ECDSAP256KeyPair) PublicKey() crypto.PublicKey {
	return eckp.pubKey
}

func (eckp *ECDSAP256KeyPair) PublicKeyData() []byte {
	if eckp.pubKey == nil {
		return nil
	}
	return elliptic.MarshalCompressed(elliptic.P256(), eckp.pubKey.X, eckp.pubKey.Y)
}

func (eckp *ECDSAP256KeyPair) HasPrivate() bool {
	return eckp.privKey != nil
}

func (eckp *ECDSAP256KeyPair) ToPublic() KeyPair {
	return &ECDSAP256KeyPair{
		pubKey: eckp.pubKey,
	}
}

func (eckp *ECDSAP256KeyPair) Sign(data []byte) (sig []byte, err error) {
	if eckp.privKey == nil {
		return nil, ErrNoPrivateKey
	}
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, eckp.privKey, digest[:])
}

func (eckp *ECDSAP256KeyPair) Verify(data, sig []byte) error {
	if eckp.pubKey == nil {
		return ErrNoPublicKey
	}
	digest := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(eckp.pubKey, digest[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}

func (eckp *ECDSAP256KeyPair) Export() (*StoredKey, error) {
	var keyData []byte
	if eckp.privKey != nil {
		keyData = eckp.privKey.D.FillBytes(make([]byte, 32))
	}
	return exportKeyPair(eckp.Type(), keyData, eckp.PublicKeyData())
}

func (eckp *ECDSAP256KeyPair) Burn() {
	if eckp.privKey != nil {
		eckp.privKey.D.SetInt64(0)
	}
	eckp.privKey = nil
	eckp.pubKey = nil
}

func exportKeyPair(kpType KeyPairType, privData, pubData []byte) (*StoredKey, error) {
	stored := &StoredKey{
		Type:      string(kpType),
		IsPrivate: len(privData) != 0,
	}
	if stored.IsPrivate {
		stored.Key = privData
	} else {
		if len(pubData) == 0 {
			return nil, ErrNoPublicKey
		}
		stored.Key = pubData
	}
	return stored, nil
}

func loadP256PrivateKey(scalar []byte) (*ecdsa.PrivateKey, error) {
	if len(scalar) != 32 {
		return nil, ErrInvalidFormat
	}
	d := new(big.Int).SetBytes(scalar)
	if d.Sign() == 0 || d.Cmp(elliptic.P256().Params().N) >= 0 {
		return nil, ErrInvalidFormat
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = elliptic.P256()
	priv.X, priv.Y = priv.Curve.ScalarBaseMult(scalar)
	return priv, nil
}
