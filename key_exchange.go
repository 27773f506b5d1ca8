package olocus

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

type KeyExchangeType string

const (
	KeyExchangeTypeX25519   KeyExchangeType = "X25519"
	KeyExchangeTypeECDHP256 KeyExchangeType = "ECDH-P256"
)

func AllKeyExchangeTypes() []KeyExchangeType {
	return []KeyExchangeType{
		KeyExchangeTypeX25519,
		KeyExchangeTypeECDHP256,
	}
}

func (ket KeyExchangeType) IsValid() bool {
	switch ket {
	case KeyExchangeTypeX25519, KeyExchangeTypeECDHP256:
		return true
	}
	return false
}

func (ket KeyExchangeType) String() string {
	return string(ket)
}

func NewKeyExchange(ket KeyExchangeType) (KeyExchange, error) {
	return ket.New()
}

func (ket KeyExchangeType) New() (KeyExchange, error) {
	curve, err := ket.curve()
	if err != nil {
		return nil, err
	}
	privKey, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &curveKeyExchange{
		exchangeType: ket,
		curve:        curve,
		privKey:      privKey,
	}, nil
}

func (ket KeyExchangeType) curve() (ecdh.Curve, error) {
	switch ket {
	case KeyExchangeTypeX25519:
		return ecdh.X25519(), nil
	case KeyExchangeTypeECDHP256:
		return ecdh.P256(), nil
	default:
		return nil, fmt.Errorf("%w: key exchange type %q", ErrAlgorithmUnsupported, ket)
	}
}

// KeyExchange performs a single ephemeral key exchange and hands the shared
// key material to a KeyMaker. An exchange must not be reused.
type KeyExchange interface {
	Type() KeyExchangeType
	ExchangeMsg() ([]byte, error)
	MakeKeys(exchMsg []byte, keyMakerType KeyMakerType) (KeyMaker, error)
	Burn()
}

type curveKeyExchange struct {
	exchangeType KeyExchangeType
	curve        ecdh.Curve
	privKey      *ecdh.PrivateKey
	used         bool
}

func (cke *curveKeyExchange) Type() KeyExchangeType {
	return cke.exchangeType
}

func (cke *curveKeyExchange) ExchangeMsg() ([]byte, error) {
	if cke.privKey == nil {
		return nil, ErrNoPrivateKey
	}
	return cke.privKey.PublicKey().Bytes(), nil
}

func (cke *curveKeyExchange) MakeKeys(exchMsg []byte, keyMakerType KeyMakerType) (KeyMaker, error) {
	if cke.used {
		return nil, ErrCannotReuse
	}
	if cke.privKey == nil {
		return nil, ErrNoPrivateKey
	}

	remotePubKey, err := cke.curve.NewPublicKey(exchMsg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	keyMaterial, err := cke.privKey.ECDH(remotePubKey)
	if err != nil {
		return nil, err
	}
	keyMaker, err := keyMakerType.New(keyMaterial)
	if err != nil {
		return nil, err
	}

	cke.used = true
	return keyMaker, nil
}

func (cke *curveKeyExchange) Burn() {
	// TODO: The ecdh private key offers no wipe; drop the reference.
	cke.privKey = nil
	cke.used = true
}
