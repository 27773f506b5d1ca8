package olocus

import "fmt"

// Suite identifier space: 0x00-0x06 are defined below, 0x07-0x0F are
// reserved for future allocation.
const (
	SuiteDefault        uint8 = 0x00 // Ed25519 / BLAKE3 / X25519
	SuiteEdSHA2         uint8 = 0x01 // Ed25519 / SHA2-256 / X25519
	SuiteEdSHA3         uint8 = 0x02 // Ed25519 / SHA3-256 / X25519
	SuiteP256           uint8 = 0x03 // ECDSA-P256 / SHA2-256 / ECDH-P256
	SuiteEdBLAKE2       uint8 = 0x04 // Ed25519 / BLAKE2b-256 / X25519
	SuiteEdSignOnly     uint8 = 0x05 // Ed25519 / BLAKE3, no key exchange
	SuiteP256SignOnly   uint8 = 0x06 // ECDSA-P256 / SHA3-256, no key exchange
	suiteReservedFirst  uint8 = 0x07
	suiteReservedLast   uint8 = 0x0F
)

// CryptoSuite bundles one algorithm per cryptographic category. A suite is
// immutable once published: a suite id, once allocated, is never reassigned
// to different algorithms.
type CryptoSuite struct {
	id          uint8
	name        string
	signature   AlgorithmInfo
	hash        AlgorithmInfo
	keyExchange AlgorithmInfo
	hasKX       bool
}

// NewCryptoSuite bundles resolved algorithm entries into a suite. Pass a nil
// keyExchange for signing-only suites.
func NewCryptoSuite(id uint8, name string, signature, hash AlgorithmInfo, keyExchange *AlgorithmInfo) (CryptoSuite, error) {
	if signature.Category != CategorySignature {
		return CryptoSuite{}, fmt.Errorf("%w: %s is not a signature algorithm", ErrAlgorithmUnsupported, signature)
	}
	if hash.Category != CategoryHash {
		return CryptoSuite{}, fmt.Errorf("%w: %s is not a hash algorithm", ErrAlgorithmUnsupported, hash)
	}
	s := CryptoSuite{
		id:        id,
		name:      name,
		signature: signature,
		hash:      hash,
	}
	if keyExchange != nil {
		if keyExchange.Category != CategoryKeyExchange {
			return CryptoSuite{}, fmt.Errorf("%w: %s is not a key exchange algorithm", ErrAlgorithmUnsupported, *keyExchange)
		}
		s.keyExchange = *keyExchange
		s.hasKX = true
	}
	return s, nil
}

// ID returns the one byte suite identifier.
func (s CryptoSuite) ID() uint8 {
	return s.id
}

func (s CryptoSuite) Name() string {
	return s.name
}

// SignatureAlgorithm returns the suite's signature algorithm entry.
func (s CryptoSuite) SignatureAlgorithm() AlgorithmInfo {
	return s.signature
}

// HashAlgorithm returns the suite's hash algorithm entry.
func (s CryptoSuite) HashAlgorithm() AlgorithmInfo {
	return s.hash
}

// KeyExchangeAlgorithm returns the suite's key exchange algorithm entry.
// Signing-only suites return false.
func (s CryptoSuite) KeyExchangeAlgorithm() (AlgorithmInfo, bool) {
	return s.keyExchange, s.hasKX
}

// SecurityLevel is the suite's effective level: the weakest component wins.
func (s CryptoSuite) SecurityLevel() uint8 {
	level := s.signature.SecurityLevel
	if s.hash.SecurityLevel < level {
		level = s.hash.SecurityLevel
	}
	if s.hasKX && s.keyExchange.SecurityLevel < level {
		level = s.keyExchange.SecurityLevel
	}
	return level
}

// Selectable reports whether negotiation may still pick the suite: every
// component must be selectable.
func (s CryptoSuite) Selectable() bool {
	if !s.signature.Status.Selectable() || !s.hash.Status.Selectable() {
		return false
	}
	if s.hasKX && !s.keyExchange.Status.Selectable() {
		return false
	}
	return true
}

// Hash returns the suite's hash capability.
func (s CryptoSuite) Hash() Hash {
	h, _ := s.hash.Hash()
	return h
}

// KeyPairType returns the suite's signature capability.
func (s CryptoSuite) KeyPairType() KeyPairType {
	kpt, _ := s.signature.KeyPairType()
	return kpt
}

// KeyExchangeType returns the suite's key exchange capability.
// Signing-only suites return false.
func (s CryptoSuite) KeyExchangeType() (KeyExchangeType, bool) {
	if !s.hasKX {
		return "", false
	}
	ket, ok := s.keyExchange.KeyExchangeType()
	return ket, ok
}

func (s CryptoSuite) String() string {
	return fmt.Sprintf("suite %#02x (%s)", s.id, s.name)
}

// builtinSuiteSpec is the static definition of the published suites.
type builtinSuiteSpec struct {
	id          uint8
	name        string
	signature   AlgorithmID
	hash        AlgorithmID
	keyExchange AlgorithmID // 0 for signing-only suites
}

func builtinSuites() []builtinSuiteSpec {
	return []builtinSuiteSpec{
		{SuiteDefault, "OLOCUS-ED25519-BLAKE3-X25519", AlgEd25519, AlgBLAKE3, AlgX25519},
		{SuiteEdSHA2, "OLOCUS-ED25519-SHA2-X25519", AlgEd25519, AlgSHA2_256, AlgX25519},
		{SuiteEdSHA3, "OLOCUS-ED25519-SHA3-X25519", AlgEd25519, AlgSHA3_256, AlgX25519},
		{SuiteP256, "OLOCUS-P256-SHA2-ECDH", AlgECDSAP256, AlgSHA2_256, AlgECDHP256},
		{SuiteEdBLAKE2, "OLOCUS-ED25519-BLAKE2B-X25519", AlgEd25519, AlgBLAKE2b_256, AlgX25519},
		{SuiteEdSignOnly, "OLOCUS-ED25519-BLAKE3-SIGN", AlgEd25519, AlgBLAKE3, 0},
		{SuiteP256SignOnly, "OLOCUS-P256-SHA3-SIGN", AlgECDSAP256, AlgSHA3_256, 0},
	}
}
