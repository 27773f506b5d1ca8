package olocus

import "fmt"

// AlgorithmCategory partitions the algorithm identifier space.
type AlgorithmCategory uint8

const (
	CategorySignature AlgorithmCategory = iota
	CategoryHash
	CategoryKeyExchange
	CategorySymmetric
	CategoryThreshold
	CategoryCompression
)

func AllAlgorithmCategories() []AlgorithmCategory {
	return []AlgorithmCategory{
		CategorySignature, CategoryHash, CategoryKeyExchange,
		CategorySymmetric, CategoryThreshold, CategoryCompression,
	}
}

func (c AlgorithmCategory) String() string {
	switch c {
	case CategorySignature:
		return "signature"
	case CategoryHash:
		return "hash"
	case CategoryKeyExchange:
		return "key-exchange"
	case CategorySymmetric:
		return "symmetric"
	case CategoryThreshold:
		return "threshold"
	case CategoryCompression:
		return "compression"
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// IDRange returns the contiguous identifier block assigned to the category.
// Identifiers outside their category's block are rejected by the registry.
func (c AlgorithmCategory) IDRange() (lo, hi AlgorithmID) {
	switch c {
	case CategorySignature:
		return 0x0100, 0x04FF
	case CategoryHash:
		return 0x1000, 0x10FF
	case CategoryKeyExchange:
		return 0x2000, 0x22FF
	case CategorySymmetric:
		return 0x3000, 0x30FF
	case CategoryThreshold:
		return 0x4000, 0x40FF
	case CategoryCompression:
		return 0x5000, 0x50FF
	}
	return 0, 0
}

// Contains reports whether id falls into the category's identifier block.
func (c AlgorithmCategory) Contains(id AlgorithmID) bool {
	lo, hi := c.IDRange()
	return id >= lo && id <= hi && hi != 0
}

// AlgorithmID is a per-category two byte algorithm identifier.
type AlgorithmID uint16

// Built-in algorithm identifiers.
const (
	AlgEd25519   AlgorithmID = 0x0100
	AlgECDSAP256 AlgorithmID = 0x0101

	AlgSHA2_256    AlgorithmID = 0x1000
	AlgSHA3_256    AlgorithmID = 0x1001
	AlgBLAKE2b_256 AlgorithmID = 0x1002
	AlgBLAKE2s_256 AlgorithmID = 0x1003
	AlgBLAKE3      AlgorithmID = 0x1004

	AlgX25519   AlgorithmID = 0x2000
	AlgECDHP256 AlgorithmID = 0x2001

	AlgChaCha20Poly1305 AlgorithmID = 0x3000
	AlgAES256GCM        AlgorithmID = 0x3001

	AlgFROSTEd25519 AlgorithmID = 0x4000

	AlgCompressNone AlgorithmID = 0x5000
	AlgCompressS2   AlgorithmID = 0x5001
	AlgCompressZstd AlgorithmID = 0x5002
)

// AlgorithmStatus describes how negotiation may treat an algorithm.
// Bindings are frozen forever; only the status transitions.
type AlgorithmStatus uint8

const (
	StatusRequired AlgorithmStatus = iota
	StatusRecommended
	StatusOptional
	StatusDeprecated
	StatusReserved
)

func (s AlgorithmStatus) String() string {
	switch s {
	case StatusRequired:
		return "required"
	case StatusRecommended:
		return "recommended"
	case StatusOptional:
		return "optional"
	case StatusDeprecated:
		return "deprecated"
	case StatusReserved:
		return "reserved"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Selectable reports whether negotiation may still pick the algorithm.
func (s AlgorithmStatus) Selectable() bool {
	switch s {
	case StatusRequired, StatusRecommended, StatusOptional:
		return true
	}
	return false
}

// AlgorithmInfo is a registry entry: identity plus metadata. The (category,
// id, name) binding never changes once registered.
type AlgorithmInfo struct {
	Category      AlgorithmCategory
	ID            AlgorithmID
	Name          string
	Status        AlgorithmStatus
	SecurityLevel uint8

	// DeprecatedIn is the protocol version from which negotiation stops
	// selecting the algorithm. Zero means not deprecated.
	DeprecatedIn uint16
}

func (ai AlgorithmInfo) String() string {
	return fmt.Sprintf("%s/%#04x(%s)", ai.Category, uint16(ai.ID), ai.Name)
}

// Hash returns the hash enum value the entry refers to.
func (ai AlgorithmInfo) Hash() (Hash, bool) {
	if ai.Category != CategoryHash {
		return "", false
	}
	h := Hash(ai.Name)
	return h, h.IsValid()
}

// KeyPairType returns the signature capability the entry refers to.
func (ai AlgorithmInfo) KeyPairType() (KeyPairType, bool) {
	if ai.Category != CategorySignature {
		return "", false
	}
	kpt := KeyPairType(ai.Name)
	return kpt, kpt.IsValid()
}

// KeyExchangeType returns the key exchange capability the entry refers to.
func (ai AlgorithmInfo) KeyExchangeType() (KeyExchangeType, bool) {
	if ai.Category != CategoryKeyExchange {
		return "", false
	}
	ket := KeyExchangeType(ai.Name)
	return ket, ket.IsValid()
}

// CipherType returns the symmetric capability the entry refers to.
func (ai AlgorithmInfo) CipherType() (CipherType, bool) {
	if ai.Category != CategorySymmetric {
		return "", false
	}
	ct := CipherType(ai.Name)
	return ct, ct.IsValid()
}

// Compression returns the compression codec the entry refers to.
func (ai AlgorithmInfo) Compression() (Compression, bool) {
	if ai.Category != CategoryCompression {
		return "", false
	}
	c := Compression(ai.Name)
	return c, c.IsValid()
}

// builtinAlgorithms is the catalog every new registry starts with.
func builtinAlgorithms() []AlgorithmInfo {
	return []AlgorithmInfo{
		{CategorySignature, AlgEd25519, string(KeyPairTypeEd25519), StatusRequired, 4, 0},
		{CategorySignature, AlgECDSAP256, string(KeyPairTypeECDSAP256), StatusOptional, 2, 0},

		{CategoryHash, AlgSHA2_256, string(SHA2_256), StatusRecommended, 3, 0},
		{CategoryHash, AlgSHA3_256, string(SHA3_256), StatusOptional, 4, 0},
		{CategoryHash, AlgBLAKE2b_256, string(BLAKE2b_256), StatusOptional, 3, 0},
		{CategoryHash, AlgBLAKE2s_256, string(BLAKE2s_256), StatusOptional, 2, 0},
		{CategoryHash, AlgBLAKE3, string(BLAKE3), StatusRequired, 3, 0},

		{CategoryKeyExchange, AlgX25519, string(KeyExchangeTypeX25519), StatusRequired, 4, 0},
		{CategoryKeyExchange, AlgECDHP256, string(KeyExchangeTypeECDHP256), StatusOptional, 2, 0},

		{CategorySymmetric, AlgChaCha20Poly1305, string(CipherTypeChaCha20Poly1305), StatusRecommended, 3, 0},
		{CategorySymmetric, AlgAES256GCM, string(CipherTypeAES256GCM), StatusRecommended, 3, 0},

		// Threshold signing has an allocated identifier but no built-in
		// implementation yet.
		{CategoryThreshold, AlgFROSTEd25519, "FROST-Ed25519", StatusReserved, 3, 0},

		{CategoryCompression, AlgCompressNone, string(CompressionNone), StatusRequired, 0, 0},
		{CategoryCompression, AlgCompressS2, string(CompressionS2), StatusRecommended, 0, 0},
		{CategoryCompression, AlgCompressZstd, string(CompressionZstd), StatusOptional, 0, 0},
	}
}
