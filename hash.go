package olocus

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

type Hash string

const (
	SHA2_224     Hash = "SHA2_224"
	SHA2_256     Hash = "SHA2_256"
	SHA2_384     Hash = "SHA2_384"
	SHA2_512     Hash = "SHA2_512"
	SHA2_512_224 Hash = "SHA2_512_224"
	SHA2_512_256 Hash = "SHA2_512_256"

	SHA3_224 Hash = "SHA3_224"
	SHA3_256 Hash = "SHA3_256"
	SHA3_384 Hash = "SHA3_384"
	SHA3_512 Hash = "SHA3_512"

	BLAKE2s_256 Hash = "BLAKE2s_256"
	BLAKE2b_256 Hash = "BLAKE2b_256"
	BLAKE2b_384 Hash = "BLAKE2b_384"
	BLAKE2b_512 Hash = "BLAKE2b_512"

	BLAKE3 Hash = "BLAKE3"
)

func AllHashes() []Hash {
	return []Hash{
		SHA2_224, SHA2_256, SHA2_384, SHA2_512, SHA2_512_224, SHA2_512_256,
		SHA3_224, SHA3_256, SHA3_384, SHA3_512,
		BLAKE2s_256, BLAKE2b_256, BLAKE2b_384, BLAKE2b_512,
		BLAKE3,
	}
}

func (h Hash) IsValid() bool {
	return h.New() != nil
}

func (h Hash) String() string {
	return string(h)
}

// New returns a new hasher for the algorithm, or nil if the algorithm is unknown.
func (h Hash) New() hash.Hash {
	switch h {
	case SHA2_224:
		return sha256.New224()
	case SHA2_256:
		return sha256.New()
	case SHA2_384:
		return sha512.New384()
	case SHA2_512:
		return sha512.New()
	case SHA2_512_224:
		return sha512.New512_224()
	case SHA2_512_256:
		return sha512.New512_256()

	case SHA3_224:
		return sha3.New224()
	case SHA3_256:
		return sha3.New256()
	case SHA3_384:
		return sha3.New384()
	case SHA3_512:
		return sha3.New512()

	case BLAKE2s_256:
		hasher, _ := blake2s.New256(nil)
		return hasher
	case BLAKE2b_256:
		hasher, _ := blake2b.New256(nil)
		return hasher
	case BLAKE2b_384:
		hasher, _ := blake2b.New384(nil)
		return hasher
	case BLAKE2b_512:
		hasher, _ := blake2b.New512(nil)
		return hasher

	case BLAKE3:
		return blake3.New()
	}
	return nil
}

// Digest hashes data and returns the checksum.
// Panics when used with an invalid algorithm.
func (h Hash) Digest(data []byte) []byte {
	hasher := h.New()
	_, _ = hasher.Write(data)
	return hasher.Sum(nil)
}

// Verify hashes data and compares it to the given checksum.
func (h Hash) Verify(data, checksum []byte) error {
	digest := h.Digest(data)
	if subtle.ConstantTimeCompare(digest, checksum) != 1 {
		return ErrChecksumMismatch
	}
	return nil
}

// ValueHasher hashes a sequence of fields in a non-malleable way:
// every field is framed with its one-based field ID and its length, and the
// final sum is prefixed with the field count. Used for signing transcripts
// and offer commitments, where shifting bytes between fields must change
// the result.
type ValueHasher struct {
	hasher   hash.Hash
	fieldCnt uint64
}

func NewValueHasher(algo Hash) *ValueHasher {
	return &ValueHasher{
		hasher: algo.New(),
	}
}

// Add adds a field to the hashed value.
func (vh *ValueHasher) Add(field []byte) {
	var frame [8]byte

	vh.fieldCnt++
	binary.BigEndian.PutUint64(frame[:], vh.fieldCnt)
	_, _ = vh.hasher.Write(frame[:])

	binary.BigEndian.PutUint64(frame[:], uint64(len(field)))
	_, _ = vh.hasher.Write(frame[:])

	if len(field) > 0 {
		_, _ = vh.hasher.Write(field)
	}
}

// AddString adds a string field to the hashed value.
func (vh *ValueHasher) AddString(field string) {
	vh.Add([]byte(field))
}

// Sum returns the hashed value: a 16 byte finisher holding the field count,
// followed by the digest.
func (vh *ValueHasher) Sum() []byte {
	sum := make([]byte, 16, 16+vh.hasher.Size())
	binary.BigEndian.PutUint64(sum[:8], vh.fieldCnt)
	for i := 8; i < 16; i++ {
		sum[i] = 0xFF
	}
	return vh.hasher.Sum(sum)
}
