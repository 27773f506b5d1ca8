package olocus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// BlockVersion is the current block header version.
	BlockVersion uint16 = 1

	// DigestSize is the fixed size of the header's hash fields. Suites
	// must use 256 bit hash algorithms.
	DigestSize = 32

	// headerSize is the canonical binary header: version(2) index(8)
	// timestamp(8) previous_hash(32) payload_hash(32) payload_type(4).
	headerSize = 86
)

// zeroDigest marks a genesis block's previous hash.
var zeroDigest [DigestSize]byte

// BlockHeader is the fixed-width part of a block.
type BlockHeader struct {
	Version      uint16
	Index        uint64
	Timestamp    int64 // unix seconds
	PreviousHash [DigestSize]byte
	PayloadHash  [DigestSize]byte
	PayloadType  PayloadType
}

// encode writes the canonical big-endian binary form of the header.
func (h *BlockHeader) encode() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint64(buf[2:10], h.Index)
	binary.BigEndian.PutUint64(buf[10:18], uint64(h.Timestamp))
	copy(buf[18:50], h.PreviousHash[:])
	copy(buf[50:82], h.PayloadHash[:])
	binary.BigEndian.PutUint32(buf[82:86], uint32(h.PayloadType))
	return buf
}

func decodeBlockHeader(data []byte) (BlockHeader, error) {
	if len(data) < headerSize {
		return BlockHeader{}, fmt.Errorf("%w: header truncated at %d bytes", ErrMalformedBlock, len(data))
	}
	var h BlockHeader
	h.Version = binary.BigEndian.Uint16(data[0:2])
	h.Index = binary.BigEndian.Uint64(data[2:10])
	h.Timestamp = int64(binary.BigEndian.Uint64(data[10:18]))
	copy(h.PreviousHash[:], data[18:50])
	copy(h.PayloadHash[:], data[50:82])
	h.PayloadType = PayloadType(binary.BigEndian.Uint32(data[82:86]))
	return h, nil
}

// IsGenesis reports whether the header marks the first block of a chain.
func (h *BlockHeader) IsGenesis() bool {
	return h.Index == 0 && h.PreviousHash == zeroDigest
}

// Block is the atomic chain unit: header, opaque payload, and a signature
// over header and payload under the declared public key.
type Block struct {
	Header      BlockHeader
	Payload     []byte
	PayloadType PayloadType // duplicated from the header, must stay consistent
	Signature   []byte
	PublicKey   []byte
}

// signingInput is the byte sequence the signature covers: the canonical
// header bytes followed by the payload.
func (b *Block) signingInput() []byte {
	input := make([]byte, 0, headerSize+len(b.Payload))
	input = append(input, b.Header.encode()...)
	input = append(input, b.Payload...)
	return input
}

// CanonicalBytes returns the canonical binary encoding: the fixed-width
// header, then payload, signature, and public key, each length-prefixed.
// Chain linkage hashes are defined over exactly these bytes, regardless of
// the wire format a peer used for transport.
func (b *Block) CanonicalBytes() []byte {
	size := headerSize + 12 + len(b.Payload) + len(b.Signature) + len(b.PublicKey)
	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.Write(b.Header.encode())
	for _, field := range [][]byte{b.Payload, b.Signature, b.PublicKey} {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(field)))
		buf.Write(length[:])
		buf.Write(field)
	}
	return buf.Bytes()
}

// Hash computes the chain-linking hash of the block under the given
// algorithm: the digest of the canonical binary encoding.
func (b *Block) Hash(algo Hash) [DigestSize]byte {
	var digest [DigestSize]byte
	copy(digest[:], algo.Digest(b.CanonicalBytes()))
	return digest
}

// Equal reports whether two blocks match in all semantic fields.
func (b *Block) Equal(other *Block) bool {
	return b.Header == other.Header &&
		b.PayloadType == other.PayloadType &&
		bytes.Equal(b.Payload, other.Payload) &&
		bytes.Equal(b.Signature, other.Signature) &&
		bytes.Equal(b.PublicKey, other.PublicKey)
}

// NewGenesisBlock builds and signs the first block of a chain: index 0,
// all-zero previous hash.
func NewGenesisBlock(payload []byte, pt PayloadType, suite CryptoSuite, signingKey KeyPair, timestamp time.Time, limits Limits) (*Block, error) {
	return buildBlock(payload, pt, suite, signingKey, nil, timestamp, limits)
}

// NewBlock builds and signs the successor of prior.
func NewBlock(payload []byte, pt PayloadType, suite CryptoSuite, signingKey KeyPair, prior *Block, timestamp time.Time, limits Limits) (*Block, error) {
	if prior == nil {
		return nil, fmt.Errorf("%w: prior block required, use NewGenesisBlock for index 0", ErrMalformedBlock)
	}
	return buildBlock(payload, pt, suite, signingKey, prior, timestamp, limits)
}

func buildBlock(payload []byte, pt PayloadType, suite CryptoSuite, signingKey KeyPair, prior *Block, timestamp time.Time, limits Limits) (*Block, error) {
	if limits.isZero() {
		limits = DefaultLimits()
	}

	if len(payload) > limits.MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d: %w",
			ErrPayloadTooLarge, len(payload), limits.MaxPayloadSize, ErrMalformedBlock)
	}
	if pt.Band() == BandInvalid {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownPayloadType, pt, ErrMalformedBlock)
	}
	if err := checkTimestamp(timestamp.Unix(), prior, time.Now().Unix(), limits); err != nil {
		return nil, err
	}

	hashAlgo := suite.Hash()
	payloadDigest := hashAlgo.Digest(payload)
	if len(payloadDigest) != DigestSize {
		return nil, fmt.Errorf("%w: suite hash %s yields %d byte digests, need %d",
			ErrAlgorithmUnsupported, hashAlgo, len(payloadDigest), DigestSize)
	}

	header := BlockHeader{
		Version:     BlockVersion,
		Timestamp:   timestamp.Unix(),
		PayloadType: pt,
	}
	copy(header.PayloadHash[:], payloadDigest)
	if prior != nil {
		header.Index = prior.Header.Index + 1
		header.PreviousHash = prior.Hash(hashAlgo)
	}

	block := &Block{
		Header:      header,
		Payload:     payload,
		PayloadType: pt,
		PublicKey:   signingKey.PublicKeyData(),
	}
	sig, err := signingKey.Sign(block.signingInput())
	if err != nil {
		return nil, err
	}
	block.Signature = sig
	return block, nil
}

func checkTimestamp(ts int64, prior *Block, now int64, limits Limits) error {
	if prior != nil && ts < prior.Header.Timestamp {
		return fmt.Errorf("%w: %d before prior %d", ErrTimestampRegression, ts, prior.Header.Timestamp)
	}
	if ts > now+limits.MaxFutureDrift {
		return fmt.Errorf("%w: %d is %ds ahead", ErrTimestampTooFuture, ts, ts-now)
	}
	if limits.MaxBlockAge > 0 && ts < now-limits.MaxBlockAge {
		return fmt.Errorf("%w: %d is %ds behind", ErrTimestampTooOld, ts, now-ts)
	}
	return nil
}

// verifyBlock runs the full verification order: structural checks first,
// then cryptographic checks, then semantic ordering and type checks, so
// malformed input is rejected before signature verification runs.
func verifyBlock(block, prior *Block, suite CryptoSuite, payloadTypes *PayloadTypeRegistry, limits Limits) error {
	// Structural.
	if block == nil {
		return fmt.Errorf("%w: nil block", ErrMalformedBlock)
	}
	if block.Header.Version == 0 || block.Header.Version > BlockVersion {
		return fmt.Errorf("%w: unsupported block version %d", ErrMalformedBlock, block.Header.Version)
	}
	if len(block.Payload) > limits.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d: %w",
			ErrPayloadTooLarge, len(block.Payload), limits.MaxPayloadSize, ErrMalformedBlock)
	}
	if block.PayloadType != block.Header.PayloadType {
		return fmt.Errorf("%w: payload type %s disagrees with header %s",
			ErrMalformedBlock, block.PayloadType, block.Header.PayloadType)
	}
	if len(block.Signature) == 0 || len(block.PublicKey) == 0 {
		return fmt.Errorf("%w: missing signature or public key", ErrMalformedBlock)
	}

	// Cryptographic.
	hashAlgo := suite.Hash()
	if err := hashAlgo.Verify(block.Payload, block.Header.PayloadHash[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrPayloadMismatch, err)
	}
	verifier, err := suite.KeyPairType().PublicKeyPair(block.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if err := verifier.Verify(block.signingInput(), block.Signature); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	// Semantic.
	if prior == nil {
		if block.Header.Index != 0 {
			return fmt.Errorf("%w: first block has index %d", ErrInvalidIndex, block.Header.Index)
		}
		if block.Header.PreviousHash != zeroDigest {
			return fmt.Errorf("%w: genesis previous hash not zero", ErrBrokenChain)
		}
	} else {
		if block.Header.Index != prior.Header.Index+1 {
			return fmt.Errorf("%w: index %d does not follow %d",
				ErrInvalidIndex, block.Header.Index, prior.Header.Index)
		}
		if block.Header.PreviousHash != prior.Hash(hashAlgo) {
			return fmt.Errorf("%w: previous hash does not match block %d",
				ErrBrokenChain, prior.Header.Index)
		}
		if block.Header.Timestamp < prior.Header.Timestamp {
			return fmt.Errorf("%w: %d before prior %d",
				ErrTimestampRegression, block.Header.Timestamp, prior.Header.Timestamp)
		}
	}
	if payloadTypes != nil {
		if err := payloadTypes.CheckType(block.Header.PayloadType); err != nil {
			return err
		}
	}
	return nil
}
