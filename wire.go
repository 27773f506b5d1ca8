package olocus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// WireFormat is a byte-level block encoding. Binary is the canonical form
// chain-linking hashes are computed over; the other formats are for
// interchange and debugging and must round-trip to the same logical block.
type WireFormat string

const (
	WireFormatBinary      WireFormat = "binary"
	WireFormatJSON        WireFormat = "json"
	WireFormatCBOR        WireFormat = "cbor"
	WireFormatMessagePack WireFormat = "msgpack"
	WireFormatSSZ         WireFormat = "ssz"
)

func AllWireFormats() []WireFormat {
	return []WireFormat{
		WireFormatBinary, WireFormatJSON, WireFormatCBOR,
		WireFormatMessagePack, WireFormatSSZ,
	}
}

func (f WireFormat) IsValid() bool {
	switch f {
	case WireFormatBinary, WireFormatJSON, WireFormatCBOR, WireFormatMessagePack, WireFormatSSZ:
		return true
	}
	return false
}

func (f WireFormat) String() string {
	return string(f)
}

// Compression wraps an encoded block. Sender and receiver must agree on the
// compression out of band; a mismatch fails closed instead of attempting
// best-effort decoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionS2   Compression = "s2"
	CompressionZstd Compression = "zstd"
)

func AllCompressions() []Compression {
	return []Compression{CompressionNone, CompressionS2, CompressionZstd}
}

func (c Compression) IsValid() bool {
	switch c {
	case CompressionNone, CompressionS2, CompressionZstd:
		return true
	}
	return false
}

func (c Compression) String() string {
	return string(c)
}

// Shared zstd coders; both are safe for concurrent EncodeAll/DecodeAll use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func (c Compression) compress(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionS2:
		return s2.Encode(nil, data), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrAlgorithmUnsupported, c)
	}
}

func (c Compression) decompress(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionS2:
		out, err := s2.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompressionMismatch, err)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompressionMismatch, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrAlgorithmUnsupported, c)
	}
}

// wireBlock is the schema the interchange formats share. Field keys are kept
// short for the binary schema codecs.
type wireBlock struct {
	Version      uint16 `cbor:"v" json:"version" msgpack:"v"`
	Index        uint64 `cbor:"i" json:"index" msgpack:"i"`
	Timestamp    int64  `cbor:"ts" json:"timestamp" msgpack:"ts"`
	PreviousHash []byte `cbor:"ph" json:"previousHash" msgpack:"ph"`
	PayloadHash  []byte `cbor:"dh" json:"payloadHash" msgpack:"dh"`
	PayloadType  uint32 `cbor:"pt" json:"payloadType" msgpack:"pt"`
	Payload      []byte `cbor:"pl" json:"payload" msgpack:"pl"`
	Signature    []byte `cbor:"sig" json:"signature" msgpack:"sig"`
	PublicKey    []byte `cbor:"pk" json:"publicKey" msgpack:"pk"`
}

func toWireBlock(b *Block) *wireBlock {
	return &wireBlock{
		Version:      b.Header.Version,
		Index:        b.Header.Index,
		Timestamp:    b.Header.Timestamp,
		PreviousHash: b.Header.PreviousHash[:],
		PayloadHash:  b.Header.PayloadHash[:],
		PayloadType:  uint32(b.Header.PayloadType),
		Payload:      b.Payload,
		Signature:    b.Signature,
		PublicKey:    b.PublicKey,
	}
}

func (wb *wireBlock) toBlock() (*Block, error) {
	if len(wb.PreviousHash) != DigestSize || len(wb.PayloadHash) != DigestSize {
		return nil, fmt.Errorf("%w: hash fields must be %d bytes", ErrMalformedBlock, DigestSize)
	}
	block := &Block{
		Header: BlockHeader{
			Version:     wb.Version,
			Index:       wb.Index,
			Timestamp:   wb.Timestamp,
			PayloadType: PayloadType(wb.PayloadType),
		},
		Payload:     wb.Payload,
		PayloadType: PayloadType(wb.PayloadType),
		Signature:   wb.Signature,
		PublicKey:   wb.PublicKey,
	}
	copy(block.Header.PreviousHash[:], wb.PreviousHash)
	copy(block.Header.PayloadHash[:], wb.PayloadHash)
	return block, nil
}

// Deterministic CBOR, matching RFC 8949 core requirements.
var (
	cborEncMode, _ = cbor.CanonicalEncOptions().EncMode()
	cborDecMode, _ = cbor.DecOptions{}.DecMode()
)

// EncodeBlock serializes a block in the given wire format and wraps it in
// the given compression.
func EncodeBlock(b *Block, format WireFormat, compression Compression) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil block", ErrMalformedBlock)
	}

	var (
		encoded []byte
		err     error
	)
	switch format {
	case WireFormatBinary:
		encoded = b.CanonicalBytes()
	case WireFormatJSON:
		encoded, err = json.Marshal(toWireBlock(b))
	case WireFormatCBOR:
		encoded, err = cborEncMode.Marshal(toWireBlock(b))
	case WireFormatMessagePack:
		encoded, err = msgpack.Marshal(toWireBlock(b))
	case WireFormatSSZ:
		encoded = encodeSSZ(b)
	default:
		return nil, fmt.Errorf("%w: wire format %q", ErrAlgorithmUnsupported, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}

	return compression.compress(encoded)
}

// DecodeBlock reverses EncodeBlock. Structural validation only; chain and
// signature checks belong to the chain engine.
func DecodeBlock(data []byte, format WireFormat, compression Compression) (*Block, error) {
	decompressed, err := compression.decompress(data)
	if err != nil {
		return nil, err
	}

	switch format {
	case WireFormatBinary:
		return decodeBinaryBlock(decompressed)
	case WireFormatJSON:
		wb := &wireBlock{}
		if err := json.Unmarshal(decompressed, wb); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
		}
		return wb.toBlock()
	case WireFormatCBOR:
		wb := &wireBlock{}
		if err := cborDecMode.Unmarshal(decompressed, wb); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
		}
		return wb.toBlock()
	case WireFormatMessagePack:
		wb := &wireBlock{}
		if err := msgpack.Unmarshal(decompressed, wb); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
		}
		return wb.toBlock()
	case WireFormatSSZ:
		return decodeSSZ(decompressed)
	default:
		return nil, fmt.Errorf("%w: wire format %q", ErrAlgorithmUnsupported, format)
	}
}

func decodeBinaryBlock(data []byte) (*Block, error) {
	header, err := decodeBlockHeader(data)
	if err != nil {
		return nil, err
	}

	rest := data[headerSize:]
	fields := make([][]byte, 3)
	for i := range fields {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedBlock)
		}
		length := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(len(rest)) < uint64(length) {
			return nil, fmt.Errorf("%w: field exceeds remaining %d bytes", ErrMalformedBlock, len(rest))
		}
		if length > 0 {
			fields[i] = rest[:length:length]
		}
		rest = rest[length:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBlock, len(rest))
	}

	return &Block{
		Header:      header,
		Payload:     fields[0],
		PayloadType: header.PayloadType,
		Signature:   fields[1],
		PublicKey:   fields[2],
	}, nil
}

// SSZ layout: a fixed part with the header fields in little-endian plus
// three 4-byte offsets, then the variable payload, signature, and public
// key parts. The hand-rolled codec avoids a generator dependency for a
// single flat container.
const sszFixedSize = 86 + 12

func encodeSSZ(b *Block) []byte {
	buf := make([]byte, sszFixedSize, sszFixedSize+len(b.Payload)+len(b.Signature)+len(b.PublicKey))
	binary.LittleEndian.PutUint16(buf[0:2], b.Header.Version)
	binary.LittleEndian.PutUint64(buf[2:10], b.Header.Index)
	binary.LittleEndian.PutUint64(buf[10:18], uint64(b.Header.Timestamp))
	copy(buf[18:50], b.Header.PreviousHash[:])
	copy(buf[50:82], b.Header.PayloadHash[:])
	binary.LittleEndian.PutUint32(buf[82:86], uint32(b.Header.PayloadType))

	offset := uint32(sszFixedSize)
	binary.LittleEndian.PutUint32(buf[86:90], offset)
	offset += uint32(len(b.Payload))
	binary.LittleEndian.PutUint32(buf[90:94], offset)
	offset += uint32(len(b.Signature))
	binary.LittleEndian.PutUint32(buf[94:98], offset)

	buf = append(buf, b.Payload...)
	buf = append(buf, b.Signature...)
	buf = append(buf, b.PublicKey...)
	return buf
}

func decodeSSZ(data []byte) (*Block, error) {
	if len(data) < sszFixedSize {
		return nil, fmt.Errorf("%w: ssz fixed part truncated at %d bytes", ErrMalformedBlock, len(data))
	}

	var header BlockHeader
	header.Version = binary.LittleEndian.Uint16(data[0:2])
	header.Index = binary.LittleEndian.Uint64(data[2:10])
	header.Timestamp = int64(binary.LittleEndian.Uint64(data[10:18]))
	copy(header.PreviousHash[:], data[18:50])
	copy(header.PayloadHash[:], data[50:82])
	header.PayloadType = PayloadType(binary.LittleEndian.Uint32(data[82:86]))

	offsets := [4]uint32{
		binary.LittleEndian.Uint32(data[86:90]),
		binary.LittleEndian.Uint32(data[90:94]),
		binary.LittleEndian.Uint32(data[94:98]),
		uint32(len(data)),
	}
	if offsets[0] != sszFixedSize {
		return nil, fmt.Errorf("%w: first ssz offset %d", ErrMalformedBlock, offsets[0])
	}
	for i := 0; i < 3; i++ {
		if offsets[i] > offsets[i+1] || offsets[i+1] > uint32(len(data)) {
			return nil, fmt.Errorf("%w: ssz offsets out of order", ErrMalformedBlock)
		}
	}

	variable := func(i int) []byte {
		if offsets[i] == offsets[i+1] {
			return nil
		}
		return data[offsets[i]:offsets[i+1]:offsets[i+1]]
	}
	return &Block{
		Header:      header,
		Payload:     variable(0),
		PayloadType: header.PayloadType,
		Signature:   variable(1),
		PublicKey:   variable(2),
	}, nil
}
