package olocus

import (
	"fmt"
	"sync"
)

// PayloadType selects how a block's opaque payload bytes are interpreted.
type PayloadType uint32

// Payload type allocation bands.
const (
	PayloadTypeCoreMax     PayloadType = 0x000000FF
	PayloadTypeStandardMin PayloadType = 0x00000100
	PayloadTypeStandardMax PayloadType = 0x00007FFF
	PayloadTypeUserMin     PayloadType = 0x00008000
	PayloadTypeUserMax     PayloadType = 0x0000FFFF

	// PayloadTypeRaw is the core type for uninterpreted bytes.
	PayloadTypeRaw PayloadType = 0x00000000
)

// PayloadBand is the allocation band a payload type falls into.
type PayloadBand uint8

const (
	BandCore PayloadBand = iota
	BandStandard
	BandUser
	BandInvalid
)

func (b PayloadBand) String() string {
	switch b {
	case BandCore:
		return "core"
	case BandStandard:
		return "standard"
	case BandUser:
		return "user"
	}
	return "invalid"
}

// Band returns the allocation band of the payload type.
func (pt PayloadType) Band() PayloadBand {
	switch {
	case pt <= PayloadTypeCoreMax:
		return BandCore
	case pt <= PayloadTypeStandardMax:
		return BandStandard
	case pt <= PayloadTypeUserMax:
		return BandUser
	}
	return BandInvalid
}

func (pt PayloadType) String() string {
	return fmt.Sprintf("%#08x(%s)", uint32(pt), pt.Band())
}

// PayloadCodec is the capability an extension registers for its payload
// type: encoding application values to payload bytes and back, plus
// structural validation run by upper layers before interpretation.
type PayloadCodec interface {
	PayloadType() PayloadType
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
	Validate(data []byte) error
}

// PayloadTypeRegistration binds a payload type to its owning extension and
// codec.
type PayloadTypeRegistration struct {
	Type  PayloadType
	Owner string
	Codec PayloadCodec
}

// PayloadTypeRegistry maps payload type identifiers to codecs, enforcing the
// allocation bands. Core and standard types must be registered before use;
// user-band types need no registration and collisions there are the
// caller's responsibility.
//
// A registration that panics (a misbehaving codec) poisons the registry:
// every subsequent access reports ErrLockPoisoned until Reset is called.
type PayloadTypeRegistry struct {
	mu       sync.RWMutex
	poisoned bool

	entries map[PayloadType]PayloadTypeRegistration
}

// NewPayloadTypeRegistry returns a registry preloaded with the core raw
// payload type.
func NewPayloadTypeRegistry() *PayloadTypeRegistry {
	r := &PayloadTypeRegistry{
		entries: make(map[PayloadType]PayloadTypeRegistration),
	}
	r.entries[PayloadTypeRaw] = PayloadTypeRegistration{
		Type:  PayloadTypeRaw,
		Owner: "olocus",
		Codec: RawPayloadCodec{},
	}
	return r
}

func (r *PayloadTypeRegistry) write(fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poisoned {
		return ErrLockPoisoned
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.poisoned = true
			err = fmt.Errorf("%w: %v", ErrLockPoisoned, rec)
		}
	}()
	return fn()
}

// probeCodec exercises the codec once inside the write section, so a codec
// that panics on first use poisons the registry instead of the first
// innocent reader.
func probeCodec(pt PayloadType, codec PayloadCodec) error {
	if codec == nil {
		return fmt.Errorf("%w: nil codec", ErrInvalidFormat)
	}
	if got := codec.PayloadType(); got != pt {
		return fmt.Errorf("%w: codec reports type %s, registered as %s", ErrPayloadTypeConflict, got, pt)
	}
	return nil
}

// AllocateStandard claims a standard-band payload type for an extension.
// Claiming an id already held by a different owner is a conflict.
func (r *PayloadTypeRegistry) AllocateStandard(pt PayloadType, owner string, codec PayloadCodec) error {
	if pt.Band() != BandStandard {
		return fmt.Errorf("%w: %s is not in the standard band", ErrPayloadTypeConflict, pt)
	}
	if owner == "" {
		return fmt.Errorf("%w: empty owner", ErrInvalidFormat)
	}

	return r.write(func() error {
		if existing, ok := r.entries[pt]; ok {
			if existing.Owner != owner {
				return fmt.Errorf("%w: %s already allocated to %q", ErrPayloadTypeConflict, pt, existing.Owner)
			}
			return nil
		}
		if err := probeCodec(pt, codec); err != nil {
			return err
		}
		r.entries[pt] = PayloadTypeRegistration{Type: pt, Owner: owner, Codec: codec}
		return nil
	})
}

// RegisterUser registers a user-band payload type. No allocation is
// required in the user band; a later registration for the same id simply
// replaces the earlier one.
func (r *PayloadTypeRegistry) RegisterUser(pt PayloadType, owner string, codec PayloadCodec) error {
	if pt.Band() != BandUser {
		return fmt.Errorf("%w: %s is not in the user band", ErrPayloadTypeConflict, pt)
	}

	return r.write(func() error {
		if err := probeCodec(pt, codec); err != nil {
			return err
		}
		r.entries[pt] = PayloadTypeRegistration{Type: pt, Owner: owner, Codec: codec}
		return nil
	})
}

// registerCore installs a kernel-owned core-band codec.
func (r *PayloadTypeRegistry) registerCore(pt PayloadType, codec PayloadCodec) error {
	if pt.Band() != BandCore {
		return fmt.Errorf("%w: %s is not in the core band", ErrPayloadTypeConflict, pt)
	}

	return r.write(func() error {
		if existing, ok := r.entries[pt]; ok {
			return fmt.Errorf("%w: %s already registered by %q", ErrPayloadTypeConflict, pt, existing.Owner)
		}
		if err := probeCodec(pt, codec); err != nil {
			return err
		}
		r.entries[pt] = PayloadTypeRegistration{Type: pt, Owner: "olocus", Codec: codec}
		return nil
	})
}

// Resolve returns the registration for a payload type, for payload
// interpretation by upper layers.
func (r *PayloadTypeRegistry) Resolve(pt PayloadType) (PayloadTypeRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.poisoned {
		return PayloadTypeRegistration{}, ErrLockPoisoned
	}

	entry, ok := r.entries[pt]
	if !ok {
		return PayloadTypeRegistration{}, fmt.Errorf("%w: %s", ErrUnknownPayloadType, pt)
	}
	return entry, nil
}

// CheckType is the verification-time check: core and standard band types
// must be registered, user band types are accepted without registration.
func (r *PayloadTypeRegistry) CheckType(pt PayloadType) error {
	switch pt.Band() {
	case BandUser:
		return nil
	case BandInvalid:
		return fmt.Errorf("%w: %s", ErrUnknownPayloadType, pt)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.poisoned {
		return ErrLockPoisoned
	}
	if _, ok := r.entries[pt]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPayloadType, pt)
	}
	return nil
}

// Poisoned reports whether the registry was left inconsistent by a failed
// registration.
func (r *PayloadTypeRegistry) Poisoned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.poisoned
}

// Reset rebuilds the registry with only the core types, clearing the
// poisoned state and dropping all extension registrations.
func (r *PayloadTypeRegistry) Reset() {
	fresh := NewPayloadTypeRegistry()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = fresh.entries
	r.poisoned = false
}

// RawPayloadCodec is the core codec for uninterpreted bytes.
type RawPayloadCodec struct{}

func (RawPayloadCodec) PayloadType() PayloadType {
	return PayloadTypeRaw
}

func (RawPayloadCodec) Encode(v any) ([]byte, error) {
	data, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: raw payload must be []byte", ErrInvalidFormat)
	}
	return data, nil
}

func (RawPayloadCodec) Decode(data []byte) (any, error) {
	return data, nil
}

func (RawPayloadCodec) Validate([]byte) error {
	return nil
}
