package olocus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticCodec is a minimal well-behaved codec for registry tests.
type staticCodec struct {
	pt PayloadType
}

func (c staticCodec) PayloadType() PayloadType { return c.pt }

func (c staticCodec) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: want string", ErrInvalidFormat)
	}
	return []byte(s), nil
}

func (c staticCodec) Decode(data []byte) (any, error) { return string(data), nil }

func (c staticCodec) Validate(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}
	return nil
}

// panickyCodec misbehaves on first use to exercise poisoning.
type panickyCodec struct{}

func (panickyCodec) PayloadType() PayloadType   { panic("codec exploded") }
func (panickyCodec) Encode(any) ([]byte, error) { panic("codec exploded") }
func (panickyCodec) Decode([]byte) (any, error) { panic("codec exploded") }
func (panickyCodec) Validate([]byte) error      { panic("codec exploded") }

func TestPayloadType_Bands(t *testing.T) {
	t.Parallel()

	assert.Equal(t, BandCore, PayloadTypeRaw.Band())
	assert.Equal(t, BandCore, PayloadType(0x00FF).Band())
	assert.Equal(t, BandStandard, PayloadType(0x0100).Band())
	assert.Equal(t, BandStandard, PayloadType(0x7FFF).Band())
	assert.Equal(t, BandUser, PayloadType(0x8000).Band())
	assert.Equal(t, BandUser, PayloadType(0xFFFF).Band())
	assert.Equal(t, BandInvalid, PayloadType(0x10000).Band())
}

func TestPayloadRegistry_CoreRawPreloaded(t *testing.T) {
	t.Parallel()

	r := NewPayloadTypeRegistry()

	reg, err := r.Resolve(PayloadTypeRaw)
	require.NoError(t, err)
	assert.Equal(t, PayloadTypeRaw, reg.Type)

	encoded, err := reg.Codec.Encode([]byte("raw bytes"))
	require.NoError(t, err)
	decoded, err := reg.Codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw bytes"), decoded)

	require.NoError(t, r.CheckType(PayloadTypeRaw))
}

func TestPayloadRegistry_AllocateStandard(t *testing.T) {
	t.Parallel()

	r := NewPayloadTypeRegistry()
	const pt = PayloadType(0x0200)

	require.NoError(t, r.AllocateStandard(pt, "ext-a", staticCodec{pt}))

	// Same owner re-allocating is a no-op.
	require.NoError(t, r.AllocateStandard(pt, "ext-a", staticCodec{pt}))

	// A different owner claiming the same id is a conflict.
	err := r.AllocateStandard(pt, "ext-b", staticCodec{pt})
	assert.ErrorIs(t, err, ErrPayloadTypeConflict)

	// The original registration survives.
	reg, err := r.Resolve(pt)
	require.NoError(t, err)
	assert.Equal(t, "ext-a", reg.Owner)

	// Band enforcement.
	assert.ErrorIs(t, r.AllocateStandard(0x9000, "ext-a", staticCodec{0x9000}), ErrPayloadTypeConflict)
	assert.ErrorIs(t, r.AllocateStandard(0x0001, "ext-a", staticCodec{0x0001}), ErrPayloadTypeConflict)

	// A codec disagreeing about its own type is rejected.
	err = r.AllocateStandard(0x0300, "ext-a", staticCodec{0x0301})
	assert.ErrorIs(t, err, ErrPayloadTypeConflict)
}

func TestPayloadRegistry_UserBand(t *testing.T) {
	t.Parallel()

	r := NewPayloadTypeRegistry()
	const pt = PayloadType(0x8001)

	// Unregistered user band types pass verification-time checks.
	require.NoError(t, r.CheckType(pt))
	_, err := r.Resolve(pt)
	assert.ErrorIs(t, err, ErrUnknownPayloadType)

	// User band registration never conflicts: later wins.
	require.NoError(t, r.RegisterUser(pt, "app-a", staticCodec{pt}))
	require.NoError(t, r.RegisterUser(pt, "app-b", staticCodec{pt}))
	reg, err := r.Resolve(pt)
	require.NoError(t, err)
	assert.Equal(t, "app-b", reg.Owner)

	// Core and standard band types must be registered.
	assert.ErrorIs(t, r.CheckType(0x0042), ErrUnknownPayloadType)
	assert.ErrorIs(t, r.CheckType(0x0500), ErrUnknownPayloadType)
	assert.ErrorIs(t, r.CheckType(0x10000), ErrUnknownPayloadType)
}

func TestPayloadRegistry_CoreBand(t *testing.T) {
	t.Parallel()

	r := NewPayloadTypeRegistry()
	const pt = PayloadType(0x0001)

	require.NoError(t, r.registerCore(pt, staticCodec{pt}))
	require.NoError(t, r.CheckType(pt))

	// Core types are registered exactly once.
	assert.ErrorIs(t, r.registerCore(pt, staticCodec{pt}), ErrPayloadTypeConflict)
	assert.ErrorIs(t, r.registerCore(PayloadTypeRaw, RawPayloadCodec{}), ErrPayloadTypeConflict)

	// Band enforcement.
	assert.ErrorIs(t, r.registerCore(0x0100, staticCodec{0x0100}), ErrPayloadTypeConflict)
}

func TestPayloadRegistry_PoisonAndReset(t *testing.T) {
	t.Parallel()

	r := NewPayloadTypeRegistry()
	const pt = PayloadType(0x0400)

	require.NoError(t, r.AllocateStandard(pt, "ext-a", staticCodec{pt}))

	// A panicking codec poisons the registry instead of crashing the process.
	err := r.RegisterUser(0x8002, "app", panickyCodec{})
	require.ErrorIs(t, err, ErrLockPoisoned)
	assert.True(t, r.Poisoned())

	// Every access fails while poisoned.
	_, err = r.Resolve(pt)
	assert.ErrorIs(t, err, ErrLockPoisoned)
	assert.ErrorIs(t, r.CheckType(pt), ErrLockPoisoned)
	assert.ErrorIs(t, r.AllocateStandard(0x0401, "ext-a", staticCodec{0x0401}), ErrLockPoisoned)

	// Reset recovers with only the core types.
	r.Reset()
	assert.False(t, r.Poisoned())
	require.NoError(t, r.CheckType(PayloadTypeRaw))
	_, err = r.Resolve(pt)
	assert.ErrorIs(t, err, ErrUnknownPayloadType)
}

func TestPayloadRegistry_ConcurrentReads(t *testing.T) {
	t.Parallel()

	r := NewPayloadTypeRegistry()
	const pt = PayloadType(0x0200)
	require.NoError(t, r.AllocateStandard(pt, "ext-a", staticCodec{pt}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := r.Resolve(pt); err != nil {
					t.Error(err)
					return
				}
				if err := r.CheckType(pt); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
