package olocus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T, cfg ChainConfig) *Chain {
	t.Helper()
	chain, err := NewChain(cfg)
	require.NoError(t, err)
	return chain
}

func TestChain_AppendAndVerify(t *testing.T) {
	t.Parallel()

	chain := newTestChain(t, ChainConfig{})
	key := testIdentity(t, chain.Suite())
	now := time.Now()

	genesis, err := chain.Genesis([]byte("genesis"), PayloadTypeRaw, key, now)
	require.NoError(t, err)
	assert.True(t, genesis.Header.IsGenesis())
	assert.Equal(t, 1, chain.Len())

	for i := 1; i <= 5; i++ {
		_, err := chain.AppendNew([]byte{byte(i)}, PayloadTypeRaw, key, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	assert.Equal(t, 6, chain.Len())
	require.NoError(t, chain.Verify())

	tip := chain.Tip()
	require.NotNil(t, tip)
	assert.EqualValues(t, 5, tip.Header.Index)

	third, err := chain.BlockAt(3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, third.Header.Index)

	_, err = chain.BlockAt(99)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestChain_EqualTimestampAccepted(t *testing.T) {
	t.Parallel()

	chain := newTestChain(t, ChainConfig{})
	key := testIdentity(t, chain.Suite())
	now := time.Now()

	genesis, err := chain.Genesis([]byte("genesis"), PayloadTypeRaw, key, now)
	require.NoError(t, err)

	// A successor may carry the exact timestamp of its prior block. Only a
	// regression is a fault.
	same, err := chain.AppendNew([]byte("same second"), PayloadTypeRaw, key, now)
	require.NoError(t, err)
	assert.Equal(t, genesis.Header.Timestamp, same.Header.Timestamp)
	require.NoError(t, chain.VerifyBlock(same, genesis))
	require.NoError(t, chain.Verify())
	assert.Equal(t, 2, chain.Len())

	_, err = chain.AppendNew([]byte("earlier"), PayloadTypeRaw, key, now.Add(-time.Second))
	assert.ErrorIs(t, err, ErrTimestampRegression)
}

func TestChain_RejectsBadBlocksUnchanged(t *testing.T) {
	t.Parallel()

	chain := newTestChain(t, ChainConfig{})
	key := testIdentity(t, chain.Suite())
	now := time.Now()

	genesis, err := chain.Genesis([]byte("genesis"), PayloadTypeRaw, key, now)
	require.NoError(t, err)

	// A correctly signed block with a skipped index is rejected and the
	// chain stays as it was.
	skipped, err := NewBlock([]byte("x"), PayloadTypeRaw, chain.Suite(), key, genesis, now.Add(time.Second), DefaultLimits())
	require.NoError(t, err)
	skipped.Header.Index = 3
	// Re-sign so only the index is wrong.
	skipped.Signature, err = key.Sign(skipped.signingInput())
	require.NoError(t, err)

	assert.ErrorIs(t, chain.Append(skipped), ErrInvalidIndex)
	assert.Equal(t, 1, chain.Len())
	require.NoError(t, chain.Verify())

	// Appending genesis again is an index violation too.
	assert.ErrorIs(t, chain.Append(genesis), ErrInvalidIndex)

	// AppendNew on an empty chain is rejected.
	empty := newTestChain(t, ChainConfig{})
	_, err = empty.AppendNew([]byte("x"), PayloadTypeRaw, key, now)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

// buildBranch signs an alternative branch attached to the given prior block.
func buildBranch(t *testing.T, chain *Chain, prior *Block, key KeyPair, start time.Time, n int) []*Block {
	t.Helper()
	branch := make([]*Block, 0, n)
	for i := 0; i < n; i++ {
		block, err := NewBlock([]byte{0xAA, byte(i)}, PayloadTypeRaw, chain.Suite(), key, prior, start.Add(time.Duration(i)*time.Second), DefaultLimits())
		require.NoError(t, err)
		branch = append(branch, block)
		prior = block
	}
	return branch
}

func TestChain_Reorganize(t *testing.T) {
	t.Parallel()

	chain := newTestChain(t, ChainConfig{})
	key := testIdentity(t, chain.Suite())
	now := time.Now()

	_, err := chain.Genesis([]byte("genesis"), PayloadTypeRaw, key, now)
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		_, err := chain.AppendNew([]byte{byte(i)}, PayloadTypeRaw, key, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	// Replace the last two blocks with a longer branch attached at index 3.
	attachPrior, err := chain.BlockAt(2)
	require.NoError(t, err)
	branch := buildBranch(t, chain, attachPrior, key, now.Add(10*time.Second), 3)

	require.NoError(t, chain.Reorganize(branch))
	assert.Equal(t, 6, chain.Len())
	require.NoError(t, chain.Verify())
	tip := chain.Tip()
	assert.EqualValues(t, 5, tip.Header.Index)
	assert.True(t, tip.Equal(branch[2]))
}

func TestChain_Reorganize_Rejections(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	limits.MaxForkDepth = 2

	chain := newTestChain(t, ChainConfig{Limits: limits})
	key := testIdentity(t, chain.Suite())
	now := time.Now()

	_, err := chain.Genesis([]byte("genesis"), PayloadTypeRaw, key, now)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := chain.AppendNew([]byte{byte(i)}, PayloadTypeRaw, key, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	lenBefore := chain.Len()
	tipBefore := chain.Tip()

	// Empty branch.
	assert.ErrorIs(t, chain.Reorganize(nil), ErrMalformedBlock)

	// Diverging deeper than MaxForkDepth.
	deepPrior, err := chain.BlockAt(1)
	require.NoError(t, err)
	deep := buildBranch(t, chain, deepPrior, key, now.Add(10*time.Second), 6)
	assert.ErrorIs(t, chain.Reorganize(deep), ErrForkTooDeep)

	// A branch that does not outgrow the replaced suffix.
	shortPrior, err := chain.BlockAt(3)
	require.NoError(t, err)
	short := buildBranch(t, chain, shortPrior, key, now.Add(10*time.Second), 2)
	assert.ErrorIs(t, chain.Reorganize(short), ErrInvalidIndex)

	// A branch starting beyond the tip.
	beyond := buildBranch(t, chain, tipBefore, key, now.Add(10*time.Second), 2)
	assert.ErrorIs(t, chain.Reorganize(beyond), ErrInvalidIndex)

	// A branch with a bad block is rejected as a whole.
	badPrior, err := chain.BlockAt(3)
	require.NoError(t, err)
	bad := buildBranch(t, chain, badPrior, key, now.Add(10*time.Second), 3)
	bad[1].Payload = []byte("tampered")
	err = chain.Reorganize(bad)
	assert.ErrorIs(t, err, ErrPayloadMismatch)

	// Every failed attempt left the chain untouched.
	assert.Equal(t, lenBefore, chain.Len())
	assert.True(t, chain.Tip().Equal(tipBefore))
	require.NoError(t, chain.Verify())
}

func TestChain_SuiteSelection(t *testing.T) {
	t.Parallel()

	registry := NewAlgorithmRegistry()
	suite, err := registry.ResolveSuite(SuiteEdSHA3)
	require.NoError(t, err)

	chain := newTestChain(t, ChainConfig{Suite: suite, Algorithms: registry})
	assert.Equal(t, SHA3_256, chain.Suite().Hash())

	key := testIdentity(t, chain.Suite())
	genesis, err := chain.Genesis([]byte("genesis"), PayloadTypeRaw, key, time.Now())
	require.NoError(t, err)

	// Chain hashes use the suite's hash over the canonical bytes.
	second, err := chain.AppendNew([]byte("two"), PayloadTypeRaw, key, time.Now())
	require.NoError(t, err)
	assert.Equal(t, genesis.Hash(SHA3_256), second.Header.PreviousHash)

	// A chain verifying with a different suite rejects the blocks.
	otherSuite, err := registry.ResolveSuite(SuiteDefault)
	require.NoError(t, err)
	other := newTestChain(t, ChainConfig{Suite: otherSuite, Algorithms: registry})
	assert.Error(t, other.Append(genesis))
}

func TestChain_InvalidLimits(t *testing.T) {
	t.Parallel()

	_, err := NewChain(ChainConfig{Limits: Limits{MaxPayloadSize: -1, MaxPreferenceAge: 600}})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
