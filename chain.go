package olocus

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChainConfig configures a chain verifier instance.
type ChainConfig struct {
	// Suite used for hashing and signature verification. Defaults to the
	// default suite of the algorithm registry.
	Suite CryptoSuite

	// Algorithms defaults to a fresh built-in registry.
	Algorithms *AlgorithmRegistry

	// PayloadTypes defaults to a fresh registry holding only core types.
	PayloadTypes *PayloadTypeRegistry

	// Limits defaults to DefaultLimits.
	Limits Limits

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Chain is an ordered, hash-linked sequence of blocks owned by a single
// verifier instance. Blocks are stored by sequence number; a reorganization
// is an index-bound suffix replacement, never pointer surgery.
//
// Append and Reorganize are the only mutators and are serialized; reads may
// run concurrently with each other.
type Chain struct {
	mu sync.RWMutex

	suite        CryptoSuite
	algorithms   *AlgorithmRegistry
	payloadTypes *PayloadTypeRegistry
	limits       Limits
	log          *zap.Logger

	blocks []*Block
}

// NewChain builds an empty chain from the config.
func NewChain(cfg ChainConfig) (*Chain, error) {
	if cfg.Algorithms == nil {
		cfg.Algorithms = NewAlgorithmRegistry()
	}
	if cfg.PayloadTypes == nil {
		cfg.PayloadTypes = NewPayloadTypeRegistry()
	}
	if cfg.Limits.isZero() {
		cfg.Limits = DefaultLimits()
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Suite.Name() == "" {
		suite, err := cfg.Algorithms.ResolveSuite(SuiteDefault)
		if err != nil {
			return nil, err
		}
		cfg.Suite = suite
	}

	return &Chain{
		suite:        cfg.Suite,
		algorithms:   cfg.Algorithms,
		payloadTypes: cfg.PayloadTypes,
		limits:       cfg.Limits,
		log:          cfg.Logger,
	}, nil
}

// Suite returns the suite the chain verifies with.
func (c *Chain) Suite() CryptoSuite {
	return c.suite
}

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tip returns the newest block, or nil on an empty chain.
func (c *Chain) Tip() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// BlockAt returns the block with the given index.
func (c *Chain) BlockAt(index uint64) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: index %d beyond tip %d", ErrInvalidIndex, index, len(c.blocks))
	}
	return c.blocks[index], nil
}

// Genesis creates, signs, and appends the first block. The chain must be
// empty.
func (c *Chain) Genesis(payload []byte, pt PayloadType, signingKey KeyPair, timestamp time.Time) (*Block, error) {
	block, err := NewGenesisBlock(payload, pt, c.suite, signingKey, timestamp, c.limits)
	if err != nil {
		return nil, err
	}
	if err := c.Append(block); err != nil {
		return nil, err
	}
	return block, nil
}

// AppendNew creates, signs, and appends a successor of the current tip.
func (c *Chain) AppendNew(payload []byte, pt PayloadType, signingKey KeyPair, timestamp time.Time) (*Block, error) {
	tip := c.Tip()
	if tip == nil {
		return nil, fmt.Errorf("%w: empty chain, use Genesis", ErrInvalidIndex)
	}
	block, err := NewBlock(payload, pt, c.suite, signingKey, tip, timestamp, c.limits)
	if err != nil {
		return nil, err
	}
	if err := c.Append(block); err != nil {
		return nil, err
	}
	return block, nil
}

// VerifyBlock verifies a block against a prior block without mutating the
// chain. A nil prior verifies the block as genesis.
func (c *Chain) VerifyBlock(block, prior *Block) error {
	return verifyBlock(block, prior, c.suite, c.payloadTypes, c.limits)
}

// Append verifies the block against the current tip and extends the chain.
// A failed append leaves the chain exactly as before the call.
func (c *Chain) Append(block *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tip *Block
	if len(c.blocks) > 0 {
		tip = c.blocks[len(c.blocks)-1]
	}
	if err := verifyBlock(block, tip, c.suite, c.payloadTypes, c.limits); err != nil {
		return err
	}
	c.blocks = append(c.blocks, block)
	return nil
}

// Verify re-verifies the whole chain from genesis.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var prior *Block
	for _, block := range c.blocks {
		if err := verifyBlock(block, prior, c.suite, c.payloadTypes, c.limits); err != nil {
			return fmt.Errorf("block %d: %w", block.Header.Index, err)
		}
		prior = block
	}
	return nil
}

// Reorganize replaces a suffix of the chain with an alternative branch.
// The branch must attach within MaxForkDepth of the tip, must be strictly
// longer than the suffix it replaces, and every replacing block is
// re-verified. A failed reorganization leaves the chain unchanged.
func (c *Chain) Reorganize(branch []*Block) error {
	if len(branch) == 0 {
		return fmt.Errorf("%w: empty branch", ErrMalformedBlock)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	attach := branch[0].Header.Index
	if attach >= uint64(len(c.blocks)) {
		return fmt.Errorf("%w: branch starts at %d beyond tip %d",
			ErrInvalidIndex, attach, len(c.blocks))
	}

	depth := uint64(len(c.blocks)) - attach
	if depth > uint64(c.limits.MaxForkDepth) {
		return fmt.Errorf("%w: divergence depth %d exceeds limit %d",
			ErrForkTooDeep, depth, c.limits.MaxForkDepth)
	}
	if uint64(len(branch)) <= depth {
		return fmt.Errorf("%w: branch of %d blocks does not outgrow the %d replaced",
			ErrInvalidIndex, len(branch), depth)
	}

	var prior *Block
	if attach > 0 {
		prior = c.blocks[attach-1]
	}
	for _, block := range branch {
		if err := verifyBlock(block, prior, c.suite, c.payloadTypes, c.limits); err != nil {
			return fmt.Errorf("branch block %d: %w", block.Header.Index, err)
		}
		prior = block
	}

	c.log.Info("chain reorganized",
		zap.Uint64("attach_index", attach),
		zap.Uint64("replaced", depth),
		zap.Int("branch_len", len(branch)),
	)
	c.blocks = append(c.blocks[:attach], branch...)
	return nil
}
