package olocus

import (
	"fmt"
	"slices"
	"sync"
)

type algorithmKey struct {
	category AlgorithmCategory
	id       AlgorithmID
}

// AlgorithmRegistry is the process-wide catalog of algorithm identifiers and
// published crypto suites. It is append/mark-only: once an id is bound, its
// meaning is frozen forever; only its status may transition.
//
// Registration is rare (extension load time) and excludes all other access;
// lookups run concurrently. A registration that panics leaves the registry
// poisoned: every subsequent access reports ErrLockPoisoned until Reset is
// called.
type AlgorithmRegistry struct {
	mu       sync.RWMutex
	poisoned bool

	algorithms map[algorithmKey]AlgorithmInfo
	suites     map[uint8]CryptoSuite
}

// NewAlgorithmRegistry returns a registry preloaded with the built-in
// algorithm catalog and the published suites 0x00-0x06.
func NewAlgorithmRegistry() *AlgorithmRegistry {
	r := &AlgorithmRegistry{
		algorithms: make(map[algorithmKey]AlgorithmInfo),
		suites:     make(map[uint8]CryptoSuite),
	}
	for _, info := range builtinAlgorithms() {
		r.algorithms[algorithmKey{info.Category, info.ID}] = info
	}
	for _, spec := range builtinSuites() {
		suite, err := r.buildSuite(spec)
		if err != nil {
			// Built-in definitions are static; a failure here is a
			// programming error.
			panic(err)
		}
		r.suites[spec.id] = suite
	}
	return r
}

func (r *AlgorithmRegistry) buildSuite(spec builtinSuiteSpec) (CryptoSuite, error) {
	signature, ok := r.algorithms[algorithmKey{CategorySignature, spec.signature}]
	if !ok {
		return CryptoSuite{}, fmt.Errorf("%w: signature %#04x", ErrUnknownAlgorithm, uint16(spec.signature))
	}
	hash, ok := r.algorithms[algorithmKey{CategoryHash, spec.hash}]
	if !ok {
		return CryptoSuite{}, fmt.Errorf("%w: hash %#04x", ErrUnknownAlgorithm, uint16(spec.hash))
	}
	var keyExchange *AlgorithmInfo
	if spec.keyExchange != 0 {
		kx, ok := r.algorithms[algorithmKey{CategoryKeyExchange, spec.keyExchange}]
		if !ok {
			return CryptoSuite{}, fmt.Errorf("%w: key exchange %#04x", ErrUnknownAlgorithm, uint16(spec.keyExchange))
		}
		keyExchange = &kx
	}
	return NewCryptoSuite(spec.id, spec.name, signature, hash, keyExchange)
}

// write runs a mutation under the exclusive lock with poison handling.
func (r *AlgorithmRegistry) write(fn func() error) (err error) {
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

// Register binds an algorithm identifier. Binding the same (category, id)
// pair to a different algorithm is a conflict; re-registering an identical
// entry is a no-op.
func (r *AlgorithmRegistry) Register(info AlgorithmInfo) error {
	if !info.Category.Contains(info.ID) {
		lo, hi := info.Category.IDRange()
		return fmt.Errorf("%w: %#04x not in %s block %#04x-%#04x",
			ErrAlgorithmOutOfRange, uint16(info.ID), info.Category, uint16(lo), uint16(hi))
	}
	if info.Name == "" {
		return fmt.Errorf("%w: empty algorithm name", ErrInvalidFormat)
	}

	return r.write(func() error {
		key := algorithmKey{info.Category, info.ID}
		existing, ok := r.algorithms[key]
		if ok {
			if existing.Name != info.Name {
				return fmt.Errorf("%w: %s already bound to %q", ErrAlgorithmConflict, existing, existing.Name)
			}
			return nil
		}
		r.algorithms[key] = info
		return nil
	})
}

// Lookup resolves an algorithm entry.
func (r *AlgorithmRegistry) Lookup(category AlgorithmCategory, id AlgorithmID) (AlgorithmInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.poisoned {
		return AlgorithmInfo{}, ErrLockPoisoned
	}

	info, ok := r.algorithms[algorithmKey{category, id}]
	if !ok {
		return AlgorithmInfo{}, fmt.Errorf("%w: %s %#04x", ErrUnknownAlgorithm, category, uint16(id))
	}
	return info, nil
}

// Deprecate marks an algorithm as deprecated from the given protocol
// version. The binding itself stays, so historical data remains
// interpretable, but negotiation no longer selects it. Deprecation is not
// reversible.
func (r *AlgorithmRegistry) Deprecate(category AlgorithmCategory, id AlgorithmID, effectiveVersion uint16) error {
	return r.write(func() error {
		key := algorithmKey{category, id}
		info, ok := r.algorithms[key]
		if !ok {
			return fmt.Errorf("%w: %s %#04x", ErrUnknownAlgorithm, category, uint16(id))
		}
		info.Status = StatusDeprecated
		info.DeprecatedIn = effectiveVersion
		r.algorithms[key] = info

		// Suites referencing the algorithm lose selectability through the
		// component status, so refresh their copies.
		for suiteID, suite := range r.suites {
			refreshed := suite
			switch category {
			case CategorySignature:
				if suite.signature.ID == id {
					refreshed.signature = info
				}
			case CategoryHash:
				if suite.hash.ID == id {
					refreshed.hash = info
				}
			case CategoryKeyExchange:
				if suite.hasKX && suite.keyExchange.ID == id {
					refreshed.keyExchange = info
				}
			}
			r.suites[suiteID] = refreshed
		}
		return nil
	})
}

// RegisterSuite publishes a suite. A suite id, once allocated, must never be
// reassigned to different algorithms.
func (r *AlgorithmRegistry) RegisterSuite(suite CryptoSuite) error {
	return r.write(func() error {
		existing, ok := r.suites[suite.id]
		if ok {
			if existing.signature.ID != suite.signature.ID ||
				existing.hash.ID != suite.hash.ID ||
				existing.hasKX != suite.hasKX ||
				(suite.hasKX && existing.keyExchange.ID != suite.keyExchange.ID) {
				return fmt.Errorf("%w: suite %#02x already allocated as %q", ErrSuiteConflict, suite.id, existing.name)
			}
			return nil
		}
		r.suites[suite.id] = suite
		return nil
	})
}

// ResolveSuite resolves a suite id to its published suite.
func (r *AlgorithmRegistry) ResolveSuite(suiteID uint8) (CryptoSuite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.poisoned {
		return CryptoSuite{}, ErrLockPoisoned
	}

	suite, ok := r.suites[suiteID]
	if !ok {
		return CryptoSuite{}, fmt.Errorf("%w: suite %#02x", ErrAlgorithmUnsupported, suiteID)
	}
	return suite, nil
}

// Suites returns the published suite ids in ascending order.
func (r *AlgorithmRegistry) Suites() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.poisoned {
		return nil
	}

	ids := make([]uint8, 0, len(r.suites))
	for id := range r.suites {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Poisoned reports whether the registry was left inconsistent by a failed
// registration.
func (r *AlgorithmRegistry) Poisoned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.poisoned
}

// Reset rebuilds the registry from the built-in catalog, clearing the
// poisoned state and dropping all extension registrations.
func (r *AlgorithmRegistry) Reset() {
	fresh := NewAlgorithmRegistry()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.algorithms = fresh.algorithms
	r.suites = fresh.suites
	r.poisoned = false
}
