package olocus

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Limits holds the configurable bounds the kernel enforces. Durations are
// plain seconds so limits can travel in config files and across peers
// without locale or unit ambiguity.
type Limits struct {
	// MaxPayloadSize bounds a block's payload in bytes.
	MaxPayloadSize int `yaml:"max_payload_size"`

	// MaxFutureDrift bounds how far ahead of local time a block timestamp
	// or preference timestamp may be, in seconds.
	MaxFutureDrift int64 `yaml:"max_future_drift_seconds"`

	// MaxBlockAge bounds how far behind local time a new block's timestamp
	// may be, in seconds. Zero disables the check.
	MaxBlockAge int64 `yaml:"max_block_age_seconds"`

	// MaxForkDepth bounds how far from the tip a reorganization may
	// diverge.
	MaxForkDepth int `yaml:"max_fork_depth"`

	// MinSecurityLevel is the weakest suite negotiation may select.
	MinSecurityLevel uint8 `yaml:"min_security_level"`

	// MinProtocolVersion is the oldest peer protocol version accepted.
	MinProtocolVersion uint16 `yaml:"min_protocol_version"`

	// MaxPreferenceAge bounds how old signed preference lists may be, in
	// seconds.
	MaxPreferenceAge int64 `yaml:"max_preference_age_seconds"`
}

// DefaultLimits returns the documented kernel defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPayloadSize:     16 * 1024 * 1024,
		MaxFutureDrift:     300,
		MaxBlockAge:        0,
		MaxForkDepth:       100,
		MinSecurityLevel:   1,
		MinProtocolVersion: ProtocolVersion1,
		MaxPreferenceAge:   600,
	}
}

// LoadLimits parses YAML limit overrides on top of the defaults.
func LoadLimits(data []byte) (Limits, error) {
	limits := DefaultLimits()
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return Limits{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if err := limits.Validate(); err != nil {
		return Limits{}, err
	}
	return limits, nil
}

// Validate rejects limit combinations the kernel cannot enforce.
func (l Limits) Validate() error {
	switch {
	case l.MaxPayloadSize <= 0:
		return fmt.Errorf("%w: max_payload_size must be positive", ErrInvalidFormat)
	case l.MaxFutureDrift < 0:
		return fmt.Errorf("%w: max_future_drift_seconds must not be negative", ErrInvalidFormat)
	case l.MaxBlockAge < 0:
		return fmt.Errorf("%w: max_block_age_seconds must not be negative", ErrInvalidFormat)
	case l.MaxForkDepth < 0:
		return fmt.Errorf("%w: max_fork_depth must not be negative", ErrInvalidFormat)
	case l.MaxPreferenceAge <= 0:
		return fmt.Errorf("%w: max_preference_age_seconds must be positive", ErrInvalidFormat)
	}
	return nil
}

// isZero reports whether the limits are entirely unset, in which case
// constructors substitute the defaults.
func (l Limits) isZero() bool {
	return l == Limits{}
}
