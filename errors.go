package olocus

import "errors"

// Structural errors. Rejected locally, never retried.
var (
	ErrMalformedBlock     = errors.New("malformed block")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrUnknownPayloadType = errors.New("unknown payload type")
)

// Chain integrity errors. Fatal to the offending block.
var (
	ErrBrokenChain      = errors.New("broken chain linkage")
	ErrInvalidIndex     = errors.New("invalid block index")
	ErrPayloadMismatch  = errors.New("payload hash mismatch")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrForkTooDeep      = errors.New("fork too deep")
)

// Temporal errors. Recoverable by clock correction and retry.
var (
	ErrTimestampRegression = errors.New("timestamp regression")
	ErrTimestampTooFuture  = errors.New("timestamp too far in the future")
	ErrTimestampTooOld     = errors.New("timestamp too old")
)

// Registry errors. Configuration class.
var (
	ErrAlgorithmConflict    = errors.New("algorithm identifier conflict")
	ErrAlgorithmOutOfRange  = errors.New("algorithm identifier outside category block")
	ErrAlgorithmUnsupported = errors.New("algorithm not supported")
	ErrLockPoisoned         = errors.New("registry poisoned by failed registration")
	ErrPayloadTypeConflict  = errors.New("payload type conflict")
	ErrSuiteConflict        = errors.New("suite identifier conflict")
	ErrUnknownAlgorithm     = errors.New("unknown algorithm")
)

// Negotiation errors. Fatal to the session.
var (
	ErrDowngradeAttempt          = errors.New("downgrade attempt detected")
	ErrInsufficientSecurityLevel = errors.New("insufficient security level")
	ErrInvalidSessionState       = errors.New("invalid negotiation session state")
	ErrNoCommonAlgorithm         = errors.New("no common algorithm")
	ErrPeerSecurityTooLow        = errors.New("peer security too low")
	ErrPreferencesFromFuture     = errors.New("preferences timestamped in the future")
	ErrPreferencesTooOld         = errors.New("preferences too old")
	ErrProtocolVersionMismatch   = errors.New("protocol major version mismatch")
	ErrProtocolVersionTooOld     = errors.New("protocol version too old")
	ErrReplayedMessage           = errors.New("replayed negotiation message")
	ErrRequiredAlgorithmMissing  = errors.New("required algorithm missing")
)

// Cryptographic primitive errors.
var (
	ErrAuthCodeInvalid            = errors.New("invalid message authentication code")
	ErrCannotReuse                = errors.New("cannot reuse")
	ErrChecksumMismatch           = errors.New("checksum mismatch")
	ErrCompressionMismatch        = errors.New("compression format mismatch")
	ErrInvalidFormat              = errors.New("invalid format")
	ErrInvalidKeyPairType         = errors.New("invalid key pair type")
	ErrNoPrivateKey               = errors.New("no private key available")
	ErrNoPublicKey                = errors.New("no public key available")
	ErrRequestedKeyLengthTooSmall = errors.New("request key length too small")
)
