package olocus

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Protocol versions: major in the high byte, minor in the low byte. Peers
// must match on the major version; the lower of the two compatible versions
// is negotiated.
const (
	ProtocolVersion1 uint16 = 0x0100

	// ProtocolVersionCurrent is the version this kernel speaks.
	ProtocolVersionCurrent = ProtocolVersion1
)

// SessionState is the negotiation state machine position.
type SessionState uint8

const (
	StateInit SessionState = iota
	StatePreferencesExchanged
	StateCommitted
	StateFinalized
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePreferencesExchanged:
		return "preferences-exchanged"
	case StateCommitted:
		return "committed"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// PreferenceList is one side's negotiation input: an ordered suite
// preference, the offered extensions, and a freshness timestamp.
type PreferenceList struct {
	ProtocolVersion uint16   `cbor:"v"`
	Suites          []uint8  `cbor:"s"`
	Extensions      []string `cbor:"e,omitempty"`
	Timestamp       int64    `cbor:"ts"`
	Nonce           []byte   `cbor:"n"`
}

// SignedPreferences carries a canonical CBOR preference list signed by the
// sender's long-term identity key. A tampered list fails the signature
// check before any of its content is used.
type SignedPreferences struct {
	Preferences []byte `cbor:"p"`
	KeyType     string `cbor:"kt"`
	PublicKey   []byte `cbor:"pk"`
	Signature   []byte `cbor:"sig"`
}

// preferenceSigningSum domain-separates preference signatures from block
// signatures made with the same identity key.
func preferenceSigningSum(preferences []byte) []byte {
	vh := NewValueHasher(BLAKE3)
	vh.AddString("olocus negotiation preferences")
	vh.Add(preferences)
	return vh.Sum()
}

// NewSignedPreferences encodes and signs a preference list.
func NewSignedPreferences(list PreferenceList, identity KeyPair) (*SignedPreferences, error) {
	if !identity.HasPrivate() {
		return nil, ErrNoPrivateKey
	}
	encoded, err := cborEncMode.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	sig, err := identity.Sign(preferenceSigningSum(encoded))
	if err != nil {
		return nil, err
	}
	return &SignedPreferences{
		Preferences: encoded,
		KeyType:     string(identity.Type()),
		PublicKey:   identity.PublicKeyData(),
		Signature:   sig,
	}, nil
}

// Open verifies the signature and decodes the preference list.
func (sp *SignedPreferences) Open() (PreferenceList, error) {
	kpType := KeyPairType(sp.KeyType)
	verifier, err := kpType.PublicKeyPair(sp.PublicKey)
	if err != nil {
		return PreferenceList{}, err
	}
	if err := verifier.Verify(preferenceSigningSum(sp.Preferences), sp.Signature); err != nil {
		return PreferenceList{}, err
	}

	var list PreferenceList
	if err := cborDecMode.Unmarshal(sp.Preferences, &list); err != nil {
		return PreferenceList{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return list, nil
}

// OfferCommitment commits to the full offered suite set before either side
// reveals its final choice.
type OfferCommitment struct {
	Seq        uint64 `cbor:"q"`
	Commitment []byte `cbor:"c"`
}

// OfferReveal opens the commitment and states the final choice.
type OfferReveal struct {
	Seq        uint64   `cbor:"q"`
	Suites     []uint8  `cbor:"s"`
	Extensions []string `cbor:"e,omitempty"`
	Nonce      []byte   `cbor:"n"`
	Selected   uint8    `cbor:"sel"`
}

// KeyExchangeMsg carries one side's ephemeral key exchange message.
type KeyExchangeMsg struct {
	Seq      uint64 `cbor:"q"`
	Exchange []byte `cbor:"x"`
}

// ConfirmMsg authenticates the negotiation transcript with keys derived
// from the exchanged secret.
type ConfirmMsg struct {
	Seq uint64 `cbor:"q"`
	Tag []byte `cbor:"t"`
}

// NegotiationResult is the immutable outcome of a finalized session.
type NegotiationResult struct {
	SessionID       uuid.UUID
	Suite           CryptoSuite
	ProtocolVersion uint16
	Extensions      []string
	TranscriptHash  []byte
}

// DefaultSuitePreferences is the kernel's suite preference order, strongest
// first within equal capability.
func DefaultSuitePreferences() []uint8 {
	return []uint8{
		SuiteEdSHA3, SuiteDefault, SuiteEdSHA2, SuiteEdBLAKE2,
		SuiteEdSignOnly, SuiteP256, SuiteP256SignOnly,
	}
}

// SessionConfig configures one negotiation session.
type SessionConfig struct {
	// Identity is the local long-term signing key. Required.
	Identity KeyPair

	// Initiator marks the connection initiator, whose preference order is
	// authoritative for suite selection.
	Initiator bool

	// Registry defaults to a fresh built-in registry.
	Registry *AlgorithmRegistry

	// Limits defaults to DefaultLimits.
	Limits Limits

	// SuitePreferences defaults to DefaultSuitePreferences.
	SuitePreferences []uint8

	// Extensions offered to the peer, as "name/version" strings.
	Extensions []string

	// Forbidden algorithm ids; any suite containing one is never selected,
	// checked before suite selection runs.
	Forbidden []AlgorithmID

	// Mandatory suites that must survive into the negotiated intersection.
	Mandatory []uint8

	// Logger defaults to a no-op logger. Downgrade evidence is logged at
	// warn level as a security event.
	Logger *zap.Logger
}

// Session runs the downgrade-resistant negotiation state machine for one
// peer connection. The session performs no I/O: the transport carries the
// messages the session produces and consumes, and signals abandonment via
// Cancel.
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	cfg       SessionConfig
	registry  *AlgorithmRegistry
	limits    Limits
	log       *zap.Logger
	forbidden map[AlgorithmID]struct{}

	state   SessionState
	failure error

	seq *StrictSequenceChecker

	localList    PreferenceList
	localSigned  *SignedPreferences
	remoteList   PreferenceList
	remoteSigned *SignedPreferences
	offerSent    bool
	offerRecv    bool

	commitNonce  []byte
	localCommit  []byte
	remoteCommit []byte
	commitSent   bool
	commitRecv   bool

	revealSent bool
	revealRecv bool

	confirmSent bool
	confirmRecv bool

	version    uint16
	selected   CryptoSuite
	extensions []string
	transcript []byte

	keyExchange KeyExchange
	keyMaker    KeyMaker
	mac         MsgAuthCodeHandler
}

// NewSession starts a negotiation session in the Init state.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Identity == nil || !cfg.Identity.HasPrivate() {
		return nil, ErrNoPrivateKey
	}
	if cfg.Registry == nil {
		cfg.Registry = NewAlgorithmRegistry()
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
	if len(cfg.SuitePreferences) == 0 {
		cfg.SuitePreferences = DefaultSuitePreferences()
	}

	forbidden := make(map[AlgorithmID]struct{}, len(cfg.Forbidden))
	for _, id := range cfg.Forbidden {
		forbidden[id] = struct{}{}
	}

	s := &Session{
		id:        uuid.New(),
		cfg:       cfg,
		registry:  cfg.Registry,
		limits:    cfg.Limits,
		log:       cfg.Logger,
		forbidden: forbidden,
		state:     StateInit,
		seq:       NewStrictSequenceChecker(),
		localList: PreferenceList{
			ProtocolVersion: ProtocolVersionCurrent,
			Suites:          slices.Clone(cfg.SuitePreferences),
			Extensions:      slices.Clone(cfg.Extensions),
			Timestamp:       time.Now().Unix(),
			Nonce:           NewSecret(32),
		},
	}
	return s, nil
}

// ID returns the session identifier used in log events.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current state machine position.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Cancel moves the session to Failed. The transport calls this when its
// deadline expires or the connection is abandoned, so sessions never leak
// in a non-terminal state.
func (s *Session) Cancel(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinalized || s.state == StateFailed {
		return
	}
	if cause == nil {
		cause = fmt.Errorf("%w: cancelled by transport", ErrInvalidSessionState)
	}
	s.failTerminal(cause)
}

// failTerminal must be called with the lock held.
func (s *Session) failTerminal(err error) error {
	s.state = StateFailed
	s.failure = err
	if errors.Is(err, ErrDowngradeAttempt) {
		// Possible active attack, not a soft failure.
		s.log.Warn("security event: negotiation downgrade attempt",
			zap.String("session", s.id.String()),
			zap.Error(err),
		)
	} else {
		s.log.Debug("negotiation failed",
			zap.String("session", s.id.String()),
			zap.Error(err),
		)
	}
	return err
}

func (s *Session) requireState(want SessionState) error {
	if s.state != want {
		return fmt.Errorf("%w: in %s, need %s", ErrInvalidSessionState, s.state, want)
	}
	return nil
}

func (s *Session) localRole() string {
	if s.cfg.Initiator {
		return "initiator"
	}
	return "responder"
}

func (s *Session) remoteRole() string {
	if s.cfg.Initiator {
		return "responder"
	}
	return "initiator"
}

// Offer returns the local signed preference list. Valid once in Init.
func (s *Session) Offer() (*SignedPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateInit); err != nil {
		return nil, err
	}
	if s.offerSent {
		return nil, fmt.Errorf("%w: offer already sent", ErrInvalidSessionState)
	}

	signed, err := NewSignedPreferences(s.localList, s.cfg.Identity)
	if err != nil {
		return nil, s.failTerminal(err)
	}
	s.localSigned = signed
	s.offerSent = true
	s.advanceToExchanged()
	return signed, nil
}

// ReceiveOffer verifies and ingests the peer's signed preference list,
// running the version floor, signature, and freshness protections.
func (s *Session) ReceiveOffer(sp *SignedPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateInit); err != nil {
		return err
	}
	if s.offerRecv {
		return fmt.Errorf("%w: offer already received", ErrInvalidSessionState)
	}

	// Signature first: a tampered list is rejected before any field is used.
	list, err := sp.Open()
	if err != nil {
		return s.failTerminal(err)
	}

	// Protocol version floor, before any algorithm comparison.
	if list.ProtocolVersion>>8 != ProtocolVersionCurrent>>8 {
		return s.failTerminal(fmt.Errorf("%w: remote %#04x, local %#04x",
			ErrProtocolVersionMismatch, list.ProtocolVersion, ProtocolVersionCurrent))
	}
	if list.ProtocolVersion < s.limits.MinProtocolVersion {
		return s.failTerminal(fmt.Errorf("%w: remote %#04x below floor %#04x",
			ErrProtocolVersionTooOld, list.ProtocolVersion, s.limits.MinProtocolVersion))
	}

	// Freshness window.
	now := time.Now().Unix()
	if list.Timestamp < now-s.limits.MaxPreferenceAge {
		return s.failTerminal(fmt.Errorf("%w: %ds old", ErrPreferencesTooOld, now-list.Timestamp))
	}
	if list.Timestamp > now+s.limits.MaxFutureDrift {
		return s.failTerminal(fmt.Errorf("%w: %ds ahead", ErrPreferencesFromFuture, list.Timestamp-now))
	}

	s.remoteSigned = sp
	s.remoteList = list
	s.offerRecv = true
	s.advanceToExchanged()
	return nil
}

// advanceToExchanged must be called with the lock held.
func (s *Session) advanceToExchanged() {
	if s.offerSent && s.offerRecv {
		s.state = StatePreferencesExchanged
		if s.remoteList.ProtocolVersion < ProtocolVersionCurrent {
			s.version = s.remoteList.ProtocolVersion
		} else {
			s.version = ProtocolVersionCurrent
		}
	}
}

// offerCommitmentSum binds a role's offered suite set, extensions, and
// nonce into a commitment.
func offerCommitmentSum(role string, suites []uint8, extensions []string, nonce []byte) []byte {
	vh := NewValueHasher(BLAKE3)
	vh.AddString("olocus offer commitment")
	vh.AddString(role)
	vh.Add(suites)
	for _, ext := range extensions {
		vh.AddString(ext)
	}
	vh.Add(nonce)
	return vh.Sum()
}

// Commit commits to the full local offer set before any choice is revealed.
func (s *Session) Commit() (*OfferCommitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StatePreferencesExchanged); err != nil {
		return nil, err
	}
	if s.commitSent {
		return nil, fmt.Errorf("%w: commitment already sent", ErrInvalidSessionState)
	}

	s.commitNonce = NewSecret(32)
	s.localCommit = offerCommitmentSum(s.localRole(), s.localList.Suites, s.localList.Extensions, s.commitNonce)
	s.commitSent = true
	s.advanceToCommitted()
	return &OfferCommitment{
		Seq:        s.seq.NextOutSequence(),
		Commitment: s.localCommit,
	}, nil
}

// ReceiveCommit stores the peer's offer commitment.
func (s *Session) ReceiveCommit(c *OfferCommitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StatePreferencesExchanged); err != nil {
		return err
	}
	if s.commitRecv {
		return fmt.Errorf("%w: commitment already received", ErrInvalidSessionState)
	}
	if !s.seq.CheckInSequence(c.Seq) {
		return s.failTerminal(fmt.Errorf("%w: commitment seq %d", ErrReplayedMessage, c.Seq))
	}
	if len(c.Commitment) == 0 {
		return s.failTerminal(fmt.Errorf("%w: empty commitment", ErrInvalidFormat))
	}

	s.remoteCommit = slices.Clone(c.Commitment)
	s.commitRecv = true
	s.advanceToCommitted()
	return nil
}

// advanceToCommitted must be called with the lock held.
func (s *Session) advanceToCommitted() {
	if s.commitSent && s.commitRecv {
		s.state = StateCommitted
	}
}

// Reveal opens the local commitment and states the final choice, computed
// deterministically from the initiator's preference order.
func (s *Session) Reveal() (*OfferReveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateCommitted); err != nil {
		return nil, err
	}
	if s.revealSent {
		return nil, fmt.Errorf("%w: reveal already sent", ErrInvalidSessionState)
	}

	selected, err := s.selectSuite()
	if err != nil {
		return nil, s.failTerminal(err)
	}

	s.selected = selected
	s.revealSent = true
	s.advanceAfterReveal()
	return &OfferReveal{
		Seq:        s.seq.NextOutSequence(),
		Suites:     slices.Clone(s.localList.Suites),
		Extensions: slices.Clone(s.localList.Extensions),
		Nonce:      s.commitNonce,
		Selected:   selected.ID(),
	}, nil
}

// ReceiveReveal verifies the peer's reveal against its earlier commitment
// and signed offer, then checks the stated selection against the
// deterministic result. Any inconsistency is downgrade evidence.
func (s *Session) ReceiveReveal(r *OfferReveal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateCommitted); err != nil {
		return err
	}
	if !s.seq.CheckInSequence(r.Seq) {
		return s.failTerminal(fmt.Errorf("%w: reveal seq %d", ErrReplayedMessage, r.Seq))
	}

	// The revealed set must open the commitment made before the choice.
	expected := offerCommitmentSum(s.remoteRole(), r.Suites, r.Extensions, r.Nonce)
	if !slices.Equal(expected, s.remoteCommit) {
		return s.failTerminal(fmt.Errorf("%w: revealed offer set does not open commitment", ErrDowngradeAttempt))
	}

	// The revealed set must equal the signed offer set: a stripped offer
	// list is a downgrade attempt even if consistently committed.
	if !slices.Equal(r.Suites, s.remoteList.Suites) || !slices.Equal(r.Extensions, s.remoteList.Extensions) {
		return s.failTerminal(fmt.Errorf("%w: revealed offer set differs from signed preferences", ErrDowngradeAttempt))
	}

	selected, err := s.selectSuite()
	if err != nil {
		return s.failTerminal(err)
	}
	if r.Selected != selected.ID() {
		// The peer deviated from the initiator's authoritative order.
		// Log the fault even when the stated suite is nominally valid,
		// then treat the deviation as downgrade evidence.
		s.log.Warn("security event: peer deviated from initiator suite order",
			zap.String("session", s.id.String()),
			zap.Uint8("stated", r.Selected),
			zap.Uint8("expected", selected.ID()),
		)
		return s.failTerminal(fmt.Errorf("%w: peer selected %#02x, initiator order requires %#02x",
			ErrDowngradeAttempt, r.Selected, selected.ID()))
	}

	s.selected = selected
	s.extensions = intersectExtensions(s.initiatorList().Extensions, s.responderList().Extensions)
	s.transcript = s.transcriptSum()
	s.revealRecv = true
	s.advanceAfterReveal()
	return nil
}

// advanceAfterReveal must be called with the lock held. Signing-only suites
// have no confirm round, so they finalize once reveals went both ways. A
// reveal received before the local one is produced leaves the session in
// Committed, so the transport may deliver the two directions in any order.
func (s *Session) advanceAfterReveal() {
	if !s.revealSent || !s.revealRecv {
		return
	}
	if _, hasKX := s.selected.KeyExchangeAlgorithm(); !hasKX {
		s.state = StateFinalized
	}
}

func (s *Session) initiatorList() PreferenceList {
	if s.cfg.Initiator {
		return s.localList
	}
	return s.remoteList
}

func (s *Session) responderList() PreferenceList {
	if s.cfg.Initiator {
		return s.remoteList
	}
	return s.localList
}

// selectSuite runs the deterministic suite selection both sides compute.
// The forbidden list filters before selection; the initiator's order breaks
// every tie. Must be called with the lock held.
func (s *Session) selectSuite() (CryptoSuite, error) {
	initiatorOrder := s.initiatorList().Suites
	responderSet := make(map[uint8]struct{}, len(s.responderList().Suites))
	for _, id := range s.responderList().Suites {
		responderSet[id] = struct{}{}
	}

	var candidates []CryptoSuite
	for _, id := range initiatorOrder {
		if _, ok := responderSet[id]; !ok {
			continue
		}
		suite, err := s.registry.ResolveSuite(id)
		if err != nil {
			continue
		}
		// Forbidden and deprecated algorithms are filtered before
		// selection ever considers the suite.
		if s.suiteForbidden(suite) || !suite.Selectable() {
			continue
		}
		candidates = append(candidates, suite)
	}

	for _, mandatory := range s.cfg.Mandatory {
		if !slices.ContainsFunc(candidates, func(c CryptoSuite) bool { return c.ID() == mandatory }) {
			return CryptoSuite{}, fmt.Errorf("%w: suite %#02x not in negotiated intersection",
				ErrRequiredAlgorithmMissing, mandatory)
		}
	}

	if len(candidates) == 0 {
		return CryptoSuite{}, ErrNoCommonAlgorithm
	}

	var viable []CryptoSuite
	for _, c := range candidates {
		if c.SecurityLevel() >= s.limits.MinSecurityLevel {
			viable = append(viable, c)
		}
	}
	if len(viable) == 0 {
		// Distinguish a local misconfiguration from a weak peer.
		if !s.offersViableSuite(s.localList.Suites) {
			return CryptoSuite{}, fmt.Errorf("%w: no local offer reaches security level %d",
				ErrInsufficientSecurityLevel, s.limits.MinSecurityLevel)
		}
		return CryptoSuite{}, fmt.Errorf("%w: preferred common suite is level %d, floor is %d",
			ErrPeerSecurityTooLow, candidates[0].SecurityLevel(), s.limits.MinSecurityLevel)
	}
	return viable[0], nil
}

// offersViableSuite reports whether an offer list contains any selectable
// suite meeting the local security floor.
func (s *Session) offersViableSuite(offers []uint8) bool {
	for _, id := range offers {
		suite, err := s.registry.ResolveSuite(id)
		if err != nil || s.suiteForbidden(suite) || !suite.Selectable() {
			continue
		}
		if suite.SecurityLevel() >= s.limits.MinSecurityLevel {
			return true
		}
	}
	return false
}

func (s *Session) suiteForbidden(suite CryptoSuite) bool {
	if _, ok := s.forbidden[suite.SignatureAlgorithm().ID]; ok {
		return true
	}
	if _, ok := s.forbidden[suite.HashAlgorithm().ID]; ok {
		return true
	}
	if kx, hasKX := suite.KeyExchangeAlgorithm(); hasKX {
		if _, ok := s.forbidden[kx.ID]; ok {
			return true
		}
	}
	return false
}

func intersectExtensions(initiator, responder []string) []string {
	responderSet := make(map[string]struct{}, len(responder))
	for _, ext := range responder {
		responderSet[ext] = struct{}{}
	}
	var common []string
	for _, ext := range initiator {
		if _, ok := responderSet[ext]; ok {
			common = append(common, ext)
		}
	}
	return common
}

// transcriptSum hashes the full negotiation transcript in fixed role order.
// Must be called with the lock held, after selection.
func (s *Session) transcriptSum() []byte {
	initiatorSigned, responderSigned := s.localSigned, s.remoteSigned
	initiatorCommit, responderCommit := s.localCommit, s.remoteCommit
	if !s.cfg.Initiator {
		initiatorSigned, responderSigned = responderSigned, initiatorSigned
		initiatorCommit, responderCommit = responderCommit, initiatorCommit
	}

	vh := NewValueHasher(s.selected.Hash())
	vh.AddString("olocus negotiation transcript")
	vh.Add([]byte{byte(s.version >> 8), byte(s.version)})
	vh.Add(initiatorSigned.Preferences)
	vh.Add(initiatorSigned.Signature)
	vh.Add(responderSigned.Preferences)
	vh.Add(responderSigned.Signature)
	vh.Add(initiatorCommit)
	vh.Add(responderCommit)
	vh.Add([]byte{s.selected.ID()})
	for _, ext := range s.extensions {
		vh.AddString(ext)
	}
	return vh.Sum()
}

// KeyExchangeMsg produces the local ephemeral exchange message for suites
// that negotiate a shared secret.
func (s *Session) KeyExchangeMsg() (*KeyExchangeMsg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateCommitted); err != nil {
		return nil, err
	}
	if s.transcript == nil {
		return nil, fmt.Errorf("%w: reveal not verified yet", ErrInvalidSessionState)
	}

	ket, hasKX := s.selected.KeyExchangeType()
	if !hasKX {
		return nil, fmt.Errorf("%w: suite %#02x is signing-only", ErrAlgorithmUnsupported, s.selected.ID())
	}
	if s.keyExchange == nil {
		kx, err := ket.New()
		if err != nil {
			return nil, s.failTerminal(err)
		}
		s.keyExchange = kx
	}

	msg, err := s.keyExchange.ExchangeMsg()
	if err != nil {
		return nil, s.failTerminal(err)
	}
	return &KeyExchangeMsg{
		Seq:      s.seq.NextOutSequence(),
		Exchange: msg,
	}, nil
}

// ReceiveKeyExchange completes the exchange and derives the confirm MAC
// keys. The derivation context includes the transcript hash, so keys from
// an inconsistent handshake never match (layer 7 binding).
func (s *Session) ReceiveKeyExchange(msg *KeyExchangeMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateCommitted); err != nil {
		return err
	}
	if s.keyExchange == nil {
		return fmt.Errorf("%w: local exchange message not produced yet", ErrInvalidSessionState)
	}
	if !s.seq.CheckInSequence(msg.Seq) {
		return s.failTerminal(fmt.Errorf("%w: key exchange seq %d", ErrReplayedMessage, msg.Seq))
	}

	keyMaker, err := s.keyExchange.MakeKeys(msg.Exchange, KeyMakerTypeBlake3)
	if err != nil {
		return s.failTerminal(err)
	}
	s.keyMaker = keyMaker

	context := "negotiation confirm/" + hex.EncodeToString(s.transcript)
	signKey, err := keyMaker.DeriveKey(context, s.localRole(), 32)
	if err != nil {
		return s.failTerminal(err)
	}
	verifyKey, err := keyMaker.DeriveKey(context, s.remoteRole(), 32)
	if err != nil {
		return s.failTerminal(err)
	}
	mac, err := MsgAuthCodeTypeHMACBlake3.New(signKey, verifyKey, NewStrictSequenceChecker())
	if err != nil {
		return s.failTerminal(err)
	}
	s.mac = mac
	return nil
}

// Confirm authenticates the transcript with the derived send key.
func (s *Session) Confirm() (*ConfirmMsg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateCommitted); err != nil {
		return nil, err
	}
	if s.mac == nil {
		return nil, fmt.Errorf("%w: key exchange not completed", ErrInvalidSessionState)
	}
	if s.confirmSent {
		return nil, fmt.Errorf("%w: confirmation already sent", ErrInvalidSessionState)
	}

	msg := &ConfirmMsg{
		Seq: s.seq.NextOutSequence(),
		Tag: s.mac.Sign(s.transcript),
	}
	s.confirmSent = true
	s.advanceToFinalized()
	return msg, nil
}

// ReceiveConfirm verifies the peer's transcript authentication and
// finalizes the session.
func (s *Session) ReceiveConfirm(msg *ConfirmMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateCommitted); err != nil {
		return err
	}
	if s.mac == nil {
		return fmt.Errorf("%w: key exchange not completed", ErrInvalidSessionState)
	}
	if !s.seq.CheckInSequence(msg.Seq) {
		return s.failTerminal(fmt.Errorf("%w: confirm seq %d", ErrReplayedMessage, msg.Seq))
	}

	if err := s.mac.Verify(s.transcript, msg.Tag); err != nil {
		return s.failTerminal(fmt.Errorf("%w: transcript confirmation failed: %w", ErrDowngradeAttempt, err))
	}
	s.confirmRecv = true
	s.advanceToFinalized()
	return nil
}

// advanceToFinalized must be called with the lock held. The session is only
// final once confirmations went both ways, whichever direction completed
// first.
func (s *Session) advanceToFinalized() {
	if s.confirmSent && s.confirmRecv {
		s.state = StateFinalized
	}
}

// DeriveSessionKey derives keying material bound to the negotiated
// transcript for upper layers, such as a Cipher key. Only available after
// a key exchange finalized the session.
func (s *Session) DeriveSessionKey(context, party string, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateFinalized); err != nil {
		return nil, err
	}
	if s.keyMaker == nil {
		return nil, fmt.Errorf("%w: signing-only suite has no shared secret", ErrAlgorithmUnsupported)
	}
	return s.keyMaker.DeriveKey("session/"+hex.EncodeToString(s.transcript)+"/"+context, party, length)
}

// Result returns the negotiated outcome of a finalized session.
func (s *Session) Result() (*NegotiationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireState(StateFinalized); err != nil {
		return nil, err
	}
	return &NegotiationResult{
		SessionID:       s.id,
		Suite:           s.selected,
		ProtocolVersion: s.version,
		Extensions:      slices.Clone(s.extensions),
		TranscriptHash:  slices.Clone(s.transcript),
	}, nil
}
