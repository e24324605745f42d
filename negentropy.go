// Package negentropy implements a range-based set reconciliation
// engine: two parties, each holding a sorted set of timestamped items,
// exchange a small number of messages summarizing their sets as
// fingerprints over successively narrower ranges until each side
// knows exactly which items the other is missing.
package negentropy

import (
	"errors"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/erigontech/negentropy/encoding"
	"github.com/erigontech/negentropy/storage"
	"github.com/erigontech/negentropy/types"
)

// ProtocolVersion is the single byte every message begins with.
const ProtocolVersion = 0x61

// protocolVersionWindowLow and protocolVersionWindowHigh bound the
// range of version bytes a message's leading byte may validly hold.
// A byte outside this window means the peer isn't speaking this
// protocol at all (not just a different version of it), and is always
// fatal regardless of role.
const (
	protocolVersionWindowLow  = 0x60
	protocolVersionWindowHigh = 0x6F
)

// MinFrameSizeLimit is the smallest FrameSizeLimit New will accept.
// Below this a single range's encoding might not fit in a frame at
// all, defeating the point of the limit.
const MinFrameSizeLimit = 4096

var (
	// ErrStorageNotBound is returned by New when given a nil Storage.
	ErrStorageNotBound = errors.New("negentropy: storage not bound")
	// ErrAlreadyInitiated is returned by Initiate if it has already
	// been called on this Engine.
	ErrAlreadyInitiated = errors.New("negentropy: already initiated")
	// ErrInitiatorRoleViolation reports initiator-role misuse.
	// Reconcile checks for it only on an Engine whose Initiate has
	// run, and Initiate always marks the Engine initiated, so no call
	// path returns it; an Engine that never called Initiate reconciles
	// as the responder.
	ErrInitiatorRoleViolation = errors.New("negentropy: Reconcile called before Initiate")
	// ErrResponderRoleViolation is returned when Initiate is called
	// on an Engine that has already acted as a responder.
	ErrResponderRoleViolation = errors.New("negentropy: Initiate called after acting as responder")
	// ErrFrameSizeLimitTooSmall is returned by New for an out-of-range
	// non-zero FrameSizeLimit.
	ErrFrameSizeLimitTooSmall = errors.New("negentropy: frame size limit too small")
	// ErrInvalidProtocolVersion is returned when a message's leading
	// byte is missing or falls outside the negentropy version window
	// ([0x60, 0x6F]): the peer isn't speaking this protocol at all.
	// Fatal regardless of role.
	ErrInvalidProtocolVersion = errors.New("negentropy: invalid protocol version")
	// ErrUnsupportedProtocolVersion is returned to an initiator whose
	// peer's version byte falls inside the version window but names a
	// revision other than ProtocolVersion. There is no downgrade path:
	// a responder seeing the same mismatch instead recovers by
	// echoing its own version byte with no ranges (see Reconcile).
	ErrUnsupportedProtocolVersion = errors.New("negentropy: unsupported protocol version")
	// ErrUnexpectedMode is returned when a range's mode byte is not
	// one this engine recognizes.
	ErrUnexpectedMode = errors.New("negentropy: unexpected mode byte")
)

// Options configures a new Engine.
type Options struct {
	// FrameSizeLimit caps the size, in bytes, of any message this
	// engine produces. Zero means unbounded. A non-zero value below
	// MinFrameSizeLimit is rejected by New.
	FrameSizeLimit uint64
	// Logger receives a Debug record each time a message is truncated
	// at the frame size limit; the engine logs nothing else. A nil
	// Logger falls back to log.Root().
	Logger log.Logger
}

// Engine drives one side of a range-based set reconciliation. It is
// not safe for concurrent use: callers must serialize Initiate and
// Reconcile calls on a given Engine, matching the single in-flight
// exchange the protocol assumes.
type Engine struct {
	storage        storage.Storage
	frameSizeLimit uint64
	logger         log.Logger

	initiated        bool
	isInitiator      bool
	actedAsResponder bool

	lastTimestampIn  uint64
	lastTimestampOut uint64
}

// New returns an Engine reconciling against s, which must already be
// sealed/populated: the engine never mutates storage itself.
func New(s storage.Storage, opts Options) (*Engine, error) {
	if s == nil {
		return nil, ErrStorageNotBound
	}
	if opts.FrameSizeLimit != 0 && opts.FrameSizeLimit < MinFrameSizeLimit {
		return nil, ErrFrameSizeLimitTooSmall
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Root()
	}
	return &Engine{storage: s, frameSizeLimit: opts.FrameSizeLimit, logger: logger}, nil
}

// Initiate starts a reconciliation as the initiating side and returns
// the first query message to send to the peer. It may be called at
// most once per Engine, and never after this Engine has already
// processed an incoming query as a responder.
func (e *Engine) Initiate() ([]byte, error) {
	if e.initiated {
		return nil, ErrAlreadyInitiated
	}
	if e.actedAsResponder {
		return nil, ErrResponderRoleViolation
	}
	e.isInitiator = true
	e.initiated = true

	w := encoding.NewWriter()
	w.PutByte(ProtocolVersion)
	e.lastTimestampOut = 0
	if err := e.splitRange(w, 0, e.storage.Size(), types.ZeroBound(), types.InfiniteBound()); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
