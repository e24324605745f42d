package negentropy

import (
	"bytes"

	"github.com/erigontech/negentropy/accumulator"
	"github.com/erigontech/negentropy/encoding"
	"github.com/erigontech/negentropy/storage"
	"github.com/erigontech/negentropy/types"
)

// Reconcile advances the protocol by one message: it parses query
// (received from the peer) and returns the next message to send back.
// On the initiator side the output is nil once there is nothing
// further to say; the responder side always returns a message.
//
// On the initiator side (after Initiate), haveIDs and needIDs report
// items this call newly learned about: haveIDs are items this engine
// holds that the peer does not, needIDs are items the peer holds that
// this engine does not. The responder side never returns ids; a host
// reconciling bidirectionally runs an Engine of each role and looks
// at the initiator's output only.
func (e *Engine) Reconcile(query []byte) (output []byte, haveIDs [][]byte, needIDs [][]byte, err error) {
	if e.isInitiator {
		if !e.initiated {
			return nil, nil, nil, ErrInitiatorRoleViolation
		}
		return e.reconcileInitiator(query)
	}
	e.actedAsResponder = true
	return e.reconcileResponder(query)
}

// readVersion consumes and validates the version byte every message
// begins with. A byte outside [0x60, 0x6F] is not this protocol at
// all and is always fatal. A byte inside the window but not matching
// ProtocolVersion means the peer speaks a different revision: the
// initiator has no fallback and fails outright, but a responder
// recovers by echoing just its own version byte (already the sole
// content of w at this point) and stopping, leaving the initiator to
// decide whether to retry.
func (e *Engine) readVersion(r *encoding.Reader, w *encoding.Writer) (stop bool, err error) {
	version, err := r.Byte()
	if err != nil {
		return false, ErrInvalidProtocolVersion
	}
	if version < protocolVersionWindowLow || version > protocolVersionWindowHigh {
		return false, ErrInvalidProtocolVersion
	}
	if version != ProtocolVersion {
		if e.isInitiator {
			return false, ErrUnsupportedProtocolVersion
		}
		return true, nil
	}
	return false, nil
}

func (e *Engine) reconcileResponder(query []byte) ([]byte, [][]byte, [][]byte, error) {
	e.lastTimestampIn = 0
	e.lastTimestampOut = 0

	r := encoding.NewReader(query)
	w := encoding.NewWriter()
	w.PutByte(ProtocolVersion)

	if stop, err := e.readVersion(r, w); err != nil {
		return nil, nil, nil, err
	} else if stop {
		return w.Bytes(), nil, nil, nil
	}

	prevIndex := uint64(0)
	prevBound := types.ZeroBound()
	haveSkip := false

	flushSkip := func(upTo types.Bound) {
		if haveSkip {
			emitSkip(w, upTo, &e.lastTimestampOut)
			haveSkip = false
		}
	}

	for !r.Done() {
		upperBound, err := encoding.DecodeBound(r, &e.lastTimestampIn)
		if err != nil {
			return nil, nil, nil, err
		}
		modeVal, err := r.VarInt()
		if err != nil {
			return nil, nil, nil, err
		}

		lowerIndex := prevIndex
		upperIndex, err := e.storage.FindLowerBound(lowerIndex, upperBound)
		if err != nil {
			return nil, nil, nil, err
		}

		switch Mode(modeVal) {
		case ModeSkip:
			haveSkip = true

		case ModeFingerprint:
			theirFP, err := r.Bytes(accumulator.FingerprintSize)
			if err != nil {
				return nil, nil, nil, err
			}
			ourFP, err := e.storage.Fingerprint(lowerIndex, upperIndex)
			if err != nil {
				return nil, nil, nil, err
			}
			if bytes.Equal(theirFP, ourFP[:]) {
				haveSkip = true
			} else {
				flushSkip(prevBound)
				if err := e.answerMismatch(w, lowerIndex, upperIndex, prevBound, upperBound); err != nil {
					return nil, nil, nil, err
				}
			}

		case ModeIDList:
			count, err := r.VarInt()
			if err != nil {
				return nil, nil, nil, err
			}
			if _, err := r.Bytes(int(count) * types.IDSize); err != nil {
				return nil, nil, nil, err
			}
			flushSkip(prevBound)

			respIDs := make([][]byte, 0, upperIndex-lowerIndex)
			respSize := 0
			err = e.storage.Iterate(lowerIndex, upperIndex, func(item types.Item, index uint64) bool {
				if e.frameSizeLimit != 0 && uint64(w.Len()+respSize) > e.frameSizeLimit-idListFrameSafetyMargin {
					// Frame limit reached mid-enumeration: answer only
					// the prefix that fits, shrinking upperBound/upperIndex
					// so the generic frame check below can append a
					// trailing remainder fingerprint for what's left.
					upperBound = types.BoundFromItem(item)
					upperIndex = index
					return false
				}
				respIDs = append(respIDs, append([]byte(nil), item.ID[:]...))
				respSize += types.IDSize
				return true
			})
			if err != nil {
				return nil, nil, nil, err
			}
			emitIDList(w, upperBound, &e.lastTimestampOut, respIDs)

		default:
			return nil, nil, nil, ErrUnexpectedMode
		}

		if truncated, err := e.checkFrameLimit(w, upperIndex, flushSkip, prevBound); err != nil {
			return nil, nil, nil, err
		} else if truncated {
			return w.Bytes(), nil, nil, nil
		}

		prevIndex = upperIndex
		prevBound = upperBound
	}
	flushSkip(prevBound)

	// A responder always answers, even if the answer is just the
	// version byte (e.g. when it has nothing to add to an all-matching
	// exchange): there is no "nothing to say" case on this side.
	return w.Bytes(), nil, nil, nil
}

func (e *Engine) reconcileInitiator(query []byte) ([]byte, [][]byte, [][]byte, error) {
	e.lastTimestampIn = 0
	e.lastTimestampOut = 0

	r := encoding.NewReader(query)
	w := encoding.NewWriter()
	w.PutByte(ProtocolVersion)

	if stop, err := e.readVersion(r, w); err != nil {
		return nil, nil, nil, err
	} else if stop {
		// Only a responder recovers this way; readVersion never
		// reports stop for the initiator.
		return w.Bytes(), nil, nil, nil
	}

	var haveIDs, needIDs [][]byte
	prevIndex := uint64(0)
	prevBound := types.ZeroBound()
	haveSkip := false

	flushSkip := func(upTo types.Bound) {
		if haveSkip {
			emitSkip(w, upTo, &e.lastTimestampOut)
			haveSkip = false
		}
	}

	for !r.Done() {
		upperBound, err := encoding.DecodeBound(r, &e.lastTimestampIn)
		if err != nil {
			return nil, nil, nil, err
		}
		modeVal, err := r.VarInt()
		if err != nil {
			return nil, nil, nil, err
		}

		lowerIndex := prevIndex
		upperIndex, err := e.storage.FindLowerBound(lowerIndex, upperBound)
		if err != nil {
			return nil, nil, nil, err
		}

		switch Mode(modeVal) {
		case ModeSkip:
			// nothing to reconcile in this range.
			haveSkip = true

		case ModeFingerprint:
			theirFP, err := r.Bytes(accumulator.FingerprintSize)
			if err != nil {
				return nil, nil, nil, err
			}
			ourFP, err := e.storage.Fingerprint(lowerIndex, upperIndex)
			if err != nil {
				return nil, nil, nil, err
			}
			if bytes.Equal(theirFP, ourFP[:]) {
				haveSkip = true
			} else {
				flushSkip(prevBound)
				if err := e.answerMismatch(w, lowerIndex, upperIndex, prevBound, upperBound); err != nil {
					return nil, nil, nil, err
				}
			}

		case ModeIDList:
			count, err := r.VarInt()
			if err != nil {
				return nil, nil, nil, err
			}
			theirIDs := make(map[string]bool, count)
			for i := uint64(0); i < count; i++ {
				idBytes, err := r.Bytes(types.IDSize)
				if err != nil {
					return nil, nil, nil, err
				}
				theirIDs[string(idBytes)] = true
			}
			ourIDs, err := idsInRange(e.storage, lowerIndex, upperIndex)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, id := range ourIDs {
				if !theirIDs[string(id)] {
					haveIDs = append(haveIDs, id)
				}
				delete(theirIDs, string(id))
			}
			for idStr := range theirIDs {
				needIDs = append(needIDs, []byte(idStr))
			}
			haveSkip = true

		default:
			return nil, nil, nil, ErrUnexpectedMode
		}

		if truncated, err := e.checkFrameLimit(w, upperIndex, flushSkip, prevBound); err != nil {
			return nil, nil, nil, err
		} else if truncated {
			return w.Bytes(), haveIDs, needIDs, nil
		}

		prevIndex = upperIndex
		prevBound = upperBound
	}
	// A pending skip at the end of the message is not written: the
	// end of a message already leaves the rest of the range implicit.

	// w always carries at least the version byte; "nothing left to
	// say" means that byte is all it carries.
	if w.Len() == 1 {
		return nil, haveIDs, needIDs, nil
	}
	return w.Bytes(), haveIDs, needIDs, nil
}

// answerMismatch responds to a range whose fingerprint disagreed with
// the peer's: small ranges are enumerated outright (ModeIDList),
// larger ones are bucketed into finer fingerprints for a further
// round trip.
func (e *Engine) answerMismatch(w *encoding.Writer, lowerIndex, upperIndex uint64, lowerBound, upperBound types.Bound) error {
	if upperIndex-lowerIndex < idListThreshold {
		ids, err := idsInRange(e.storage, lowerIndex, upperIndex)
		if err != nil {
			return err
		}
		emitIDList(w, upperBound, &e.lastTimestampOut, ids)
		return nil
	}
	return e.splitRange(w, lowerIndex, upperIndex, lowerBound, upperBound)
}

// checkFrameLimit truncates the in-progress message with a single
// continuation fingerprint covering everything from upperIndex to the
// end of storage, once the message has grown past
// frameSizeLimit-idListFrameSafetyMargin.
// Checked after every range regardless of whether input remains: a
// truncated IdList answer reaches here with upperIndex already shrunk
// to the last item it managed to include, needing exactly this same
// trailing fingerprint for what it had to leave out.
func (e *Engine) checkFrameLimit(w *encoding.Writer, upperIndex uint64, flushSkip func(types.Bound), prevBound types.Bound) (bool, error) {
	if e.frameSizeLimit == 0 || uint64(w.Len()) <= e.frameSizeLimit-idListFrameSafetyMargin {
		return false, nil
	}
	flushSkip(prevBound)
	remainderFP, err := e.storage.Fingerprint(upperIndex, e.storage.Size())
	if err != nil {
		return false, err
	}
	emitFingerprint(w, types.InfiniteBound(), &e.lastTimestampOut, remainderFP)
	e.logger.Debug("negentropy: message truncated at frame size limit", "limit", e.frameSizeLimit)
	return true, nil
}

func idsInRange(s storage.Storage, begin, end uint64) ([][]byte, error) {
	ids := make([][]byte, 0, end-begin)
	err := s.Iterate(begin, end, func(item types.Item, _ uint64) bool {
		ids = append(ids, append([]byte(nil), item.ID[:]...))
		return true
	})
	return ids, err
}
