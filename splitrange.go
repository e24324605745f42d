package negentropy

import (
	"github.com/erigontech/negentropy/encoding"
	"github.com/erigontech/negentropy/types"
)

// Mode identifies what follows a range's bound on the wire.
type Mode uint64

const (
	// ModeSkip means the sender has nothing new to report for this
	// range; it exists purely to delimit the next range's lower edge.
	ModeSkip Mode = iota
	// ModeFingerprint carries a 16-byte summary of the range.
	ModeFingerprint
	// ModeIDList enumerates every item in the range by id.
	ModeIDList
)

// buckets is how many sub-ranges splitRange divides a range into when
// it is too large to summarize with a single fingerprint.
const buckets = 16

// idListThreshold is the range size from which splitRange emits
// bucketed fingerprints; smaller ranges are enumerated directly with
// ModeIDList.
const idListThreshold = buckets * 2

// idListFrameSafetyMargin is reserved headroom below frameSizeLimit
// when a responder enumerates ids one at a time: before each id the
// loop stops if the message plus the ids collected so far already
// exceeds frameSizeLimit-idListFrameSafetyMargin, leaving room for the range's
// own bound/mode/count encoding that hasn't been written yet.
const idListFrameSafetyMargin = 200

// splitRange emits one or more ranges covering [begin, end), each
// bounded above by lowerBound < bound <= upperBound: a range of at
// least idListThreshold items is split once into up to `buckets`
// fingerprinted sub-ranges (it does not recurse; the peer answers a
// mismatched bucket on the next round), and a smaller range is sent
// as a single id list.
func (e *Engine) splitRange(w *encoding.Writer, begin, end uint64, lowerBound, upperBound types.Bound) error {
	numElems := end - begin

	if numElems < idListThreshold {
		ids := make([][]byte, 0, numElems)
		err := e.storage.Iterate(begin, end, func(item types.Item, _ uint64) bool {
			id := append([]byte(nil), item.ID[:]...)
			ids = append(ids, id)
			return true
		})
		if err != nil {
			return err
		}
		encoding.EncodeBound(w, upperBound, &e.lastTimestampOut)
		w.PutVarInt(uint64(ModeIDList))
		w.PutVarInt(uint64(len(ids)))
		for _, id := range ids {
			w.PutBytes(id)
		}
		return nil
	}

	itemsPerBucket := numElems / buckets
	bucketsWithExtra := numElems % buckets
	curr := begin
	for i := uint64(0); i < buckets; i++ {
		bucketSize := itemsPerBucket
		if i < bucketsWithExtra {
			bucketSize++
		}
		nextIndex := curr + bucketSize

		var nextBound types.Bound
		if nextIndex >= end {
			nextIndex = end
			nextBound = upperBound
		} else {
			prevItem, err := e.storage.GetItem(nextIndex - 1)
			if err != nil {
				return err
			}
			currItem, err := e.storage.GetItem(nextIndex)
			if err != nil {
				return err
			}
			nextBound = types.MinimalBound(prevItem, currItem)
		}

		fp, err := e.storage.Fingerprint(curr, nextIndex)
		if err != nil {
			return err
		}
		encoding.EncodeBound(w, nextBound, &e.lastTimestampOut)
		w.PutVarInt(uint64(ModeFingerprint))
		w.PutBytes(fp[:])

		curr = nextIndex
		if curr >= end {
			break
		}
	}
	return nil
}

// emitSkip writes a bare Skip range: no payload, just a delimiting
// bound. Used by skip coalescing to collapse a run of identical
// ranges into a single entry instead of repeating the fingerprint.
func emitSkip(w *encoding.Writer, upperBound types.Bound, lastTimestampOut *uint64) {
	encoding.EncodeBound(w, upperBound, lastTimestampOut)
	w.PutVarInt(uint64(ModeSkip))
}

func emitFingerprint(w *encoding.Writer, upperBound types.Bound, lastTimestampOut *uint64, fp [16]byte) {
	encoding.EncodeBound(w, upperBound, lastTimestampOut)
	w.PutVarInt(uint64(ModeFingerprint))
	w.PutBytes(fp[:])
}

func emitIDList(w *encoding.Writer, upperBound types.Bound, lastTimestampOut *uint64, ids [][]byte) {
	encoding.EncodeBound(w, upperBound, lastTimestampOut)
	w.PutVarInt(uint64(ModeIDList))
	w.PutVarInt(uint64(len(ids)))
	for _, id := range ids {
		w.PutBytes(id)
	}
}
