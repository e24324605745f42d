package encoding

import "github.com/erigontech/negentropy/types"

// EncodeTimestamp writes timestamp differentially against
// *lastTimestampOut, then advances that cursor. The sentinel
// types.MaxTimestamp ("infinity") is always encoded as varint 0 and
// never advances the diff base past infinity.
func EncodeTimestamp(w *Writer, timestamp uint64, lastTimestampOut *uint64) {
	if timestamp == types.MaxTimestamp {
		*lastTimestampOut = types.MaxTimestamp
		w.PutVarInt(0)
		return
	}
	temp := timestamp
	w.PutVarInt(timestamp - *lastTimestampOut + 1) // wraps mod 2^64, matches decode
	*lastTimestampOut = temp
}

// DecodeTimestamp reads a differential timestamp relative to
// *lastTimestampIn, then advances that cursor. A wrapped-around
// result (the encoder's subtraction underflowed) saturates to
// types.MaxTimestamp rather than silently aliasing a small value.
func DecodeTimestamp(r *Reader, lastTimestampIn *uint64) (uint64, error) {
	v, err := r.VarInt()
	if err != nil {
		return 0, err
	}
	if v == 0 {
		*lastTimestampIn = types.MaxTimestamp
		return types.MaxTimestamp, nil
	}
	timestamp := *lastTimestampIn + (v - 1)
	if timestamp < *lastTimestampIn {
		timestamp = types.MaxTimestamp
	}
	*lastTimestampIn = timestamp
	return timestamp, nil
}

// EncodeBound writes a Bound as a differential timestamp followed by
// a length-prefixed id prefix.
func EncodeBound(w *Writer, b types.Bound, lastTimestampOut *uint64) {
	EncodeTimestamp(w, b.Timestamp, lastTimestampOut)
	w.PutVarInt(uint64(len(b.IDPrefix)))
	w.PutBytes(b.IDPrefix)
}

// DecodeBound reads a Bound previously written by EncodeBound.
func DecodeBound(r *Reader, lastTimestampIn *uint64) (types.Bound, error) {
	timestamp, err := DecodeTimestamp(r, lastTimestampIn)
	if err != nil {
		return types.Bound{}, err
	}
	length, err := r.VarInt()
	if err != nil {
		return types.Bound{}, err
	}
	prefix, err := r.Bytes(int(length))
	if err != nil {
		return types.Bound{}, err
	}
	return types.Bound{Timestamp: timestamp, IDPrefix: append([]byte(nil), prefix...)}, nil
}
