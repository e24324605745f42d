// Package accumulator implements the 256-bit modular additive
// accumulator and its 16-byte SHA-256-based fingerprint, built on
// github.com/holiman/uint256 for the underlying ring arithmetic.
package accumulator

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/erigontech/negentropy/encoding"
	"github.com/erigontech/negentropy/types"
)

// FingerprintSize is the length, in bytes, of a finalized Fingerprint.
const FingerprintSize = 16

// Fingerprint is a finalized, order-independent summary of a set of
// items plus their count.
type Fingerprint [FingerprintSize]byte

// Accumulator is a running sum of item ids modulo 2^256, stored as
// uint256.Int's four 64-bit limbs in the same little-endian order the
// wire format uses. Addition, subtraction and negation all wrap
// silently, matching the modular-arithmetic semantics the protocol
// relies on for order-independent, subtractable set summaries.
type Accumulator struct {
	val uint256.Int
}

// Zero returns the additive identity.
func Zero() Accumulator {
	return Accumulator{}
}

// SetZero resets the accumulator to the additive identity.
func (a *Accumulator) SetZero() {
	a.val = uint256.Int{}
}

// AddItem folds item's id, read as a little-endian 256-bit integer,
// into the accumulator.
func (a *Accumulator) AddItem(item types.Item) {
	var x uint256.Int
	setBytesLE(&x, item.ID[:])
	a.val.Add(&a.val, &x)
}

// SubItem removes item's contribution, the inverse of AddItem.
func (a *Accumulator) SubItem(item types.Item) {
	var x uint256.Int
	setBytesLE(&x, item.ID[:])
	a.val.Sub(&a.val, &x)
}

// Add folds another accumulator's value into this one.
func (a *Accumulator) Add(o Accumulator) {
	a.val.Add(&a.val, &o.val)
}

// Sub removes another accumulator's value from this one.
func (a *Accumulator) Sub(o Accumulator) {
	a.val.Sub(&a.val, &o.val)
}

// Negate computes the two's-complement negation modulo 2^256, so that
// a.Add(b); a.Negate() followed by a.Add(b) restores the identity.
func (a *Accumulator) Negate() {
	var zero uint256.Int
	a.val.Sub(&zero, &a.val)
}

// Bytes returns the canonical 32-byte little-endian encoding.
func (a Accumulator) Bytes() [32]byte {
	var out [32]byte
	putBytesLE(&out, &a.val)
	return out
}

// Fingerprint finalizes the accumulator into a 16-byte fingerprint:
// SHA-256 of the accumulator's 32 little-endian bytes followed by
// count's varint encoding, truncated to FingerprintSize bytes.
func (a Accumulator) Fingerprint(count uint64) Fingerprint {
	b := a.Bytes()
	buf := make([]byte, 0, 32+10)
	buf = append(buf, b[:]...)
	buf = encoding.AppendVarInt(buf, count)
	sum := sha256.Sum256(buf)
	var fp Fingerprint
	copy(fp[:], sum[:FingerprintSize])
	return fp
}

// setBytesLE loads a (zero-extended on the right, at most 32 bytes)
// little-endian byte slice into z. uint256.Int's own SetBytes/Bytes32
// are big-endian, so the accumulator does its own limb-wise load.
func setBytesLE(z *uint256.Int, b []byte) {
	var padded [32]byte
	copy(padded[:], b)
	z[0] = binary.LittleEndian.Uint64(padded[0:8])
	z[1] = binary.LittleEndian.Uint64(padded[8:16])
	z[2] = binary.LittleEndian.Uint64(padded[16:24])
	z[3] = binary.LittleEndian.Uint64(padded[24:32])
}

func putBytesLE(out *[32]byte, z *uint256.Int) {
	binary.LittleEndian.PutUint64(out[0:8], z[0])
	binary.LittleEndian.PutUint64(out[8:16], z[1])
	binary.LittleEndian.PutUint64(out[16:24], z[2])
	binary.LittleEndian.PutUint64(out[24:32], z[3])
}
