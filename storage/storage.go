// Package storage defines the read-capability set the protocol engine
// drives a reconciliation against, plus two concrete implementations:
// Vector (a sealed sorted array) and SubRange (a scoped view over any
// other Storage). The B+ tree implementation lives in the sibling
// storage/btree package.
package storage

import (
	"errors"

	"github.com/erigontech/negentropy/accumulator"
	"github.com/erigontech/negentropy/types"
)

var (
	// ErrAlreadySealed is returned by mutating operations on storage
	// that has already transitioned to its read-only, sealed state.
	ErrAlreadySealed = errors.New("negentropy: storage already sealed")
	// ErrNotSealed is returned by read operations on storage that has
	// not yet been sealed.
	ErrNotSealed = errors.New("negentropy: storage not sealed")
	// ErrDuplicateItem is returned when sealing would leave two equal
	// items adjacent in sorted order.
	ErrDuplicateItem = errors.New("negentropy: duplicate item")
	// ErrBadRange is returned when begin > end or end exceeds Size().
	ErrBadRange = errors.New("negentropy: bad range")
	// ErrOutOfRange is returned when an index is >= Size().
	ErrOutOfRange = errors.New("negentropy: index out of range")
	// ErrBadIDSize is returned when an id is not exactly types.IDSize
	// bytes.
	ErrBadIDSize = errors.New("negentropy: bad id size")
)

// Storage is the read-only capability set the protocol engine needs:
// a stable, sorted sequence of items it can size, index, scan, binary
// search and fingerprint over half-open subranges.
type Storage interface {
	// Size returns the number of items.
	Size() uint64
	// GetItem returns the item at index i.
	GetItem(i uint64) (types.Item, error)
	// Iterate invokes cb(item, index) in order for begin <= index <
	// end, stopping early if cb returns false.
	Iterate(begin, end uint64, cb func(item types.Item, index uint64) bool) error
	// FindLowerBound returns the smallest index j >= begin such that
	// item[j] >= bound, or Size() if there is none.
	FindLowerBound(begin uint64, bound types.Bound) (uint64, error)
	// Fingerprint summarizes the half-open subrange [begin, end).
	Fingerprint(begin, end uint64) (accumulator.Fingerprint, error)
}
