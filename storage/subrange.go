package storage

import (
	"github.com/erigontech/negentropy/accumulator"
	"github.com/erigontech/negentropy/types"
)

// SubRange scopes any other Storage down to the items at or above
// lowerBound and below upperBound, plus an item that compares exactly
// equal to upperBound, translating all indices back and forth to the
// base storage's index space.
type SubRange struct {
	base     Storage
	subBegin uint64
	subEnd   uint64
}

// NewSubRange constructs the scoped view. lowerBound and upperBound
// are resolved against base once, at construction time; base must not
// mutate for the lifetime of the SubRange.
func NewSubRange(base Storage, lowerBound, upperBound types.Bound) (*SubRange, error) {
	baseSize := base.Size()
	subBegin, err := base.FindLowerBound(0, lowerBound)
	if err != nil {
		return nil, err
	}
	subEnd, err := base.FindLowerBound(subBegin, upperBound)
	if err != nil {
		return nil, err
	}
	if subEnd < baseSize {
		item, err := base.GetItem(subEnd)
		if err != nil {
			return nil, err
		}
		if types.BoundFromItem(item).Equal(upperBound) {
			subEnd++
		}
	}
	return &SubRange{base: base, subBegin: subBegin, subEnd: subEnd}, nil
}

func (s *SubRange) Size() uint64 {
	return s.subEnd - s.subBegin
}

func (s *SubRange) checkRange(begin, end uint64) error {
	if begin > end || end > s.Size() {
		return ErrBadRange
	}
	return nil
}

func (s *SubRange) GetItem(i uint64) (types.Item, error) {
	if i >= s.Size() {
		return types.Item{}, ErrOutOfRange
	}
	return s.base.GetItem(s.subBegin + i)
}

func (s *SubRange) Iterate(begin, end uint64, cb func(types.Item, uint64) bool) error {
	if err := s.checkRange(begin, end); err != nil {
		return err
	}
	return s.base.Iterate(s.subBegin+begin, s.subBegin+end, func(item types.Item, idx uint64) bool {
		return cb(item, idx-s.subBegin)
	})
}

func (s *SubRange) FindLowerBound(begin uint64, bound types.Bound) (uint64, error) {
	if err := s.checkRange(begin, s.Size()); err != nil {
		return 0, err
	}
	ret, err := s.base.FindLowerBound(s.subBegin+begin, bound)
	if err != nil {
		return 0, err
	}
	if ret >= s.subEnd {
		return s.Size(), nil
	}
	return ret - s.subBegin, nil
}

func (s *SubRange) Fingerprint(begin, end uint64) (accumulator.Fingerprint, error) {
	if err := s.checkRange(begin, end); err != nil {
		return accumulator.Fingerprint{}, err
	}
	return s.base.Fingerprint(s.subBegin+begin, s.subBegin+end)
}
