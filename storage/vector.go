package storage

import (
	"sort"

	"github.com/erigontech/negentropy/accumulator"
	"github.com/erigontech/negentropy/types"
)

// Vector is an append-then-seal Storage: items accumulate unordered
// via Add, then Seal sorts them and locks out further mutation. It is
// the simplest Storage and the one most implementations compare their
// B+ tree against in equivalence tests.
type Vector struct {
	items  []types.Item
	sealed bool
}

// NewVector returns an empty, unsealed Vector.
func NewVector() *Vector {
	return &Vector{}
}

// Add appends an item. It fails once the Vector has been sealed.
func (v *Vector) Add(timestamp uint64, id []byte) error {
	if v.sealed {
		return ErrAlreadySealed
	}
	item, ok := types.NewItem(timestamp, id)
	if !ok {
		return ErrBadIDSize
	}
	v.items = append(v.items, item)
	return nil
}

// Seal sorts the accumulated items and locks the Vector for reading.
// It fails if sealing would leave duplicate items adjacent.
func (v *Vector) Seal() error {
	if v.sealed {
		return ErrAlreadySealed
	}
	sort.Slice(v.items, func(i, j int) bool { return v.items[i].Less(v.items[j]) })
	for i := 1; i < len(v.items); i++ {
		if v.items[i-1].Equal(v.items[i]) {
			return ErrDuplicateItem
		}
	}
	v.sealed = true
	return nil
}

func (v *Vector) checkSealed() error {
	if !v.sealed {
		return ErrNotSealed
	}
	return nil
}

func (v *Vector) Size() uint64 {
	return uint64(len(v.items))
}

func (v *Vector) GetItem(i uint64) (types.Item, error) {
	if err := v.checkSealed(); err != nil {
		return types.Item{}, err
	}
	if i >= uint64(len(v.items)) {
		return types.Item{}, ErrOutOfRange
	}
	return v.items[i], nil
}

func (v *Vector) Iterate(begin, end uint64, cb func(types.Item, uint64) bool) error {
	if err := v.checkSealed(); err != nil {
		return err
	}
	if begin > end || end > uint64(len(v.items)) {
		return ErrBadRange
	}
	for i := begin; i < end; i++ {
		if !cb(v.items[i], i) {
			return nil
		}
	}
	return nil
}

func (v *Vector) FindLowerBound(begin uint64, bound types.Bound) (uint64, error) {
	if err := v.checkSealed(); err != nil {
		return 0, err
	}
	n := uint64(len(v.items))
	if begin > n {
		return 0, ErrBadRange
	}
	target := bound.AsItem()
	lo, hi := begin, n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if v.items[mid].Less(target) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

func (v *Vector) Fingerprint(begin, end uint64) (accumulator.Fingerprint, error) {
	if err := v.checkSealed(); err != nil {
		return accumulator.Fingerprint{}, err
	}
	if begin > end || end > uint64(len(v.items)) {
		return accumulator.Fingerprint{}, ErrBadRange
	}
	acc := accumulator.Zero()
	for i := begin; i < end; i++ {
		acc.AddItem(v.items[i])
	}
	return acc.Fingerprint(end - begin), nil
}
