package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/negentropy/storage"
	"github.com/erigontech/negentropy/types"
)

func sealedVector(t *testing.T, timestamps ...uint64) *storage.Vector {
	t.Helper()
	v := storage.NewVector()
	for i, ts := range timestamps {
		require.NoError(t, v.Add(ts, idFor(byte(i))))
	}
	require.NoError(t, v.Seal())
	return v
}

func TestSubRangeScopesToBounds(t *testing.T) {
	v := sealedVector(t, 10, 20, 30, 40, 50)

	sr, err := storage.NewSubRange(v, types.Bound{Timestamp: 20}, types.Bound{Timestamp: 40})
	require.NoError(t, err)
	require.Equal(t, uint64(2), sr.Size())

	it0, err := sr.GetItem(0)
	require.NoError(t, err)
	require.Equal(t, uint64(20), it0.Timestamp)
	it1, err := sr.GetItem(1)
	require.NoError(t, err)
	require.Equal(t, uint64(30), it1.Timestamp)
}

func TestSubRangeIncludesExactUpperBoundMatch(t *testing.T) {
	v := sealedVector(t, 10, 20, 30)
	upper := types.BoundFromItem(mustGetItem(t, v, 1)) // exactly item at ts=20

	sr, err := storage.NewSubRange(v, types.Bound{Timestamp: 10}, upper)
	require.NoError(t, err)
	// upper bound matches item exactly -> included, alongside ts=10
	require.Equal(t, uint64(2), sr.Size())
}

func mustGetItem(t *testing.T, v *storage.Vector, i uint64) types.Item {
	t.Helper()
	it, err := v.GetItem(i)
	require.NoError(t, err)
	return it
}

func TestSubRangeFullRangeMatchesBase(t *testing.T) {
	v := sealedVector(t, 10, 20, 30)
	sr, err := storage.NewSubRange(v, types.ZeroBound(), types.InfiniteBound())
	require.NoError(t, err)
	require.Equal(t, v.Size(), sr.Size())

	fpBase, err := v.Fingerprint(0, v.Size())
	require.NoError(t, err)
	fpSub, err := sr.Fingerprint(0, sr.Size())
	require.NoError(t, err)
	require.Equal(t, fpBase, fpSub)
}

func TestSubRangeEmptyWhenNoItemsMatch(t *testing.T) {
	v := sealedVector(t, 10, 20, 30)
	sr, err := storage.NewSubRange(v, types.Bound{Timestamp: 1000}, types.InfiniteBound())
	require.NoError(t, err)
	require.Equal(t, uint64(0), sr.Size())
}

func TestSubRangeFindLowerBoundTranslatesIndices(t *testing.T) {
	v := sealedVector(t, 10, 20, 30, 40, 50)
	sr, err := storage.NewSubRange(v, types.Bound{Timestamp: 20}, types.Bound{Timestamp: 50})
	require.NoError(t, err)

	idx, err := sr.FindLowerBound(0, types.Bound{Timestamp: 30})
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)

	idx, err = sr.FindLowerBound(0, types.Bound{Timestamp: 1000})
	require.NoError(t, err)
	require.Equal(t, sr.Size(), idx)
}
