package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/negentropy/storage"
	"github.com/erigontech/negentropy/types"
)

func idFor(b byte) []byte {
	raw := make([]byte, types.IDSize)
	raw[0] = b
	return raw
}

func TestVectorSealAndQuery(t *testing.T) {
	v := storage.NewVector()
	require.NoError(t, v.Add(30, idFor(3)))
	require.NoError(t, v.Add(10, idFor(1)))
	require.NoError(t, v.Add(20, idFor(2)))
	require.NoError(t, v.Seal())

	require.Equal(t, uint64(3), v.Size())
	it0, err := v.GetItem(0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), it0.Timestamp)

	idx, err := v.FindLowerBound(0, types.Bound{Timestamp: 20})
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)

	idx, err = v.FindLowerBound(0, types.Bound{Timestamp: 1000})
	require.NoError(t, err)
	require.Equal(t, uint64(3), idx)
}

func TestVectorRejectsMutationAfterSeal(t *testing.T) {
	v := storage.NewVector()
	require.NoError(t, v.Seal())
	require.ErrorIs(t, v.Add(1, idFor(1)), storage.ErrAlreadySealed)
	require.ErrorIs(t, v.Seal(), storage.ErrAlreadySealed)
}

func TestVectorRejectsReadBeforeSeal(t *testing.T) {
	v := storage.NewVector()
	_, err := v.GetItem(0)
	require.ErrorIs(t, err, storage.ErrNotSealed)
}

func TestVectorSealRejectsDuplicates(t *testing.T) {
	v := storage.NewVector()
	require.NoError(t, v.Add(10, idFor(1)))
	require.NoError(t, v.Add(10, idFor(1)))
	require.ErrorIs(t, v.Seal(), storage.ErrDuplicateItem)
}

func TestVectorFingerprintMatchesManualAccumulation(t *testing.T) {
	v := storage.NewVector()
	for i := byte(0); i < 10; i++ {
		require.NoError(t, v.Add(uint64(i), idFor(i)))
	}
	require.NoError(t, v.Seal())

	fp1, err := v.Fingerprint(0, 5)
	require.NoError(t, err)
	fp2, err := v.Fingerprint(0, 5)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)

	fpFull, err := v.Fingerprint(0, 10)
	require.NoError(t, err)
	fpOther, err := v.Fingerprint(0, 9)
	require.NoError(t, err)
	require.NotEqual(t, fpFull, fpOther)
}

func TestVectorIterateStopsEarly(t *testing.T) {
	v := storage.NewVector()
	for i := byte(0); i < 5; i++ {
		require.NoError(t, v.Add(uint64(i), idFor(i)))
	}
	require.NoError(t, v.Seal())

	var seen []uint64
	err := v.Iterate(0, 5, func(item types.Item, idx uint64) bool {
		seen = append(seen, idx)
		return idx < 2
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2}, seen)
}

func TestVectorBadRange(t *testing.T) {
	v := storage.NewVector()
	require.NoError(t, v.Seal())
	err := v.Iterate(0, 1, func(types.Item, uint64) bool { return true })
	require.ErrorIs(t, err, storage.ErrBadRange)
}
