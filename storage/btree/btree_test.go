package btree_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erigontech/negentropy/storage"
	"github.com/erigontech/negentropy/storage/btree"
	"github.com/erigontech/negentropy/types"
)

func smallConfig() btree.TreeConfig {
	return btree.TreeConfig{MinItems: 2, MaxItems: 4, MaxJoin: 2}
}

func idFor(b byte) []byte {
	raw := make([]byte, types.IDSize)
	raw[0] = b
	raw[1] = b ^ 0xFF
	return raw
}

func newTestTree() *btree.Tree {
	return btree.NewTree(btree.NewMemNodeStore(), smallConfig())
}

func TestTreeInsertAndGetItem(t *testing.T) {
	tr := newTestTree()
	for i := byte(0); i < 30; i++ {
		inserted, err := tr.Insert(uint64(i), idFor(i))
		require.NoError(t, err)
		require.True(t, inserted)
	}
	require.Equal(t, uint64(30), tr.Size())

	for i := uint64(0); i < 30; i++ {
		it, err := tr.GetItem(i)
		require.NoError(t, err)
		require.Equal(t, i, it.Timestamp)
	}
}

func TestTreeRejectsDuplicateInsert(t *testing.T) {
	tr := newTestTree()
	inserted, err := tr.Insert(5, idFor(5))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = tr.Insert(5, idFor(5))
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, uint64(1), tr.Size())
}

func TestTreeOutOfOrderInsertStaysSorted(t *testing.T) {
	tr := newTestTree()
	order := []byte{9, 2, 7, 0, 5, 3, 8, 1, 6, 4}
	for _, v := range order {
		_, err := tr.Insert(uint64(v), idFor(v))
		require.NoError(t, err)
	}
	for i := uint64(0); i < 10; i++ {
		it, err := tr.GetItem(i)
		require.NoError(t, err)
		require.Equal(t, i, it.Timestamp)
	}
}

func TestTreeEraseRemovesItemAndShrinksSize(t *testing.T) {
	tr := newTestTree()
	for i := byte(0); i < 20; i++ {
		_, err := tr.Insert(uint64(i), idFor(i))
		require.NoError(t, err)
	}
	removed, err := tr.Erase(10, idFor(10))
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, uint64(19), tr.Size())

	removed, err = tr.Erase(10, idFor(10))
	require.NoError(t, err)
	require.False(t, removed)

	for i := uint64(0); i < 19; i++ {
		it, err := tr.GetItem(i)
		require.NoError(t, err)
		require.NotEqual(t, uint64(10), it.Timestamp)
	}
}

func TestTreeEraseAllLeavesEmptyTree(t *testing.T) {
	tr := newTestTree()
	for i := byte(0); i < 15; i++ {
		_, err := tr.Insert(uint64(i), idFor(i))
		require.NoError(t, err)
	}
	for i := byte(0); i < 15; i++ {
		removed, err := tr.Erase(uint64(i), idFor(i))
		require.NoError(t, err)
		require.True(t, removed)
	}
	require.Equal(t, uint64(0), tr.Size())
}

func TestTreeFindLowerBound(t *testing.T) {
	tr := newTestTree()
	for i := byte(0); i < 20; i += 2 {
		_, err := tr.Insert(uint64(i), idFor(i))
		require.NoError(t, err)
	}
	idx, err := tr.FindLowerBound(0, types.Bound{Timestamp: 7})
	require.NoError(t, err)
	it, err := tr.GetItem(idx)
	require.NoError(t, err)
	require.Equal(t, uint64(8), it.Timestamp)

	idx, err = tr.FindLowerBound(0, types.Bound{Timestamp: 1000})
	require.NoError(t, err)
	require.Equal(t, tr.Size(), idx)
}

func TestTreeFingerprintMatchesVectorFingerprint(t *testing.T) {
	tr := newTestTree()
	v := storage.NewVector()
	for i := byte(0); i < 25; i++ {
		_, err := tr.Insert(uint64(i), idFor(i))
		require.NoError(t, err)
		require.NoError(t, v.Add(uint64(i), idFor(i)))
	}
	require.NoError(t, v.Seal())

	fpTree, err := tr.Fingerprint(5, 20)
	require.NoError(t, err)
	fpVector, err := v.Fingerprint(5, 20)
	require.NoError(t, err)
	require.Equal(t, fpVector, fpTree)
}

func TestTreeMatchesVectorUnderRandomInsertOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 60).Draw(t, "n")
		ids := rapid.Permutation(seqBytes(n)).Draw(t, "order")

		tr := newTestTree()
		v := storage.NewVector()
		for _, b := range ids {
			_, err := tr.Insert(uint64(b), idFor(b))
			require.NoError(t, err)
			require.NoError(t, v.Add(uint64(b), idFor(b)))
		}
		require.NoError(t, v.Seal())

		require.Equal(t, v.Size(), tr.Size())
		for i := uint64(0); i < v.Size(); i++ {
			vi, err := v.GetItem(i)
			require.NoError(t, err)
			ti, err := tr.GetItem(i)
			require.NoError(t, err)
			require.Equal(t, vi, ti)
		}

		if v.Size() > 0 {
			fpV, err := v.Fingerprint(0, v.Size())
			require.NoError(t, err)
			fpT, err := tr.Fingerprint(0, tr.Size())
			require.NoError(t, err)
			require.Equal(t, fpV, fpT)
		}
	})
}

func seqBytes(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}
