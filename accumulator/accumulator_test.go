package accumulator_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erigontech/negentropy/accumulator"
	"github.com/erigontech/negentropy/types"
)

func itemWithID(t *rapid.T, label string) types.Item {
	raw := rapid.SliceOfN(rapid.Byte(), types.IDSize, types.IDSize).Draw(t, label)
	ts := rapid.Uint64().Draw(t, label+"_ts")
	it, ok := types.NewItem(ts, raw)
	require.True(t, ok)
	return it
}

func TestAccumulatorAddSubIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) types.Item {
			return itemWithID(t, "item")
		}), 0, 20).Draw(t, "items")

		acc := accumulator.Zero()
		for _, it := range items {
			acc.AddItem(it)
		}
		for _, it := range items {
			acc.SubItem(it)
		}
		require.Equal(t, accumulator.Zero().Bytes(), acc.Bytes())
	})
}

func TestAccumulatorIsOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) types.Item {
			return itemWithID(t, "item")
		}), 1, 20).Draw(t, "items")

		forward := accumulator.Zero()
		for _, it := range items {
			forward.AddItem(it)
		}

		backward := accumulator.Zero()
		for i := len(items) - 1; i >= 0; i-- {
			backward.AddItem(items[i])
		}

		require.Equal(t, forward.Bytes(), backward.Bytes())
		require.Equal(t, forward.Fingerprint(uint64(len(items))), backward.Fingerprint(uint64(len(items))))
	})
}

func TestAccumulatorHomomorphism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) types.Item {
			return itemWithID(t, "a")
		}), 0, 10).Draw(t, "a")
		b := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) types.Item {
			return itemWithID(t, "b")
		}), 0, 10).Draw(t, "b")

		accA := accumulator.Zero()
		for _, it := range a {
			accA.AddItem(it)
		}
		accB := accumulator.Zero()
		for _, it := range b {
			accB.AddItem(it)
		}
		accUnion := accumulator.Zero()
		for _, it := range a {
			accUnion.AddItem(it)
		}
		for _, it := range b {
			accUnion.AddItem(it)
		}

		accA.Add(accB)
		require.Equal(t, accUnion.Bytes(), accA.Bytes())
	})
}

func TestAccumulatorNegateTwiceRestores(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		it := itemWithID(t, "item")
		acc := accumulator.Zero()
		acc.AddItem(it)
		orig := acc.Bytes()
		acc.Negate()
		acc.Negate()
		require.Equal(t, orig, acc.Bytes())
	})
}

func TestFingerprintDependsOnCount(t *testing.T) {
	it := itemWithOnesID()
	acc := accumulator.Zero()
	acc.AddItem(it)
	fp1 := acc.Fingerprint(1)
	fp2 := acc.Fingerprint(2)
	require.NotEqual(t, fp1, fp2)
}

func itemWithOnesID() types.Item {
	raw := make([]byte, types.IDSize)
	for i := range raw {
		raw[i] = 1
	}
	it, _ := types.NewItem(42, raw)
	return it
}
