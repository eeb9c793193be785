package samplers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ammlabs/poolsim/internal/types"
)

func TestGridOrderFirstAxisSlowest(t *testing.T) {
	g, err := NewGrid([]Variable{
		{Name: "A", Values: TestA()},
		{Name: "fee", Values: TestFee()},
	})
	require.NoError(t, err)
	require.Equal(t, 4, g.Size())

	sets := g.ParamSets()
	want := [][2]int64{
		{100, 3_000_000},
		{100, 4_000_000},
		{1000, 3_000_000},
		{1000, 4_000_000},
	}
	require.Len(t, sets, len(want))
	for k, w := range want {
		a, ok := sets[k].Get("A")
		require.True(t, ok)
		require.Equal(t, w[0], a)
		fee, ok := sets[k].Get("fee")
		require.True(t, ok)
		require.Equal(t, w[1], fee)
	}
}

func TestGridNoAxesSingleRun(t *testing.T) {
	g, err := NewGrid(nil)
	require.NoError(t, err)
	require.Equal(t, 1, g.Size())
	require.Equal(t, []types.ParamSet{nil}, g.ParamSets())
}

func TestGridValidation(t *testing.T) {
	_, err := NewGrid([]Variable{{Name: "", Values: []int64{1}}})
	require.Error(t, err)

	_, err = NewGrid([]Variable{{Name: "A", Values: nil}})
	require.Error(t, err)

	_, err = NewGrid([]Variable{
		{Name: "A", Values: []int64{1}},
		{Name: "A", Values: []int64{2}},
	})
	require.Error(t, err)
}

func TestDefaultGrids(t *testing.T) {
	a := DefaultA()
	require.Len(t, a, 16)
	require.Equal(t, int64(64), a[0])
	require.Equal(t, int64(11585), a[15])
	for k := 1; k < len(a); k++ {
		require.Greater(t, a[k], a[k-1])
	}

	require.Equal(t, []int64{1_000_000, 2_000_000, 3_000_000, 4_000_000}, DefaultFee())
}

func TestPriceVolumeSortsAndValidates(t *testing.T) {
	pair := types.Pair{I: 0, J: 1}
	pv, err := NewPriceVolume([]types.PriceVolumeSample{
		{Timestamp: 7200, Prices: map[types.Pair]float64{pair: 1.01}},
		{Timestamp: 3600, Prices: map[types.Pair]float64{pair: 0.99}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, pv.Len())
	start, end := pv.Range()
	require.Equal(t, int64(3600), start)
	require.Equal(t, int64(7200), end)
	require.Equal(t, 0.99, pv.Samples()[0].Prices[pair])

	_, err = NewPriceVolume(nil)
	require.Error(t, err)

	_, err = NewPriceVolume([]types.PriceVolumeSample{
		{Timestamp: 1, Prices: map[types.Pair]float64{pair: 1}},
		{Timestamp: 1, Prices: map[types.Pair]float64{pair: 1}},
	})
	require.ErrorContains(t, err, "duplicate timestamp")

	_, err = NewPriceVolume([]types.PriceVolumeSample{
		{Timestamp: 1, Prices: map[types.Pair]float64{pair: -2}},
	})
	require.ErrorContains(t, err, "non-positive price")
}
