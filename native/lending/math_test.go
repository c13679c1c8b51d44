package lending

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTotalOwed(t *testing.T) {
	cases := []struct {
		name   string
		amount *big.Int
		rate   uint64
		term   uint64
		want   *big.Int
	}{
		{"twelve percent over a year", units(1000), 1200, 12, units(1120)},
		{"zero rate", units(50), 0, 6, units(50)},
		{"half year", units(1000), 1000, 6, units(1050)},
		{"rounds down", big.NewInt(7), 1500, 5, big.NewInt(7)},
		{"nil amount", nil, 1200, 12, big.NewInt(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Zero(t, tc.want.Cmp(TotalOwed(tc.amount, tc.rate, tc.term)))
		})
	}
}

func TestMonthlyPayment(t *testing.T) {
	require.Zero(t, units(100).Cmp(MonthlyPayment(units(1200), 0, 12)))
	require.Zero(t, big.NewInt(0).Cmp(MonthlyPayment(units(1), 1200, 0)))

	got := MonthlyPayment(units(1000), 1200, 12)
	owed := TotalOwed(units(1000), 1200, 12)
	times := new(big.Int).Mul(got, big.NewInt(12))
	require.True(t, times.Cmp(owed) <= 0, "monthly payments must not exceed the total owed")
}

func TestPlatformFee(t *testing.T) {
	require.Zero(t, units(15).Cmp(PlatformFee(units(1000), 150)))
	require.Zero(t, big.NewInt(0).Cmp(PlatformFee(big.NewInt(66), 150)))
	require.Zero(t, big.NewInt(0).Cmp(PlatformFee(units(1000), 0)))
}

func TestSplitProRataConservesTotal(t *testing.T) {
	weights := []*big.Int{big.NewInt(3), big.NewInt(3), big.NewInt(1)}
	shares := splitProRata(big.NewInt(100), weights)
	require.Len(t, shares, 3)

	sum := new(big.Int)
	for _, s := range shares {
		sum.Add(sum, s)
	}
	require.Zero(t, big.NewInt(100).Cmp(sum))
	// Floors are 42, 42 and 14 with remainders 6, 6 and 2 (of 7), so the two
	// leftover units go to the first two lenders.
	require.Equal(t, "43", shares[0].String())
	require.Equal(t, "43", shares[1].String())
	require.Equal(t, "14", shares[2].String())

	require.Empty(t, splitProRata(big.NewInt(5), nil))
}

func TestSplitProRataLargestRemainder(t *testing.T) {
	cases := []struct {
		name    string
		total   int64
		weights []int64
		want    []string
	}{
		{name: "equal weights tie to earliest", total: 2, weights: []int64{1, 1, 1}, want: []string{"1", "1", "0"}},
		{name: "larger remainder wins", total: 10, weights: []int64{1, 2}, want: []string{"3", "7"}},
		{name: "exact split", total: 9, weights: []int64{1, 2}, want: []string{"3", "6"}},
		{name: "zero weights fall to first", total: 4, weights: []int64{0, 0}, want: []string{"4", "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			weights := make([]*big.Int, len(tc.weights))
			for i, w := range tc.weights {
				weights[i] = big.NewInt(w)
			}
			shares := splitProRata(big.NewInt(tc.total), weights)
			got := make([]string, len(shares))
			for i, s := range shares {
				got[i] = s.String()
			}
			require.Equal(t, tc.want, got)
		})
	}
}
