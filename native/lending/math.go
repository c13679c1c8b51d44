package lending

import (
	"math/big"
	"sort"
)

var (
	basisPoints = big.NewInt(10_000)
	// basisPoints * 12 months; the denominator of simple interest per month.
	interestDenominator = big.NewInt(120_000)
)

// TotalOwed returns principal plus simple interest over the full term:
// amount * (1 + rate/10000 * term/12), rounded down.
func TotalOwed(amount *big.Int, rateBps, termMonths uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	factor := new(big.Int).Mul(new(big.Int).SetUint64(rateBps), new(big.Int).SetUint64(termMonths))
	factor.Add(factor, interestDenominator)
	owed := new(big.Int).Mul(amount, factor)
	return owed.Quo(owed, interestDenominator)
}

// MonthlyPayment spreads the total owed evenly across the term.
func MonthlyPayment(amount *big.Int, rateBps, termMonths uint64) *big.Int {
	if termMonths == 0 {
		return big.NewInt(0)
	}
	owed := TotalOwed(amount, rateBps, termMonths)
	return owed.Quo(owed, new(big.Int).SetUint64(termMonths))
}

// PlatformFee returns funded * feeBps / 10000, rounded down.
func PlatformFee(funded *big.Int, feeBps uint64) *big.Int {
	if funded == nil || funded.Sign() <= 0 || feeBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(funded, new(big.Int).SetUint64(feeBps))
	return fee.Quo(fee, basisPoints)
}

// splitProRata divides total across weights in proportion using the
// largest-remainder method: every share is rounded down, then the leftover
// units go one each to the largest remainders. Ties favour the lower index,
// so earlier lenders win. The shares always sum to total.
func splitProRata(total *big.Int, weights []*big.Int) []*big.Int {
	shares := make([]*big.Int, len(weights))
	if len(weights) == 0 {
		return shares
	}
	weightSum := new(big.Int)
	for _, w := range weights {
		if w != nil && w.Sign() > 0 {
			weightSum.Add(weightSum, w)
		}
	}
	remainders := make([]*big.Int, len(weights))
	distributed := new(big.Int)
	for i, w := range weights {
		share, rem := new(big.Int), new(big.Int)
		if weightSum.Sign() > 0 && w != nil && w.Sign() > 0 {
			share.Mul(total, w)
			share.QuoRem(share, weightSum, rem)
		}
		shares[i] = share
		remainders[i] = rem
		distributed.Add(distributed, share)
	}
	dust := new(big.Int).Sub(total, distributed)
	if dust.Sign() <= 0 {
		return shares
	}
	if weightSum.Sign() == 0 {
		shares[0].Add(shares[0], dust)
		return shares
	}
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].Cmp(remainders[order[b]]) > 0
	})
	// The leftover is the sum of remainders over weightSum, so it is smaller
	// than the number of weighted entries.
	one := big.NewInt(1)
	for _, i := range order {
		if dust.Sign() == 0 {
			break
		}
		shares[i].Add(shares[i], one)
		dust.Sub(dust, one)
	}
	return shares
}
