package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of base-unit digits in one whole unit.
const Decimals = 18

var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseAmount reads a non-negative amount in whole units ("1.25") and
// returns it in base units. A "wei" suffix marks the value as base units.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount: empty value")
	}
	if base, ok := strings.CutSuffix(trimmed, "wei"); ok {
		value, ok := new(big.Int).SetString(strings.TrimSpace(base), 10)
		if !ok || value.Sign() < 0 {
			return nil, fmt.Errorf("amount: invalid base-unit value %q", raw)
		}
		return value, nil
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if len(frac) > Decimals {
		return nil, fmt.Errorf("amount: more than %d decimal places in %q", Decimals, raw)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok || value.Sign() < 0 || strings.ContainsAny(whole+frac, "+-") {
		return nil, fmt.Errorf("amount: invalid value %q", raw)
	}
	return value, nil
}

// FormatAmount renders base units as whole units without trailing zeros.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(v)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, unitScale, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fracStr := fmt.Sprintf("%0*s", Decimals, frac.String())
	return sign + whole.String() + "." + strings.TrimRight(fracStr, "0")
}
