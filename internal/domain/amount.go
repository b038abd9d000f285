package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// FormatAmount converts base units into a human decimal amount.
func FormatAmount(amount uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals)
}

// ParseAmount converts a human decimal amount into base units.
// The amount must be non-negative, representable at the given precision
// and fit into uint64.
func ParseAmount(d decimal.Decimal, decimals int32) (uint64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", d)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s exceeds %d decimal places", d, decimals)
	}
	bi := shifted.BigInt()
	if bi.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("amount %s: %w", d, ErrNumericalOverflow)
	}
	return bi.Uint64(), nil
}
