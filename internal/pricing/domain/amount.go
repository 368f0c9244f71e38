package domain

import (
	"math"
	"math/bits"
)

// MulAmount multiplies two non-negative minor-unit values. ok is false when
// an operand is negative or the product does not fit in int64.
func MulAmount(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// AddAmount adds two minor-unit values. ok is false on int64 overflow.
func AddAmount(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// SumAmounts adds values left to right and fails with an amount_overflow
// validation error instead of wrapping.
func SumAmounts(values ...int64) (int64, error) {
	var total int64
	for _, v := range values {
		next, ok := AddAmount(total, v)
		if !ok {
			return 0, errAmountOverflow()
		}
		total = next
	}
	return total, nil
}

func errAmountOverflow() *Error {
	return NewValidationError("amount_overflow", "amount exceeds the supported range")
}
