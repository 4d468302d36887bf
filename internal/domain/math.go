package domain

import (
	"fmt"
	"math/bits"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
)

// CheckedAdd складывает без переполнения.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%d + %d: %w", a, b, common.ErrArithmeticOverflow)
	}
	return sum, nil
}

// CheckedSub вычитает без ухода в минус.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%d - %d: %w", a, b, common.ErrArithmeticOverflow)
	}
	return diff, nil
}

// MulDiv считает floor(a*b/c) со 128-битным промежуточным произведением.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("деление на ноль: %w", common.ErrArithmeticOverflow)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, fmt.Errorf("%d * %d / %d: %w", a, b, c, common.ErrArithmeticOverflow)
	}
	quo, _ := bits.Div64(hi, lo, c)
	return quo, nil
}
