// Package amount implements checked arithmetic for vault balances.
//
// Balances are signed 128-bit quantities. Values are carried as
// cosmossdk.io/math Int and every operation that can leave the i128 range
// reports ErrOverflow instead of wrapping.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// BpsDenominator is the basis-point scale used for fees and slippage.
const BpsDenominator = 10_000

// ErrOverflow is returned when a result does not fit in a signed 128-bit integer.
var ErrOverflow = errors.New("arithmetic overflow")

// ErrDivisionByZero is returned when a quotient has a zero divisor.
var ErrDivisionByZero = errors.New("division by zero")

var (
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Max returns the largest representable amount (2^127 - 1).
func Max() sdkmath.Int { return sdkmath.NewIntFromBigInt(maxI128) }

// Min returns the smallest representable amount (-2^127).
func Min() sdkmath.Int { return sdkmath.NewIntFromBigInt(minI128) }

// Zero is a convenience for sdkmath.ZeroInt.
func Zero() sdkmath.Int { return sdkmath.ZeroInt() }

// New returns an amount from an int64.
func New(v int64) sdkmath.Int { return sdkmath.NewInt(v) }

// Parse decodes a base-10 amount and checks it fits.
func Parse(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid amount %q", s)
	}
	return Check(v)
}

// Check reports ErrOverflow when v is outside the i128 range.
func Check(v sdkmath.Int) (sdkmath.Int, error) {
	if v.IsNil() {
		return sdkmath.ZeroInt(), nil
	}
	b := v.BigInt()
	if b.Cmp(maxI128) > 0 || b.Cmp(minI128) < 0 {
		return sdkmath.Int{}, ErrOverflow
	}
	return v, nil
}

// Add returns a+b.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	sum, err := a.SafeAdd(b)
	if err != nil {
		return sdkmath.Int{}, ErrOverflow
	}
	return Check(sum)
}

// Sub returns a-b.
func Sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	diff, err := a.SafeSub(b)
	if err != nil {
		return sdkmath.Int{}, ErrOverflow
	}
	return Check(diff)
}

// Mul returns a*b.
func Mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	prod, err := a.SafeMul(b)
	if err != nil {
		return sdkmath.Int{}, ErrOverflow
	}
	return Check(prod)
}

// Quo returns a/b truncated toward zero.
func Quo(a, b sdkmath.Int) (sdkmath.Int, error) {
	if b.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	q, err := a.SafeQuo(b)
	if err != nil {
		return sdkmath.Int{}, ErrOverflow
	}
	return Check(q)
}

// MulDiv returns floor(a*b/c) for non-negative operands. The intermediate
// product must itself fit in i128.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	prod, err := Mul(a, b)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return Quo(prod, c)
}

// Abs returns |v|.
func Abs(v sdkmath.Int) (sdkmath.Int, error) {
	if v.IsNegative() {
		return Check(v.Neg())
	}
	return v, nil
}

// OrZero returns v, or zero when v was never set.
func OrZero(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}
