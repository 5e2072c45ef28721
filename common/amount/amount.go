// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package amount

import (
	"fmt"
	"math/big"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/holiman/uint256"
)

// BytesLength is the length of the byte representation of an amount.
const BytesLength = 32

const (
	// ErrOverflow is reported whenever the result of an operation does not
	// fit into 256 bits.
	ErrOverflow = common.ConstError("arithmetic overflow")
	// ErrUnderflow is reported whenever a subtraction would produce a
	// negative result.
	ErrUnderflow = common.ConstError("arithmetic underflow")
	// ErrDivisionByZero is reported for divisions by a zero amount.
	ErrDivisionByZero = common.ConstError("division by zero")
)

// Amount is a 256-bit unsigned integer used for token values like stakes,
// pool shares and fees. Amounts are fixed-point values, no floating point is
// involved in any of their operations.
type Amount struct {
	internal uint256.Int
}

// New creates a new Amount from up to 4 uint64 arguments. The
// arguments are given in the Big Endian order. No argument results in a value of zero.
// The constructor panics if more than 4 arguments are given.
func New(args ...uint64) Amount {
	if len(args) > 4 {
		panic("too many arguments")
	}
	result := Amount{}
	offset := 4 - len(args)
	for i := 0; i < len(args); i++ {
		result.internal[3-i-offset] = args[i]
	}
	return result
}

// NewFromUint256 creates a new amount from an uint256.
func NewFromUint256(value *uint256.Int) Amount {
	return Amount{internal: *value}
}

// NewFromBytes creates a new Amount instance from up to 32 byte arguments.
// The arguments are given in the Big Endian order. No argument results in a
// value of zero. The constructor panics if more than 32 arguments are given.
func NewFromBytes(bytes ...byte) Amount {
	if len(bytes) > BytesLength {
		panic("too many arguments")
	}
	result := Amount{}
	result.internal.SetBytes(bytes)
	return result
}

// NewFromBigInt creates a new Amount instance from a big.Int.
func NewFromBigInt(b *big.Int) (Amount, error) {
	if b == nil {
		return New(), nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("cannot construct Amount from negative big.Int")
	}
	result := uint256.Int{}
	overflow := result.SetFromBig(b)
	if overflow {
		return Amount{}, fmt.Errorf("big.Int has more than 256 bits")
	}
	return Amount{internal: result}, nil
}

// NewFromDecimal parses a non-negative base-10 number.
func NewFromDecimal(str string) (Amount, error) {
	value, err := uint256.FromDecimal(str)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", str, err)
	}
	return Amount{internal: *value}, nil
}

// Uint64 returns the amount as an uint64. The result is only valid if `IsUint64()` returns true.
func (a Amount) Uint64() uint64 {
	return a.internal.Uint64()
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool {
	return a.internal.IsZero()
}

// IsUint64 returns true if the amount is representable as an uint64.
func (a Amount) IsUint64() bool {
	return a.internal.IsUint64()
}

// Cmp compares a and b and returns -1 if a < b, 0 if a == b, and +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.internal.Cmp(&b.internal)
}

// Lt returns true if a < b.
func (a Amount) Lt(b Amount) bool {
	return a.internal.Lt(&b.internal)
}

// ToBig returns a bigInt version of the amount.
func (a Amount) ToBig() *big.Int {
	return a.internal.ToBig()
}

// String returns the decimal representation of the amount.
func (a Amount) String() string {
	return a.internal.Dec()
}

// Uint256 returns the amount as an uint256.
func (a Amount) Uint256() uint256.Int {
	return a.internal
}

// Bytes32 returns the amount as a 32 byte array.
func (a Amount) Bytes32() [BytesLength]byte {
	return a.internal.Bytes32()
}

// Add returns the sum of two amounts, wrapping around on overflow.
func Add(a, b Amount) Amount {
	result := Amount{}
	result.internal.Add(&a.internal, &b.internal)
	return result
}

// AddOverflow returns the sum of two amounts and a boolean indicating overflow.
func AddOverflow(a, b Amount) (Amount, bool) {
	result := Amount{}
	_, overflow := result.internal.AddOverflow(&a.internal, &b.internal)
	return result, overflow
}

// Sub returns the difference of two amounts, wrapping around on underflow.
func Sub(a, b Amount) Amount {
	result := Amount{}
	result.internal.Sub(&a.internal, &b.internal)
	return result
}

// SubUnderflow returns the difference of two amounts and a boolean indicating underflow.
func SubUnderflow(a, b Amount) (Amount, bool) {
	result := Amount{}
	_, underflow := result.internal.SubOverflow(&a.internal, &b.internal)
	return result, underflow
}

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b Amount) (Amount, error) {
	res, overflow := AddOverflow(a, b)
	if overflow {
		return Amount{}, fmt.Errorf("%w: %v + %v", ErrOverflow, a, b)
	}
	return res, nil
}

// CheckedSub returns a - b or ErrUnderflow.
func CheckedSub(a, b Amount) (Amount, error) {
	res, underflow := SubUnderflow(a, b)
	if underflow {
		return Amount{}, fmt.Errorf("%w: %v - %v", ErrUnderflow, a, b)
	}
	return res, nil
}

// MulDiv computes floor(a * b / d) using a 512-bit intermediate product, so
// only a final result exceeding 256 bits is reported as ErrOverflow. All
// proportional splits of amounts are computed with this function to keep
// rounding uniform: the result is always rounded towards zero.
func MulDiv(a, b, d Amount) (Amount, error) {
	if d.IsZero() {
		return Amount{}, fmt.Errorf("%w: %v * %v / 0", ErrDivisionByZero, a, b)
	}
	result := Amount{}
	if _, overflow := result.internal.MulDivOverflow(&a.internal, &b.internal, &d.internal); overflow {
		return Amount{}, fmt.Errorf("%w: %v * %v / %v", ErrOverflow, a, b, d)
	}
	return result, nil
}

// Max returns the maximum amount.
func Max() Amount {
	return New(0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF)
}
