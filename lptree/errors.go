// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package lptree

import (
	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
)

const (
	// ErrTreeFull is returned by Join if neither an abandoned slot nor a
	// free leaf within the configured maximum depth is available.
	ErrTreeFull = common.ConstError("liquidity tree is full")

	// ErrAccountNotFound is returned for operations on accounts not holding
	// a slot in the tree.
	ErrAccountNotFound = common.ConstError("account not found")

	// ErrNodeNotFound signals an index outside of the tree's shape. It
	// indicates an internal inconsistency and is not expected in normal
	// operation.
	ErrNodeNotFound = common.ConstError("node not found")

	// ErrInsufficientStake is returned by Exit if the account holds less
	// stake than requested to be removed.
	ErrInsufficientStake = common.ConstError("insufficient stake")

	// ErrUnwithdrawnFees is returned by Exit if fees are still credited to
	// the exiting account. They have to be withdrawn first.
	ErrUnwithdrawnFees = common.ConstError("unwithdrawn fees")

	// ErrZeroStake is returned by Join for a zero stake.
	ErrZeroStake = common.ConstError("stake must be positive")

	// ErrNotImplemented is returned by Split.
	ErrNotImplemented = common.ConstError("not implemented")

	// ErrInvalidDepth is returned for configurations exceeding the supported
	// depth range.
	ErrInvalidDepth = common.ConstError("invalid maximum depth")

	// ErrCorruptedEncoding is returned when decoding a tree from an invalid
	// or tampered blob.
	ErrCorruptedEncoding = common.ConstError("corrupted liquidity tree encoding")

	// Arithmetic errors are shared with the amount package.
	ErrArithmeticOverflow  = amount.ErrOverflow
	ErrArithmeticUnderflow = amount.ErrUnderflow
	ErrDivisionByZero      = amount.ErrDivisionByZero
)
