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
	"fmt"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
)

// node is a single slot of the tree. A slot is occupied by at most one
// liquidity provider at a time; abandoned slots have no account and no stake
// but may still aggregate the stake of their descendants.
type node struct {
	account  common.Address
	occupied bool

	// stake is the slot's own stake, zero if abandoned.
	stake amount.Amount
	// fees credited to the occupant, ready to be withdrawn.
	fees amount.Amount
	// descendantStake is the sum of the total stake of both children.
	descendantStake amount.Amount
	// lazyFees are fees deposited at or above this node which have not been
	// distributed to this node's fees and its children yet.
	lazyFees amount.Amount
}

// totalStake is the stake of this node and all its descendants.
func (n *node) totalStake() (amount.Amount, error) {
	return amount.CheckedAdd(n.stake, n.descendantStake)
}

func (n *node) String() string {
	account := "-"
	if n.occupied {
		account = n.account.String()
	}
	return fmt.Sprintf(
		"{account: %s, stake: %v, fees: %v, descendant: %v, lazy: %v}",
		account, n.stake, n.fees, n.descendantStake, n.lazyFees,
	)
}

// Slots are addressed as in a complete binary tree stored in an array.

func leftChild(index int) int {
	return 2*index + 1
}

func rightChild(index int) int {
	return 2*index + 2
}

func parent(index int) int {
	return (index - 1) / 2
}

// depth of the given index, the root being at depth 0.
func depth(index int) int {
	res := 0
	for index > 0 {
		index = parent(index)
		res++
	}
	return res
}
