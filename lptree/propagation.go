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

	"github.com/Fantom-foundation/lptree/common/amount"
)

// pathFromRoot lists the indexes from the root down to the given index,
// both inclusive.
func (t *Tree) pathFromRoot(index int) ([]int, error) {
	if index < 0 || index >= len(t.nodes) {
		return nil, fmt.Errorf("%w: index %d, size %d", ErrNodeNotFound, index, len(t.nodes))
	}
	path := make([]int, depth(index)+1)
	for i := len(path) - 1; i >= 0; i-- {
		path[i] = index
		index = parent(index)
	}
	return path, nil
}

// propagateFeesToNode pushes lazy fees down along the path from the root to
// the given node. Afterwards, the node's fees include every deposit
// attributable to it. Parents have to be processed before their children,
// since each step feeds the lazy fees of the next one.
func (t *Tree) propagateFeesToNode(index int) error {
	path, err := t.pathFromRoot(index)
	if err != nil {
		return err
	}
	for _, cur := range path {
		if err := t.propagateFees(cur); err != nil {
			return err
		}
	}
	return nil
}

// isWeakLeaf is true if there is no stake below the given node to forward
// fees to, regardless of whether the shape has room for children.
func (t *Tree) isWeakLeaf(index int) bool {
	return leftChild(index) >= len(t.nodes) || t.nodes[index].descendantStake.IsZero()
}

// propagateFees distributes the lazy fees of a single node. The node keeps
// the share matching its own stake, the rest is forwarded to the children's
// lazy fees. The left child's share is rounded down and the right child
// receives the exact remainder. A node without any stake in its subtree keeps
// its lazy fees until stake reappears.
//
// All new values are computed before any of them is written, so an error
// leaves the tree untouched.
func (t *Tree) propagateFees(index int) error {
	if index < 0 || index >= len(t.nodes) {
		return fmt.Errorf("%w: index %d, size %d", ErrNodeNotFound, index, len(t.nodes))
	}
	cur := &t.nodes[index]
	if cur.lazyFees.IsZero() {
		return nil
	}
	total, err := cur.totalStake()
	if err != nil {
		return err
	}
	if total.IsZero() {
		return nil
	}

	if t.isWeakLeaf(index) {
		fees, err := amount.CheckedAdd(cur.fees, cur.lazyFees)
		if err != nil {
			return err
		}
		cur.fees = fees
		cur.lazyFees = amount.New()
		return nil
	}

	own, err := amount.MulDiv(cur.stake, cur.lazyFees, total)
	if err != nil {
		return err
	}
	remaining, err := amount.CheckedSub(cur.lazyFees, own)
	if err != nil {
		return err
	}
	fees, err := amount.CheckedAdd(cur.fees, own)
	if err != nil {
		return err
	}

	lhs := &t.nodes[leftChild(index)]
	lhsTotal, err := lhs.totalStake()
	if err != nil {
		return err
	}
	lhsShare, err := amount.MulDiv(lhsTotal, remaining, cur.descendantStake)
	if err != nil {
		return err
	}
	rhsShare, err := amount.CheckedSub(remaining, lhsShare)
	if err != nil {
		return err
	}
	lhsLazy, err := amount.CheckedAdd(lhs.lazyFees, lhsShare)
	if err != nil {
		return err
	}

	var rhs *node
	var rhsLazy amount.Amount
	if r := rightChild(index); r < len(t.nodes) {
		rhs = &t.nodes[r]
		if rhsLazy, err = amount.CheckedAdd(rhs.lazyFees, rhsShare); err != nil {
			return err
		}
	} else if !rhsShare.IsZero() {
		// Without a right child, all descendant stake is in the left subtree
		// and the remainder has to be zero.
		return fmt.Errorf("%w: fees %v assigned to missing right child of %d", ErrNodeNotFound, rhsShare, index)
	}

	cur.fees = fees
	cur.lazyFees = amount.New()
	lhs.lazyFees = lhsLazy
	if rhs != nil {
		rhs.lazyFees = rhsLazy
	}
	return nil
}
