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

// JoinKind reports how a joining account obtained its slot.
type JoinKind int

const (
	// JoinInPlace indicates that the account already had a slot and its
	// stake was increased.
	JoinInPlace JoinKind = iota
	// JoinReassigned indicates that an abandoned slot was reused.
	JoinReassigned
	// JoinNewLeaf indicates that the tree was extended by a new leaf.
	JoinNewLeaf
)

func (k JoinKind) String() string {
	switch k {
	case JoinInPlace:
		return "in-place"
	case JoinReassigned:
		return "reassigned"
	case JoinNewLeaf:
		return "new-leaf"
	}
	return fmt.Sprintf("JoinKind(%d)", int(k))
}

// allocation is the slot selected for a joining account.
type allocation struct {
	index int
	kind  JoinKind
}

// planAllocation selects the slot for the given account without modifying
// the tree. Known accounts keep their slot, new accounts get the most
// recently abandoned slot or, if there is none, the next free leaf.
func (t *Tree) planAllocation(account common.Address) (allocation, error) {
	if index, found := t.accounts[account]; found {
		return allocation{index: index, kind: JoinInPlace}, nil
	}
	if n := len(t.abandoned); n > 0 {
		return allocation{index: t.abandoned[n-1], kind: JoinReassigned}, nil
	}
	if len(t.nodes) < t.config.Capacity() {
		return allocation{index: len(t.nodes), kind: JoinNewLeaf}, nil
	}
	return allocation{}, fmt.Errorf("%w: all %d slots are occupied", ErrTreeFull, len(t.nodes))
}

// allocate assigns the planned slot to the account and sets its stake to the
// given value. Lazy fees are pushed to the slot before it is modified, so no
// stale fees end up being credited to the new occupant.
func (t *Tree) allocate(account common.Address, slot allocation, stake amount.Amount) error {
	switch slot.kind {
	case JoinInPlace:
		if err := t.propagateFeesToNode(slot.index); err != nil {
			return err
		}
		t.nodes[slot.index].stake = stake

	case JoinReassigned:
		if err := t.propagateFeesToNode(slot.index); err != nil {
			return err
		}
		t.abandoned = t.abandoned[:len(t.abandoned)-1]
		n := &t.nodes[slot.index]
		n.account = account
		n.occupied = true
		n.stake = stake
		n.fees = amount.New()
		n.lazyFees = amount.New()
		// descendantStake is retained, it still covers the subtree below.

	case JoinNewLeaf:
		if err := t.propagateFeesToNode(parent(slot.index)); err != nil {
			return err
		}
		t.nodes = append(t.nodes, node{
			account:  account,
			occupied: true,
			stake:    stake,
		})

	default:
		return fmt.Errorf("unknown allocation kind %v", slot.kind)
	}
	t.accounts[account] = slot.index
	return nil
}

// planAncestorUpdate computes the descendant stakes of all ancestors of the
// given index after adding (or removing) the given delta. The result lists
// the new values from the parent up to the root.
func (t *Tree) planAncestorUpdate(index int, delta amount.Amount, add bool) ([]amount.Amount, error) {
	res := make([]amount.Amount, 0, depth(index))
	for cur := index; cur > 0; {
		cur = parent(cur)
		var value amount.Amount
		var err error
		if add {
			value, err = amount.CheckedAdd(t.nodes[cur].descendantStake, delta)
		} else {
			value, err = amount.CheckedSub(t.nodes[cur].descendantStake, delta)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update descendant stake of node %d: %w", cur, err)
		}
		res = append(res, value)
	}
	return res, nil
}

// applyAncestorUpdate writes values produced by planAncestorUpdate.
func (t *Tree) applyAncestorUpdate(index int, values []amount.Amount) {
	for i, cur := 0, index; cur > 0; i++ {
		cur = parent(cur)
		t.nodes[cur].descendantStake = values[i]
	}
}
