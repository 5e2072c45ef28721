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
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lptree/common/amount"
)

// Check verifies the structural invariants of the tree:
//   - the shape is non-empty and within the configured capacity
//   - each node's descendant stake is the total stake of its children
//   - occupied slots have a positive stake, abandoned ones none
//   - the account index matches the occupied slots
//   - every abandoned slot is listed exactly once in the free list
//
// All violations found are reported.
func (t *Tree) Check() error {
	errs := []error{}
	if err := t.config.Validate(); err != nil {
		errs = append(errs, err)
	} else if len(t.nodes) == 0 || len(t.nodes) > t.config.Capacity() {
		errs = append(errs, fmt.Errorf("invalid number of slots %d, capacity %d", len(t.nodes), t.config.Capacity()))
	}

	sum := amount.New()
	for i := range t.nodes {
		n := &t.nodes[i]
		want := amount.New()
		for _, child := range []int{leftChild(i), rightChild(i)} {
			if child >= len(t.nodes) {
				continue
			}
			childTotal, err := t.nodes[child].totalStake()
			if err != nil {
				errs = append(errs, fmt.Errorf("node %d: %w", child, err))
				continue
			}
			if want, err = amount.CheckedAdd(want, childTotal); err != nil {
				errs = append(errs, fmt.Errorf("node %d: %w", i, err))
			}
		}
		if n.descendantStake != want {
			errs = append(errs, fmt.Errorf("node %d: descendant stake is %v, children hold %v", i, n.descendantStake, want))
		}

		if n.occupied {
			if n.stake.IsZero() {
				errs = append(errs, fmt.Errorf("node %d: occupied by %v without stake", i, n.account))
			}
			if index, found := t.accounts[n.account]; !found || index != i {
				errs = append(errs, fmt.Errorf("node %d: account %v not indexed", i, n.account))
			}
			var err error
			if sum, err = amount.CheckedAdd(sum, n.stake); err != nil {
				errs = append(errs, fmt.Errorf("node %d: %w", i, err))
			}
		} else if !n.stake.IsZero() {
			errs = append(errs, fmt.Errorf("node %d: abandoned slot with stake %v", i, n.stake))
		}
	}

	for account, index := range t.accounts {
		if index < 0 || index >= len(t.nodes) || !t.nodes[index].occupied || t.nodes[index].account != account {
			errs = append(errs, fmt.Errorf("account %v indexed to invalid slot %d", account, index))
		}
	}

	listed := map[int]bool{}
	for _, index := range t.abandoned {
		if index < 0 || index >= len(t.nodes) {
			errs = append(errs, fmt.Errorf("abandoned slot %d out of range", index))
			continue
		}
		if listed[index] {
			errs = append(errs, fmt.Errorf("abandoned slot %d listed multiple times", index))
		}
		listed[index] = true
		if t.nodes[index].occupied {
			errs = append(errs, fmt.Errorf("abandoned slot %d is occupied", index))
		}
	}
	for i := range t.nodes {
		if !t.nodes[i].occupied && !listed[i] {
			errs = append(errs, fmt.Errorf("abandoned slot %d missing in free list", i))
		}
	}

	if len(t.nodes) > 0 {
		if total, err := t.nodes[0].totalStake(); err != nil {
			errs = append(errs, fmt.Errorf("root: %w", err))
		} else if total != sum {
			errs = append(errs, fmt.Errorf("total stake %v does not match stake of all accounts %v", total, sum))
		}
	}
	return errors.Join(errs...)
}
