// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package lptree implements the liquidity tree, the accounting structure
// tracking the stake and accrued fees of the liquidity providers (LPs) of a
// single pool.
//
// LPs occupy slots of an array-backed complete binary tree. Each node keeps
// the stake of its own occupant and the aggregated stake of its subtree.
// Fees are deposited at the root in O(1) and only pushed down towards a slot
// when that slot is accessed, thereby distributing fees proportionally to
// stake in O(depth) per operation instead of O(#LPs).
//
// A Tree is not safe for concurrent use. Each operation has to run to
// completion with exclusive access to the tree.
package lptree

import (
	"fmt"
	"unsafe"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Tree is the liquidity tree of a single pool.
type Tree struct {
	config    Config
	nodes     []node
	accounts  map[common.Address]int // account -> slot index
	abandoned []int                  // stack of slots left by fully exited accounts
}

// NewTree creates a tree with the given account as the root occupant.
func NewTree(config Config, account common.Address, stake amount.Amount) (*Tree, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if stake.IsZero() {
		return nil, ErrZeroStake
	}
	return &Tree{
		config: config,
		nodes: []node{{
			account:  account,
			occupied: true,
			stake:    stake,
		}},
		accounts: map[common.Address]int{account: 0},
	}, nil
}

// Join adds the given stake to the account. Accounts not yet present in the
// tree are assigned a slot first, which fails with ErrTreeFull if no slot is
// available. The returned kind describes how the slot was obtained.
func (t *Tree) Join(account common.Address, stake amount.Amount) (JoinKind, error) {
	if stake.IsZero() {
		return 0, ErrZeroStake
	}
	slot, err := t.planAllocation(account)
	if err != nil {
		return 0, err
	}
	newStake := stake
	if slot.kind == JoinInPlace {
		if newStake, err = amount.CheckedAdd(t.nodes[slot.index].stake, stake); err != nil {
			return 0, err
		}
	}
	// Every total stake in the tree is bounded by the root's total stake.
	total, err := t.TotalShares()
	if err != nil {
		return 0, err
	}
	if _, err := amount.CheckedAdd(total, stake); err != nil {
		return 0, err
	}
	ancestors, err := t.planAncestorUpdate(slot.index, stake, true)
	if err != nil {
		return 0, err
	}

	if err := t.allocate(account, slot, newStake); err != nil {
		return 0, err
	}
	t.applyAncestorUpdate(slot.index, ancestors)
	return slot.kind, nil
}

// Exit removes the given stake from the account. It fails if the account has
// fees which have not been withdrawn yet. An account exiting with all of its
// stake loses its slot, which is retained for reuse by future joins.
//
// Pending fees are pushed down the path to the account's slot before the
// preconditions are checked, so a rejected exit may still have moved pending
// fees towards the slots entitled to them. Stakes and the fees owed to each
// account are unchanged in that case.
func (t *Tree) Exit(account common.Address, stake amount.Amount) error {
	index, found := t.accounts[account]
	if !found {
		return fmt.Errorf("%w: %v", ErrAccountNotFound, account)
	}
	if err := t.propagateFeesToNode(index); err != nil {
		return err
	}
	cur := &t.nodes[index]
	if !cur.fees.IsZero() {
		return fmt.Errorf("%w: %v has %v fees", ErrUnwithdrawnFees, account, cur.fees)
	}
	newStake, underflow := amount.SubUnderflow(cur.stake, stake)
	if underflow {
		return fmt.Errorf("%w: %v holds %v, requested %v", ErrInsufficientStake, account, cur.stake, stake)
	}
	ancestors, err := t.planAncestorUpdate(index, stake, false)
	if err != nil {
		return err
	}

	cur.stake = newStake
	if newStake.IsZero() {
		cur.account = common.Address{}
		cur.occupied = false
		delete(t.accounts, account)
		t.abandoned = append(t.abandoned, index)
	}
	t.applyAncestorUpdate(index, ancestors)
	return nil
}

// DepositFees registers fees to be distributed among all LPs proportionally
// to their stake. The distribution happens lazily.
func (t *Tree) DepositFees(fees amount.Amount) error {
	root := &t.nodes[0]
	lazy, err := amount.CheckedAdd(root.lazyFees, fees)
	if err != nil {
		return err
	}
	root.lazyFees = lazy
	return nil
}

// WithdrawFees returns the fees credited to the given account and resets them
// to zero. A second call without intermediate deposits returns zero.
func (t *Tree) WithdrawFees(account common.Address) (amount.Amount, error) {
	index, found := t.accounts[account]
	if !found {
		return amount.Amount{}, fmt.Errorf("%w: %v", ErrAccountNotFound, account)
	}
	if err := t.propagateFeesToNode(index); err != nil {
		return amount.Amount{}, err
	}
	fees := t.nodes[index].fees
	t.nodes[index].fees = amount.New()
	return fees, nil
}

// SharesOf returns the stake held by the given account.
func (t *Tree) SharesOf(account common.Address) (amount.Amount, error) {
	index, found := t.accounts[account]
	if !found {
		return amount.Amount{}, fmt.Errorf("%w: %v", ErrAccountNotFound, account)
	}
	return t.nodes[index].stake, nil
}

// TotalShares returns the stake held by all accounts.
func (t *Tree) TotalShares() (amount.Amount, error) {
	return t.nodes[0].totalStake()
}

// Split would transfer stake between accounts without exiting and joining.
// This is not supported by the liquidity tree.
func (t *Tree) Split(from, to common.Address, stake amount.Amount) error {
	return fmt.Errorf("%w: splitting %v shares from %v to %v", ErrNotImplemented, stake, from, to)
}

// Contains returns true if the given account holds a slot.
func (t *Tree) Contains(account common.Address) bool {
	_, found := t.accounts[account]
	return found
}

// Accounts lists all accounts holding a slot, in slot order.
func (t *Tree) Accounts() []common.Address {
	res := make([]common.Address, 0, len(t.accounts))
	for i := range t.nodes {
		if t.nodes[i].occupied {
			res = append(res, t.nodes[i].account)
		}
	}
	return res
}

// NumberOfLPs is the number of accounts holding a slot.
func (t *Tree) NumberOfLPs() int {
	return len(t.accounts)
}

// Size is the number of slots in the current shape of the tree.
func (t *Tree) Size() int {
	return len(t.nodes)
}

// Capacity is the maximum number of slots.
func (t *Tree) Capacity() int {
	return t.config.Capacity()
}

func (t *Tree) Config() Config {
	return t.config
}

// Slot is a read-only view on a slot, intended for diagnostics.
type Slot struct {
	Index           int
	Occupied        bool
	Account         common.Address
	Stake           amount.Amount
	Fees            amount.Amount
	DescendantStake amount.Amount
	LazyFees        amount.Amount
}

// Slots returns views on all slots of the tree's current shape. Fees of slots
// may be incomplete, since lazy fees are not propagated by this call.
func (t *Tree) Slots() []Slot {
	res := make([]Slot, len(t.nodes))
	for i, n := range t.nodes {
		res[i] = Slot{
			Index:           i,
			Occupied:        n.occupied,
			Account:         n.account,
			Stake:           n.stake,
			Fees:            n.fees,
			DescendantStake: n.descendantStake,
			LazyFees:        n.lazyFees,
		}
	}
	return res
}

// Clone creates an independent deep copy of this tree.
func (t *Tree) Clone() *Tree {
	return &Tree{
		config:    t.config,
		nodes:     slices.Clone(t.nodes),
		accounts:  maps.Clone(t.accounts),
		abandoned: slices.Clone(t.abandoned),
	}
}

func (t *Tree) GetMemoryFootprint() *common.MemoryFootprint {
	nodeSize := unsafe.Sizeof(node{})
	entrySize := unsafe.Sizeof(common.Address{}) + unsafe.Sizeof(int(0))
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*t))
	mf.AddChild("nodes", common.NewMemoryFootprint(nodeSize*uintptr(cap(t.nodes))))
	mf.AddChild("accounts", common.NewMemoryFootprint(entrySize*uintptr(len(t.accounts))))
	mf.AddChild("abandoned", common.NewMemoryFootprint(unsafe.Sizeof(int(0))*uintptr(cap(t.abandoned))))
	return mf
}

func (t *Tree) String() string {
	return fmt.Sprintf("LiquidityTree{%v, slots: %d, lps: %d, abandoned: %d}", t.config, len(t.nodes), len(t.accounts), len(t.abandoned))
}
