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
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
)

func addr(i int) common.Address {
	return common.AddressFromNumber(i)
}

func newTestTree(t *testing.T, maxDepth int, root common.Address, stake uint64) *Tree {
	t.Helper()
	tree, err := NewTree(Config{MaxDepth: maxDepth}, root, amount.New(stake))
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	return tree
}

func join(t *testing.T, tree *Tree, account common.Address, stake uint64) JoinKind {
	t.Helper()
	kind, err := tree.Join(account, amount.New(stake))
	if err != nil {
		t.Fatalf("failed to join %v with %d: %v", account, stake, err)
	}
	return kind
}

func withdraw(t *testing.T, tree *Tree, account common.Address) amount.Amount {
	t.Helper()
	fees, err := tree.WithdrawFees(account)
	if err != nil {
		t.Fatalf("failed to withdraw fees of %v: %v", account, err)
	}
	return fees
}

func checkTree(t *testing.T, tree *Tree) {
	t.Helper()
	if err := tree.Check(); err != nil {
		t.Fatalf("inconsistent tree: %v", err)
	}
}

func TestTree_NewTreeHasRootOccupant(t *testing.T) {
	tree := newTestTree(t, 3, addr(1), 100)
	checkTree(t, tree)

	shares, err := tree.SharesOf(addr(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := amount.New(100); shares != want {
		t.Errorf("unexpected shares, wanted %v, got %v", want, shares)
	}
	total, err := tree.TotalShares()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := amount.New(100); total != want {
		t.Errorf("unexpected total shares, wanted %v, got %v", want, total)
	}
	if got, want := tree.Size(), 1; got != want {
		t.Errorf("unexpected size, wanted %d, got %d", want, got)
	}
	if got, want := tree.Capacity(), 15; got != want {
		t.Errorf("unexpected capacity, wanted %d, got %d", want, got)
	}
	if got, want := tree.NumberOfLPs(), 1; got != want {
		t.Errorf("unexpected number of LPs, wanted %d, got %d", want, got)
	}
}

func TestTree_NewTreeRejectsInvalidParameters(t *testing.T) {
	if _, err := NewTree(Config{MaxDepth: -1}, addr(1), amount.New(1)); !errors.Is(err, ErrInvalidDepth) {
		t.Errorf("expected invalid depth error, got %v", err)
	}
	if _, err := NewTree(Config{MaxDepth: MaxSupportedDepth + 1}, addr(1), amount.New(1)); !errors.Is(err, ErrInvalidDepth) {
		t.Errorf("expected invalid depth error, got %v", err)
	}
	if _, err := NewTree(DefaultConfig(), addr(1), amount.New()); !errors.Is(err, ErrZeroStake) {
		t.Errorf("expected zero stake error, got %v", err)
	}
}

func TestTree_FeesOfTwoEqualStakesAreSplitEvenly(t *testing.T) {
	a, b := addr(1), addr(2)
	tree := newTestTree(t, DefaultMaxDepth, a, 100)
	if kind := join(t, tree, b, 100); kind != JoinNewLeaf {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinNewLeaf, kind)
	}
	if got, want := tree.accounts[b], 1; got != want {
		t.Errorf("unexpected slot of second LP, wanted %d, got %d", want, got)
	}

	if err := tree.DepositFees(amount.New(10)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}

	if err := tree.propagateFeesToNode(1); err != nil {
		t.Fatalf("failed to propagate fees: %v", err)
	}
	if got, want := tree.nodes[0].stake, amount.New(100); got != want {
		t.Errorf("unexpected root stake, wanted %v, got %v", want, got)
	}
	if got, want := tree.nodes[0].descendantStake, amount.New(100); got != want {
		t.Errorf("unexpected root descendant stake, wanted %v, got %v", want, got)
	}
	if got, want := tree.nodes[0].fees, amount.New(5); got != want {
		t.Errorf("unexpected fees of A, wanted %v, got %v", want, got)
	}
	if got, want := tree.nodes[1].fees, amount.New(5); got != want {
		t.Errorf("unexpected fees of B, wanted %v, got %v", want, got)
	}

	for _, account := range []common.Address{a, b} {
		if got, want := withdraw(t, tree, account), amount.New(5); got != want {
			t.Errorf("unexpected fees withdrawn by %v, wanted %v, got %v", account, want, got)
		}
		if got, want := withdraw(t, tree, account), amount.New(); got != want {
			t.Errorf("unexpected fees withdrawn by %v, wanted %v, got %v", account, want, got)
		}
	}
	checkTree(t, tree)
}

func TestTree_FeesAreProportionalToStake(t *testing.T) {
	tests := []struct {
		s1, s2, fees   uint64
		want1, want2   uint64
		roundingWindow uint64
	}{
		{30, 70, 1000, 300, 700, 0},
		{1, 2, 10, 3, 7, 1},
		{1, 1, 1, 0, 1, 1},
		{7, 13, 1_000_000_007, 350_000_002, 650_000_005, 1},
	}
	for _, test := range tests {
		tree := newTestTree(t, 2, addr(1), test.s1)
		join(t, tree, addr(2), test.s2)
		if err := tree.DepositFees(amount.New(test.fees)); err != nil {
			t.Fatalf("failed to deposit fees: %v", err)
		}
		got1 := withdraw(t, tree, addr(1)).Uint64()
		got2 := withdraw(t, tree, addr(2)).Uint64()
		if got1+got2 != test.fees {
			t.Errorf("fees not conserved, deposited %d, withdrawn %d+%d", test.fees, got1, got2)
		}
		if got1 > test.want1+test.roundingWindow || got1+test.roundingWindow < test.want1 {
			t.Errorf("unexpected fees of first LP, wanted %d±%d, got %d", test.want1, test.roundingWindow, got1)
		}
		if got2 > test.want2+test.roundingWindow || got2+test.roundingWindow < test.want2 {
			t.Errorf("unexpected fees of second LP, wanted %d±%d, got %d", test.want2, test.roundingWindow, got2)
		}
	}
}

func TestTree_JoinOfKnownAccountIncreasesStakeInPlace(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 50)
	if kind := join(t, tree, addr(2), 25); kind != JoinInPlace {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinInPlace, kind)
	}
	shares, err := tree.SharesOf(addr(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := amount.New(75); shares != want {
		t.Errorf("unexpected shares, wanted %v, got %v", want, shares)
	}
	if got, want := tree.Size(), 2; got != want {
		t.Errorf("unexpected size, wanted %d, got %d", want, got)
	}
	checkTree(t, tree)
}

func TestTree_JoinInPlaceRetainsFeesEarnedBefore(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 100)
	if err := tree.DepositFees(amount.New(10)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	join(t, tree, addr(2), 100)
	if err := tree.DepositFees(amount.New(30)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	// 5 from the first deposit, 2/3 of the second one
	if got, want := withdraw(t, tree, addr(2)), amount.New(25); got != want {
		t.Errorf("unexpected fees, wanted %v, got %v", want, got)
	}
	if got, want := withdraw(t, tree, addr(1)), amount.New(15); got != want {
		t.Errorf("unexpected fees, wanted %v, got %v", want, got)
	}
}

func TestTree_JoinWithZeroStakeIsRejected(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	before := tree.Clone()
	if _, err := tree.Join(addr(2), amount.New()); !errors.Is(err, ErrZeroStake) {
		t.Errorf("expected zero stake error, got %v", err)
	}
	if !reflect.DeepEqual(before, tree) {
		t.Errorf("tree was modified by failed join")
	}
}

func TestTree_MostRecentlyAbandonedSlotIsReusedFirst(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	for i := 2; i <= 4; i++ {
		join(t, tree, addr(i), 10)
	}
	// slots: 1 -> addr(2), 2 -> addr(3), 3 -> addr(4)
	if err := tree.Exit(addr(2), amount.New(10)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	if err := tree.Exit(addr(3), amount.New(10)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	checkTree(t, tree)
	common.AssertArraysEqual(t, []int{1, 2}, tree.abandoned)

	if kind := join(t, tree, addr(5), 1); kind != JoinReassigned {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinReassigned, kind)
	}
	if got, want := tree.accounts[addr(5)], 2; got != want {
		t.Errorf("unexpected slot, wanted %d, got %d", want, got)
	}
	if kind := join(t, tree, addr(6), 1); kind != JoinReassigned {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinReassigned, kind)
	}
	if got, want := tree.accounts[addr(6)], 1; got != want {
		t.Errorf("unexpected slot, wanted %d, got %d", want, got)
	}
	if kind := join(t, tree, addr(7), 1); kind != JoinNewLeaf {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinNewLeaf, kind)
	}
	if got, want := tree.accounts[addr(7)], 4; got != want {
		t.Errorf("unexpected slot, wanted %d, got %d", want, got)
	}
	checkTree(t, tree)
}

func TestTree_JoinOnFullTreeFailsWithoutModification(t *testing.T) {
	tree := newTestTree(t, 1, addr(1), 100)
	join(t, tree, addr(2), 100)
	join(t, tree, addr(3), 100)
	if err := tree.DepositFees(amount.New(7)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}

	before := tree.Clone()
	if _, err := tree.Join(addr(4), amount.New(1)); !errors.Is(err, ErrTreeFull) {
		t.Fatalf("expected tree full error, got %v", err)
	}
	if !reflect.DeepEqual(before, tree) {
		t.Errorf("tree was modified by failed join")
	}

	// existing LPs may still increase their stake
	if kind := join(t, tree, addr(3), 1); kind != JoinInPlace {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinInPlace, kind)
	}

	// after an exit, the freed slot becomes available
	withdraw(t, tree, addr(2))
	if err := tree.Exit(addr(2), amount.New(100)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	if kind := join(t, tree, addr(4), 1); kind != JoinReassigned {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinReassigned, kind)
	}
	checkTree(t, tree)
}

func TestTree_ExitWithUnwithdrawnFeesFails(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 100)
	if err := tree.DepositFees(amount.New(10)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if err := tree.Exit(addr(2), amount.New(10)); !errors.Is(err, ErrUnwithdrawnFees) {
		t.Fatalf("expected unwithdrawn fees error, got %v", err)
	}
	shares, err := tree.SharesOf(addr(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := amount.New(100); shares != want {
		t.Errorf("stake was modified, wanted %v, got %v", want, shares)
	}
	checkTree(t, tree)

	withdraw(t, tree, addr(2))
	if err := tree.Exit(addr(2), amount.New(10)); err != nil {
		t.Errorf("failed to exit after withdrawal: %v", err)
	}
	checkTree(t, tree)
}

func TestTree_RejectedExitPushesPendingFeesWithoutChangingEntitlements(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 100)
	if err := tree.DepositFees(amount.New(10)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if err := tree.Exit(addr(2), amount.New(1)); !errors.Is(err, ErrUnwithdrawnFees) {
		t.Fatalf("expected unwithdrawn fees error, got %v", err)
	}
	if lazy := tree.nodes[0].lazyFees; !lazy.IsZero() {
		t.Errorf("pending fees of the root should have been pushed down, got %v", lazy)
	}
	checkTree(t, tree)
	for _, account := range []common.Address{addr(1), addr(2)} {
		if got, want := withdraw(t, tree, account), amount.New(5); got != want {
			t.Errorf("unexpected fees of %v, wanted %v, got %v", account, want, got)
		}
	}
}

func TestTree_FeesDepositedWithoutStakeGoToNextJoiner(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 100)
	for _, account := range []common.Address{addr(1), addr(2)} {
		if err := tree.Exit(account, amount.New(100)); err != nil {
			t.Fatalf("failed to exit: %v", err)
		}
	}
	if err := tree.DepositFees(amount.New(50)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if kind := join(t, tree, addr(3), 10); kind != JoinReassigned {
		t.Fatalf("unexpected join kind, got %v", kind)
	}
	if got, want := withdraw(t, tree, addr(3)), amount.New(50); got != want {
		t.Errorf("unexpected fees, wanted %v, got %v", want, got)
	}
	checkTree(t, tree)
}

func TestTree_ExitOfUnknownAccountFails(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	if err := tree.Exit(addr(2), amount.New(1)); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected account not found error, got %v", err)
	}
	if _, err := tree.WithdrawFees(addr(2)); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected account not found error, got %v", err)
	}
	if _, err := tree.SharesOf(addr(2)); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected account not found error, got %v", err)
	}
}

func TestTree_ExitExceedingStakeFails(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 50)
	if err := tree.Exit(addr(2), amount.New(51)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected insufficient stake error, got %v", err)
	}
	total, err := tree.TotalShares()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := amount.New(150); total != want {
		t.Errorf("unexpected total shares, wanted %v, got %v", want, total)
	}
	checkTree(t, tree)
}

func TestTree_PartialExitKeepsSlot(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 50)
	if err := tree.Exit(addr(2), amount.New(20)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	if !tree.Contains(addr(2)) {
		t.Errorf("account should still hold a slot")
	}
	if got, want := tree.nodes[0].descendantStake, amount.New(30); got != want {
		t.Errorf("unexpected descendant stake, wanted %v, got %v", want, got)
	}
	if len(tree.abandoned) != 0 {
		t.Errorf("no slot should be abandoned, got %v", tree.abandoned)
	}
	checkTree(t, tree)
}

func TestTree_AbandonedInnerNodeKeepsDescendantStake(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 10) // slot 1
	join(t, tree, addr(3), 20) // slot 2
	join(t, tree, addr(4), 30) // slot 3, child of 1

	if err := tree.Exit(addr(2), amount.New(10)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	if tree.nodes[1].occupied {
		t.Errorf("slot 1 should be abandoned")
	}
	if got, want := tree.nodes[1].descendantStake, amount.New(30); got != want {
		t.Errorf("unexpected descendant stake, wanted %v, got %v", want, got)
	}
	checkTree(t, tree)

	// fees still reach the LP below the abandoned slot
	if err := tree.DepositFees(amount.New(150)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if got, want := withdraw(t, tree, addr(4)), amount.New(30); got != want {
		t.Errorf("unexpected fees, wanted %v, got %v", want, got)
	}

	// the slot is reused without touching its subtree
	if kind := join(t, tree, addr(5), 50); kind != JoinReassigned {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinReassigned, kind)
	}
	if got, want := tree.nodes[1].descendantStake, amount.New(30); got != want {
		t.Errorf("unexpected descendant stake, wanted %v, got %v", want, got)
	}
	if got, want := withdraw(t, tree, addr(5)), amount.New(); got != want {
		t.Errorf("reassigned slot inherited fees, got %v", got)
	}
	checkTree(t, tree)
}

func TestTree_RootCanBeAbandonedAndReassigned(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 100)
	if err := tree.Exit(addr(1), amount.New(100)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	checkTree(t, tree)

	if err := tree.DepositFees(amount.New(10)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if got, want := withdraw(t, tree, addr(2)), amount.New(10); got != want {
		t.Errorf("unexpected fees, wanted %v, got %v", want, got)
	}
	if kind := join(t, tree, addr(3), 5); kind != JoinReassigned {
		t.Errorf("unexpected join kind, wanted %v, got %v", JoinReassigned, kind)
	}
	if got, want := tree.accounts[addr(3)], 0; got != want {
		t.Errorf("unexpected slot, wanted %d, got %d", want, got)
	}
	checkTree(t, tree)
}

func TestTree_WithdrawFeesIsIdempotent(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	if err := tree.DepositFees(amount.New(42)); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if got, want := withdraw(t, tree, addr(1)), amount.New(42); got != want {
		t.Errorf("unexpected fees, wanted %v, got %v", want, got)
	}
	for i := 0; i < 3; i++ {
		if got, want := withdraw(t, tree, addr(1)), amount.New(); got != want {
			t.Errorf("unexpected fees, wanted %v, got %v", want, got)
		}
	}
}

func TestTree_DepositOverflowIsReported(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	if err := tree.DepositFees(amount.Max()); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if err := tree.DepositFees(amount.New(1)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("expected overflow error, got %v", err)
	}
	if got, want := tree.nodes[0].lazyFees, amount.Max(); got != want {
		t.Errorf("lazy fees modified by failed deposit, got %v", got)
	}
}

func TestTree_JoinOverflowIsReportedWithoutModification(t *testing.T) {
	tree, err := NewTree(Config{MaxDepth: 2}, addr(1), amount.Max())
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	before := tree.Clone()
	if _, err := tree.Join(addr(2), amount.New(1)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("expected overflow error, got %v", err)
	}
	if _, err := tree.Join(addr(1), amount.New(1)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("expected overflow error, got %v", err)
	}
	if !reflect.DeepEqual(before, tree) {
		t.Errorf("tree was modified by failed join")
	}
}

func TestTree_SplitIsNotImplemented(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	join(t, tree, addr(2), 100)
	before := tree.Clone()
	if err := tree.Split(addr(1), addr(2), amount.New(10)); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("expected not implemented error, got %v", err)
	}
	if !reflect.DeepEqual(before, tree) {
		t.Errorf("tree was modified by split")
	}
}

func TestTree_AccountsAreListedInSlotOrder(t *testing.T) {
	tree := newTestTree(t, 3, addr(1), 1)
	for i := 2; i <= 6; i++ {
		join(t, tree, addr(i), 1)
	}
	if err := tree.Exit(addr(3), amount.New(1)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	common.AssertArraysEqual(t, []common.Address{addr(1), addr(2), addr(4), addr(5), addr(6)}, tree.Accounts())

	slots := tree.Slots()
	if got, want := len(slots), 6; got != want {
		t.Fatalf("unexpected number of slots, wanted %d, got %d", want, got)
	}
	if slots[2].Occupied || slots[2].Account != (common.Address{}) {
		t.Errorf("slot 2 should be abandoned, got %+v", slots[2])
	}
}

func TestTree_CloneIsIndependent(t *testing.T) {
	tree := newTestTree(t, 2, addr(1), 100)
	clone := tree.Clone()
	join(t, clone, addr(2), 10)
	if tree.Contains(addr(2)) || tree.Size() != 1 {
		t.Errorf("modification of clone affected original")
	}
	checkTree(t, tree)
	checkTree(t, clone)
}

func TestTree_MemoryFootprintCoversNodes(t *testing.T) {
	tree := newTestTree(t, 4, addr(1), 100)
	for i := 2; i < 20; i++ {
		join(t, tree, addr(i), 1)
	}
	mf := tree.GetMemoryFootprint()
	if mf.GetChild("nodes") == nil || mf.GetChild("accounts") == nil {
		t.Fatalf("missing components in footprint:\n%v", mf)
	}
	if mf.Total() <= mf.Value() {
		t.Errorf("footprint should include children")
	}
	if !strings.Contains(mf.String(), "./nodes") {
		t.Errorf("footprint should list nodes, got %v", mf)
	}
}

func TestJoinKind_String(t *testing.T) {
	tests := map[JoinKind]string{
		JoinInPlace:    "in-place",
		JoinReassigned: "reassigned",
		JoinNewLeaf:    "new-leaf",
		JoinKind(7):    "JoinKind(7)",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("unexpected string, wanted %v, got %v", want, got)
		}
	}
}

// TestTree_RandomOperationsPreserveInvariants runs random sequences of joins,
// exits, deposits and withdrawals, checking after each step that the tree is
// consistent and that the stake of every account is as expected. At the end,
// all fees are withdrawn and compared to the total deposits.
func TestTree_RandomOperationsPreserveInvariants(t *testing.T) {
	const (
		maxDepth    = 4
		numAccounts = 48
		numSteps    = 3000
	)
	for seed := int64(0); seed < 5; seed++ {
		r := rand.New(rand.NewSource(seed))
		tree := newTestTree(t, maxDepth, addr(0), 1+uint64(r.Intn(1000)))
		stakes := map[common.Address]uint64{addr(0): tree.nodes[0].stake.Uint64()}
		deposited, withdrawn := uint64(0), uint64(0)

		for step := 0; step < numSteps; step++ {
			account := addr(r.Intn(numAccounts))
			switch op := r.Intn(10); {
			case op < 4:
				stake := 1 + uint64(r.Intn(1000))
				full := !tree.Contains(account) && len(tree.abandoned) == 0 && tree.Size() == tree.Capacity()
				_, err := tree.Join(account, amount.New(stake))
				if full {
					if !errors.Is(err, ErrTreeFull) {
						t.Fatalf("seed %d, step %d: expected tree full error, got %v", seed, step, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("seed %d, step %d: failed to join: %v", seed, step, err)
				}
				stakes[account] += stake

			case op < 7:
				held, found := stakes[account]
				if !found {
					continue
				}
				withdrawn += withdraw(t, tree, account).Uint64()
				stake := held
				if r.Intn(2) == 0 {
					stake = 1 + uint64(r.Int63n(int64(held)))
				}
				if err := tree.Exit(account, amount.New(stake)); err != nil {
					t.Fatalf("seed %d, step %d: failed to exit: %v", seed, step, err)
				}
				if stake == held {
					delete(stakes, account)
				} else {
					stakes[account] = held - stake
				}

			case op < 9:
				if len(stakes) == 0 {
					continue
				}
				fees := uint64(r.Intn(100_000))
				if err := tree.DepositFees(amount.New(fees)); err != nil {
					t.Fatalf("seed %d, step %d: failed to deposit fees: %v", seed, step, err)
				}
				deposited += fees

			default:
				if _, found := stakes[account]; found {
					withdrawn += withdraw(t, tree, account).Uint64()
				}
			}

			if err := tree.Check(); err != nil {
				t.Fatalf("seed %d, step %d: inconsistent tree: %v", seed, step, err)
			}
			total := uint64(0)
			for account, want := range stakes {
				got, err := tree.SharesOf(account)
				if err != nil {
					t.Fatalf("seed %d, step %d: failed to get shares: %v", seed, step, err)
				}
				if got != amount.New(want) {
					t.Fatalf("seed %d, step %d: unexpected shares of %v, wanted %d, got %v", seed, step, account, want, got)
				}
				total += want
			}
			if got, err := tree.TotalShares(); err != nil || got != amount.New(total) {
				t.Fatalf("seed %d, step %d: unexpected total shares, wanted %d, got %v, err %v", seed, step, total, got, err)
			}
			if got, want := tree.NumberOfLPs(), len(stakes); got != want {
				t.Fatalf("seed %d, step %d: unexpected number of LPs, wanted %d, got %d", seed, step, want, got)
			}
		}

		for account := range stakes {
			withdrawn += withdraw(t, tree, account).Uint64()
		}
		if withdrawn > deposited {
			t.Errorf("seed %d: more fees withdrawn than deposited, %d > %d", seed, withdrawn, deposited)
		}
		if deposited-withdrawn > numSteps {
			t.Errorf("seed %d: rounding loss too large, deposited %d, withdrawn %d", seed, deposited, withdrawn)
		}
	}
}
