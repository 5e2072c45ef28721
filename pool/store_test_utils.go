// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package pool

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
	"github.com/Fantom-foundation/lptree/lptree"
	"golang.org/x/exp/slices"
)

type NamedStoreFactory struct {
	ImplementationName string
	Open               func(t *testing.T, directory string) (Store, error)
}

// RunStoreTests runs a set of black-box unit tests against a Store
// implementation defined by the given factory. It is intended to be used in
// implementation specific unit test packages to cover the basic properties
// imposed by the Store interface.
func RunStoreTests(t *testing.T, factory NamedStoreFactory) {
	wrap := func(test func(*testing.T, NamedStoreFactory)) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			test(t, factory)
		}
	}
	t.Run("LoadOfMissingPoolFails", wrap(testLoadOfMissingPoolFails))
	t.Run("SavedTreesCanBeLoaded", wrap(testSavedTreesCanBeLoaded))
	t.Run("LoadedTreesAreIndependent", wrap(testLoadedTreesAreIndependent))
	t.Run("SaveReplacesPreviousTree", wrap(testSaveReplacesPreviousTree))
	t.Run("DeletedPoolsAreGone", wrap(testDeletedPoolsAreGone))
	t.Run("IdsAreSorted", wrap(testIdsAreSorted))
	t.Run("CreatesMissingDirectories", wrap(testCreatesMissingDirectories))
	t.Run("CanBeFlushed", wrap(testCanBeFlushed))
	t.Run("CanBeClosedAndReopened", wrap(testCanBeClosedAndReopened))
}

// newStoreTestTree creates a tree with some LPs, an abandoned slot and
// pending fees, to be used for testing stores.
func newStoreTestTree(t *testing.T, seed int) *lptree.Tree {
	t.Helper()
	tree, err := lptree.NewTree(lptree.Config{MaxDepth: 3}, common.AddressFromNumber(seed), amount.New(uint64(100+seed)))
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if _, err := tree.Join(common.AddressFromNumber(seed+i), amount.New(uint64(10*i))); err != nil {
			t.Fatalf("failed to join: %v", err)
		}
	}
	if err := tree.Exit(common.AddressFromNumber(seed+2), amount.New(20)); err != nil {
		t.Fatalf("failed to exit: %v", err)
	}
	if err := tree.DepositFees(amount.New(uint64(1000 + seed))); err != nil {
		t.Fatalf("failed to deposit fees: %v", err)
	}
	if _, err := tree.WithdrawFees(common.AddressFromNumber(seed + 4)); err != nil {
		t.Fatalf("failed to withdraw fees: %v", err)
	}
	return tree
}

func assertSameTree(t *testing.T, want, got *lptree.Tree) {
	t.Helper()
	a, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to encode tree: %v", err)
	}
	b, err := got.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to encode tree: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("trees differ, wanted %v, got %v", want, got)
	}
}

func testLoadOfMissingPoolFails(t *testing.T, factory NamedStoreFactory) {
	store, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	if _, err := store.Load(12); !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("unexpected error when loading missing pool, wanted %v, got %v", ErrPoolNotFound, err)
	}
}

func testSavedTreesCanBeLoaded(t *testing.T, factory NamedStoreFactory) {
	store, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	trees := map[PoolId]*lptree.Tree{}
	for i := 0; i < 10; i++ {
		id := PoolId(i * 7)
		trees[id] = newStoreTestTree(t, i*10)
		if err := store.Save(id, trees[id]); err != nil {
			t.Fatalf("failed to save tree: %v", err)
		}
	}
	for id, want := range trees {
		got, err := store.Load(id)
		if err != nil {
			t.Fatalf("failed to load %v: %v", id, err)
		}
		assertSameTree(t, want, got)
		if err := got.Check(); err != nil {
			t.Errorf("loaded tree is inconsistent: %v", err)
		}
	}
}

func testLoadedTreesAreIndependent(t *testing.T, factory NamedStoreFactory) {
	store, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	tree := newStoreTestTree(t, 0)
	if err := store.Save(1, tree); err != nil {
		t.Fatalf("failed to save tree: %v", err)
	}
	want := tree.Clone()

	// modifications of saved and loaded trees must not reach the store
	if _, err := tree.Join(common.AddressFromNumber(99), amount.New(5)); err != nil {
		t.Fatalf("failed to join: %v", err)
	}
	loaded, err := store.Load(1)
	if err != nil {
		t.Fatalf("failed to load tree: %v", err)
	}
	if err := loaded.DepositFees(amount.New(7)); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}

	got, err := store.Load(1)
	if err != nil {
		t.Fatalf("failed to load tree: %v", err)
	}
	assertSameTree(t, want, got)
}

func testSaveReplacesPreviousTree(t *testing.T, factory NamedStoreFactory) {
	store, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.Save(1, newStoreTestTree(t, 0)); err != nil {
		t.Fatalf("failed to save tree: %v", err)
	}
	want := newStoreTestTree(t, 50)
	if err := store.Save(1, want); err != nil {
		t.Fatalf("failed to save tree: %v", err)
	}
	got, err := store.Load(1)
	if err != nil {
		t.Fatalf("failed to load tree: %v", err)
	}
	assertSameTree(t, want, got)
}

func testDeletedPoolsAreGone(t *testing.T, factory NamedStoreFactory) {
	store, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	for _, id := range []PoolId{1, 2} {
		if err := store.Save(id, newStoreTestTree(t, int(id))); err != nil {
			t.Fatalf("failed to save tree: %v", err)
		}
	}
	if err := store.Delete(1); err != nil {
		t.Fatalf("failed to delete pool: %v", err)
	}
	if _, err := store.Load(1); !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("deleted pool should not be found, got %v", err)
	}
	if _, err := store.Load(2); err != nil {
		t.Errorf("other pool should not be affected, got %v", err)
	}
	if err := store.Delete(1); err != nil {
		t.Errorf("deleting a missing pool should be a no-op, got %v", err)
	}
	ids, err := store.Ids()
	if err != nil {
		t.Fatalf("failed to list ids: %v", err)
	}
	common.AssertArraysEqual(t, []PoolId{2}, ids)
}

func testIdsAreSorted(t *testing.T, factory NamedStoreFactory) {
	store, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ids, err := store.Ids()
	if err != nil {
		t.Fatalf("failed to list ids: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("empty store should have no ids, got %v", ids)
	}

	want := []PoolId{1 << 40, 5, 0, 256, 3}
	tree := newStoreTestTree(t, 0)
	for _, id := range want {
		if err := store.Save(id, tree); err != nil {
			t.Fatalf("failed to save tree: %v", err)
		}
	}
	slices.Sort(want)
	ids, err = store.Ids()
	if err != nil {
		t.Fatalf("failed to list ids: %v", err)
	}
	common.AssertArraysEqual(t, want, ids)
}

func testCreatesMissingDirectories(t *testing.T, factory NamedStoreFactory) {
	directory := filepath.Join(t.TempDir(), "some", "missing", "directory")
	store, err := factory.Open(t, directory)
	if err != nil {
		t.Fatalf("failed to open store in missing directory: %v", err)
	}
	if err := store.Save(1, newStoreTestTree(t, 0)); err != nil {
		t.Fatalf("failed to save tree: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("failed to close store: %v", err)
	}
}

func testCanBeFlushed(t *testing.T, factory NamedStoreFactory) {
	store, err := factory.Open(t, t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	if err := store.Flush(); err != nil {
		t.Errorf("failed to flush empty store: %v", err)
	}
	if err := store.Save(1, newStoreTestTree(t, 0)); err != nil {
		t.Fatalf("failed to save tree: %v", err)
	}
	if err := store.Flush(); err != nil {
		t.Errorf("failed to flush store: %v", err)
	}
}

func testCanBeClosedAndReopened(t *testing.T, factory NamedStoreFactory) {
	directory := t.TempDir()
	store, err := factory.Open(t, directory)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	trees := map[PoolId]*lptree.Tree{}
	for i := 0; i < 5; i++ {
		id := PoolId(100 + i)
		trees[id] = newStoreTestTree(t, i*10)
		if err := store.Save(id, trees[id]); err != nil {
			t.Fatalf("failed to save tree: %v", err)
		}
	}
	if err := store.Delete(102); err != nil {
		t.Fatalf("failed to delete pool: %v", err)
	}
	delete(trees, 102)
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	store, err = factory.Open(t, directory)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()
	ids, err := store.Ids()
	if err != nil {
		t.Fatalf("failed to list ids: %v", err)
	}
	common.AssertArraysEqual(t, []PoolId{100, 101, 103, 104}, ids)
	for id, want := range trees {
		got, err := store.Load(id)
		if err != nil {
			t.Fatalf("failed to load %v after reopening: %v", id, err)
		}
		assertSameTree(t, want, got)
	}
}
