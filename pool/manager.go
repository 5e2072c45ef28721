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
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
	"github.com/Fantom-foundation/lptree/lptree"
)

// Manager owns the liquidity trees of a set of pools and keeps them in sync
// with the funds moved through the ledger.
//
// Every operation loads a fresh copy of the affected tree, applies the
// modification to it, performs the associated transfer and finally saves
// the copy. If any of these steps fails, the copy is dropped and the stored
// tree remains untouched. Operations are serialized by a single lock.
type Manager struct {
	store  Store
	ledger Ledger
	log    *log.Logger
	mu     sync.Mutex
}

// NewManager creates a manager on top of the given store and ledger. If no
// logger is provided, the standard logger is used.
func NewManager(store Store, ledger Ledger, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		store:  store,
		ledger: ledger,
		log:    logger,
	}
}

// transfer is a movement of funds attached to a tree update.
type transfer struct {
	from, to common.Address
	value    amount.Amount
}

// CreatePool creates a new pool owned by the given creator, who pays the
// initial liquidity and receives the given number of shares.
func (m *Manager) CreatePool(id PoolId, config lptree.Config, creator common.Address, payment, shares amount.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.store.Load(id)
	if err == nil {
		return fmt.Errorf("%w: %v", ErrPoolExists, id)
	}
	if !errors.Is(err, ErrPoolNotFound) {
		return err
	}
	tree, err := lptree.NewTree(config, creator, shares)
	if err != nil {
		rejectedOperations.WithLabelValues("create").Inc()
		return err
	}
	if err := m.commit("create", id, tree, transfer{creator, PoolAccount(id), payment}); err != nil {
		return err
	}
	poolsCreated.Inc()
	m.log.Printf("created %v with %v by %v, %v shares", id, config, creator, shares)
	return nil
}

// AddLiquidity lets the given account pay into the pool in exchange for the
// given number of shares.
func (m *Manager) AddLiquidity(id PoolId, account common.Address, payment, shares amount.Amount) (lptree.JoinKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := m.store.Load(id)
	if err != nil {
		return 0, err
	}
	kind, err := tree.Join(account, shares)
	if err != nil {
		rejectedOperations.WithLabelValues("join").Inc()
		return 0, err
	}
	if err := m.commit("join", id, tree, transfer{account, PoolAccount(id), payment}); err != nil {
		return 0, err
	}
	liquidityJoins.WithLabelValues(kind.String()).Inc()
	if kind == lptree.JoinReassigned {
		m.log.Printf("%v: %v took over an abandoned slot", id, account)
	}
	return kind, nil
}

// RemoveLiquidity burns the given number of shares of the account and pays
// out the given value. Fees have to be withdrawn before.
func (m *Manager) RemoveLiquidity(id PoolId, account common.Address, shares, payout amount.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := m.store.Load(id)
	if err != nil {
		return err
	}
	if err := tree.Exit(account, shares); err != nil {
		rejectedOperations.WithLabelValues("exit").Inc()
		return err
	}
	if err := m.commit("exit", id, tree, transfer{PoolAccount(id), account, payout}); err != nil {
		return err
	}
	if tree.Contains(account) {
		liquidityExits.WithLabelValues("partial").Inc()
	} else {
		liquidityExits.WithLabelValues("full").Inc()
	}
	return nil
}

// CollectFees charges the given payer with trading fees to be distributed
// among the LPs of the pool. Pools without stake do not accept fees, since
// those would be credited to whichever LP joins next.
func (m *Manager) CollectFees(id PoolId, payer common.Address, fees amount.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := m.store.Load(id)
	if err != nil {
		return err
	}
	total, err := tree.TotalShares()
	if err != nil {
		return err
	}
	if total.IsZero() {
		rejectedOperations.WithLabelValues("deposit").Inc()
		return fmt.Errorf("%w: %v", ErrNoStake, id)
	}
	if err := tree.DepositFees(fees); err != nil {
		rejectedOperations.WithLabelValues("deposit").Inc()
		return err
	}
	if err := m.commit("deposit", id, tree, transfer{payer, PoolAccount(id), fees}); err != nil {
		return err
	}
	feeDeposits.Inc()
	return nil
}

// WithdrawFees pays out all fees accrued by the given account.
func (m *Manager) WithdrawFees(id PoolId, account common.Address) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := m.store.Load(id)
	if err != nil {
		return amount.Amount{}, err
	}
	fees, err := tree.WithdrawFees(account)
	if err != nil {
		rejectedOperations.WithLabelValues("withdraw").Inc()
		return amount.Amount{}, err
	}
	if err := m.commit("withdraw", id, tree, transfer{PoolAccount(id), account, fees}); err != nil {
		return amount.Amount{}, err
	}
	feeWithdrawals.Inc()
	return fees, nil
}

// SharesOf returns the shares held by the account in the given pool.
func (m *Manager) SharesOf(id PoolId, account common.Address) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := m.store.Load(id)
	if err != nil {
		return amount.Amount{}, err
	}
	return tree.SharesOf(account)
}

// TotalShares returns the shares held by all LPs of the given pool.
func (m *Manager) TotalShares(id PoolId) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := m.store.Load(id)
	if err != nil {
		return amount.Amount{}, err
	}
	return tree.TotalShares()
}

// DestroyPool removes a pool no longer holding any stake.
func (m *Manager) DestroyPool(id PoolId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree, err := m.store.Load(id)
	if err != nil {
		return err
	}
	total, err := tree.TotalShares()
	if err != nil {
		return err
	}
	if !total.IsZero() {
		return fmt.Errorf("%w: %v has %v shares", ErrPoolNotEmpty, id, total)
	}
	if err := m.store.Delete(id); err != nil {
		return err
	}
	poolsDestroyed.Inc()
	m.log.Printf("destroyed %v", id)
	return nil
}

// Pools lists the ids of all managed pools.
func (m *Manager) Pools() ([]PoolId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Ids()
}

// commit performs the given transfer and saves the tree. If saving fails,
// the transfer is reverted.
func (m *Manager) commit(op string, id PoolId, tree *lptree.Tree, t transfer) error {
	if !t.value.IsZero() {
		if err := m.ledger.Transfer(t.from, t.to, t.value); err != nil {
			ledgerFailures.WithLabelValues(op).Inc()
			return fmt.Errorf("failed to transfer %v from %v to %v: %w", t.value, t.from, t.to, err)
		}
	}
	err := m.store.Save(id, tree)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("failed to save %v: %w", id, err)
	if t.value.IsZero() {
		return err
	}
	if revertErr := m.ledger.Transfer(t.to, t.from, t.value); revertErr != nil {
		ledgerFailures.WithLabelValues(op).Inc()
		m.log.Printf("failed to revert transfer of %v from %v to %v: %v", t.value, t.from, t.to, revertErr)
		return errors.Join(err, fmt.Errorf("failed to revert transfer: %w", revertErr))
	}
	return err
}
