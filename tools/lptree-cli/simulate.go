// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package main

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
	"github.com/Fantom-foundation/lptree/common/interrupt"
	"github.com/Fantom-foundation/lptree/lptree"
	"github.com/Fantom-foundation/lptree/pool"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/rand"
)

var (
	depthFlag = cli.IntFlag{
		Name:  "depth",
		Usage: "the maximum depth of the simulated tree",
		Value: lptree.DefaultMaxDepth,
	}
	stepsFlag = cli.IntFlag{
		Name:  "steps",
		Usage: "the number of random operations to perform",
		Value: 100_000,
	}
	seedFlag = cli.Uint64Flag{
		Name:  "seed",
		Usage: "the seed of the random operation sequence",
	}
	accountsFlag = cli.IntFlag{
		Name:  "accounts",
		Usage: "the number of distinct accounts taking part in the simulation",
		Value: 2000,
	}
	checkIntervalFlag = cli.IntFlag{
		Name:  "check-interval",
		Usage: "the number of steps between consistency checks",
		Value: 1000,
	}
	simulationDirectoryFlag = cli.StringFlag{
		Name:  "dir",
		Usage: "if set, the simulation runs through a pool manager persisting the tree in this directory",
	}
)

var simulateCommand = cli.Command{
	Action: simulate,
	Name:   "simulate",
	Usage:  "runs a random sequence of liquidity operations and checks the bookkeeping",
	Flags: []cli.Flag{
		&depthFlag,
		&stepsFlag,
		&seedFlag,
		&accountsFlag,
		&checkIntervalFlag,
		&simulationDirectoryFlag,
		&storeFormatFlag,
		&poolIdFlag,
	},
}

// target is the liquidity bookkeeping exercised by a simulation.
type target interface {
	Join(common.Address, amount.Amount) error
	Exit(common.Address, amount.Amount) error
	DepositFees(amount.Amount) error
	WithdrawFees(common.Address) (amount.Amount, error)
	SharesOf(common.Address) (amount.Amount, error)
	Check() error
}

// treeTarget operates directly on an in-memory tree.
type treeTarget struct {
	*lptree.Tree
}

func (t treeTarget) Join(account common.Address, stake amount.Amount) error {
	_, err := t.Tree.Join(account, stake)
	return err
}

// poolTarget operates on a pool through a manager, exchanging shares and
// funds at a fixed rate of 1.
type poolTarget struct {
	manager *pool.Manager
	store   pool.Store
	id      pool.PoolId
	trader  common.Address
}

func (t poolTarget) Join(account common.Address, stake amount.Amount) error {
	_, err := t.manager.AddLiquidity(t.id, account, stake, stake)
	return err
}

func (t poolTarget) Exit(account common.Address, stake amount.Amount) error {
	return t.manager.RemoveLiquidity(t.id, account, stake, stake)
}

func (t poolTarget) DepositFees(fees amount.Amount) error {
	return t.manager.CollectFees(t.id, t.trader, fees)
}

func (t poolTarget) WithdrawFees(account common.Address) (amount.Amount, error) {
	return t.manager.WithdrawFees(t.id, account)
}

func (t poolTarget) SharesOf(account common.Address) (amount.Amount, error) {
	return t.manager.SharesOf(t.id, account)
}

func (t poolTarget) Check() error {
	// stores check trees while decoding
	_, err := t.store.Load(t.id)
	return err
}

// poolLedger tracks the balance of a single pool. All other accounts are
// assumed to have unlimited funds.
type poolLedger struct {
	pool    common.Address
	balance amount.Amount
}

func (l *poolLedger) Transfer(from, to common.Address, value amount.Amount) error {
	if from == l.pool {
		balance, err := amount.CheckedSub(l.balance, value)
		if err != nil {
			return fmt.Errorf("pool is insolvent: %w", err)
		}
		l.balance = balance
	}
	if to == l.pool {
		balance, err := amount.CheckedAdd(l.balance, value)
		if err != nil {
			return err
		}
		l.balance = balance
	}
	return nil
}

func simulate(ctx *cli.Context) (err error) {
	log := NewLog()
	config := lptree.Config{MaxDepth: ctx.Int(depthFlag.Name)}
	if err := config.Validate(); err != nil {
		return err
	}
	founder := common.AddressFromNumber(0)
	founderStake := amount.New(1000)

	var trg target
	var ledger *poolLedger
	dir := ctx.String(simulationDirectoryFlag.Name)
	if dir == "" {
		tree, err := lptree.NewTree(config, founder, founderStake)
		if err != nil {
			return err
		}
		trg = treeTarget{tree}
	} else {
		id := pool.PoolId(ctx.Uint64(poolIdFlag.Name))
		log.Printf("Opening store in %v ...", dir)
		var store pool.Store
		store, err = openStore(ctx.String(storeFormatFlag.Name), dir)
		if err != nil {
			return err
		}
		defer closeStore(store, dir, &err)
		ledger = &poolLedger{pool: pool.PoolAccount(id)}
		manager := pool.NewManager(store, ledger, nil)
		if err = manager.CreatePool(id, config, founder, founderStake, founderStake); err != nil {
			return err
		}
		trg = poolTarget{
			manager: manager,
			store:   store,
			id:      id,
			trader:  common.AddressFromNumber(-1),
		}
	}

	sim := newSimulation(trg, ctx.Uint64(seedFlag.Name), ctx.Int(accountsFlag.Name))
	sim.join(founder, founderStake.Uint64())

	steps := ctx.Int(stepsFlag.Name)
	interval := ctx.Int(checkIntervalFlag.Name)
	log.Printf("Simulating %d steps on a tree with %v ...", steps, config)
	interruptible, stop := interrupt.Register(ctx.Context)
	defer stop()
	progress := log.NewProgressTracker("simulated %d steps, %.2f steps/s", 10_000)
	for i := 1; i <= steps; i++ {
		if err := interrupt.Check(interruptible); err != nil {
			return err
		}
		if err := sim.step(); err != nil {
			return fmt.Errorf("step %d failed: %w", i, err)
		}
		if interval > 0 && i%interval == 0 {
			if err := sim.check(); err != nil {
				return fmt.Errorf("check after step %d failed: %w", i, err)
			}
		}
		progress.Step(1)
	}

	log.Printf("Withdrawing remaining fees of %d LPs ...", len(sim.members))
	if err := sim.withdrawAll(); err != nil {
		return err
	}
	if err := sim.check(); err != nil {
		return err
	}
	dust, underflow := amount.SubUnderflow(sim.deposited, sim.withdrawn)
	if underflow {
		return fmt.Errorf("withdrawn fees %v exceed deposited fees %v", sim.withdrawn, sim.deposited)
	}
	log.Printf("LPs: %d, rejected joins: %d", len(sim.members), sim.rejectedJoins)
	log.Printf("Fees deposited: %v, withdrawn: %v, rounding dust: %v", sim.deposited, sim.withdrawn, dust)

	if ledger != nil {
		want := amount.Add(amount.New(sim.totalStake()), dust)
		if ledger.balance != want {
			return fmt.Errorf("pool balance %v does not match remaining stake and dust %v", ledger.balance, want)
		}
		log.Printf("Pool balance: %v", ledger.balance)
	}
	return nil
}

// simulation performs random operations on a target while tracking the
// expected shares of all LPs.
type simulation struct {
	target        target
	random        *rand.Rand
	accounts      int
	members       []common.Address
	stakes        map[common.Address]uint64
	deposited     amount.Amount
	withdrawn     amount.Amount
	rejectedJoins int
}

func newSimulation(trg target, seed uint64, accounts int) *simulation {
	return &simulation{
		target:   trg,
		random:   rand.New(rand.NewSource(seed)),
		accounts: accounts,
		stakes:   map[common.Address]uint64{},
	}
}

func (s *simulation) join(account common.Address, stake uint64) {
	if _, found := s.stakes[account]; !found {
		s.members = append(s.members, account)
	}
	s.stakes[account] += stake
}

func (s *simulation) exit(account common.Address, stake uint64) {
	s.stakes[account] -= stake
	if s.stakes[account] > 0 {
		return
	}
	delete(s.stakes, account)
	for i, cur := range s.members {
		if cur == account {
			s.members[i] = s.members[len(s.members)-1]
			s.members = s.members[:len(s.members)-1]
			return
		}
	}
}

func (s *simulation) totalStake() uint64 {
	sum := uint64(0)
	for _, stake := range s.stakes {
		sum += stake
	}
	return sum
}

func (s *simulation) step() error {
	switch s.random.Intn(4) {
	case 0:
		account := common.AddressFromNumber(1 + s.random.Intn(s.accounts))
		stake := 1 + s.random.Uint64n(1000)
		err := s.target.Join(account, amount.New(stake))
		if errors.Is(err, lptree.ErrTreeFull) {
			s.rejectedJoins++
			return nil
		}
		if err != nil {
			return err
		}
		s.join(account, stake)

	case 1:
		if len(s.members) == 0 {
			return nil
		}
		account := s.members[s.random.Intn(len(s.members))]
		if err := s.withdraw(account); err != nil {
			return err
		}
		stake := s.stakes[account]
		if s.random.Intn(2) == 0 {
			stake = 1 + s.random.Uint64n(stake)
		}
		if err := s.target.Exit(account, amount.New(stake)); err != nil {
			return err
		}
		s.exit(account, stake)

	case 2:
		// fees deposited into a tree without stake could never be claimed
		if len(s.members) == 0 {
			return nil
		}
		fees := amount.New(1 + s.random.Uint64n(10_000))
		if err := s.target.DepositFees(fees); err != nil {
			return err
		}
		s.deposited = amount.Add(s.deposited, fees)

	case 3:
		if len(s.members) == 0 {
			return nil
		}
		return s.withdraw(s.members[s.random.Intn(len(s.members))])
	}
	return nil
}

func (s *simulation) withdraw(account common.Address) error {
	fees, err := s.target.WithdrawFees(account)
	if err != nil {
		return err
	}
	s.withdrawn = amount.Add(s.withdrawn, fees)
	return nil
}

func (s *simulation) withdrawAll() error {
	for _, account := range s.members {
		if err := s.withdraw(account); err != nil {
			return err
		}
	}
	return nil
}

func (s *simulation) check() error {
	for account, want := range s.stakes {
		got, err := s.target.SharesOf(account)
		if err != nil {
			return err
		}
		if got != amount.New(want) {
			return fmt.Errorf("shares of %v are %v, expected %d", account, got, want)
		}
	}
	return s.target.Check()
}
