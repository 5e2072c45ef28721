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
	"fmt"
	"log"

	"github.com/Fantom-foundation/lptree/pool"
	"github.com/urfave/cli/v2"
)

var slotsFlag = cli.BoolFlag{
	Name:  "slots",
	Usage: "print every slot of the tree",
}

var infoCommand = cli.Command{
	Action: printInfo,
	Name:   "info",
	Usage:  "prints summary information about a pool",
	Flags: []cli.Flag{
		&storeDirectoryFlag,
		&storeFormatFlag,
		&poolIdFlag,
		&slotsFlag,
	},
}

func printInfo(ctx *cli.Context) (err error) {
	dir := ctx.String(storeDirectoryFlag.Name)
	id := pool.PoolId(ctx.Uint64(poolIdFlag.Name))
	log.Printf("Opening store in %v ...", dir)
	store, err := openStore(ctx.String(storeFormatFlag.Name), dir)
	if err != nil {
		return err
	}
	defer closeStore(store, dir, &err)

	tree, err := store.Load(id)
	if err != nil {
		return err
	}
	total, err := tree.TotalShares()
	if err != nil {
		return err
	}
	fmt.Printf("Pool:         %v\n", id)
	fmt.Printf("Account:      %v\n", pool.PoolAccount(id))
	fmt.Printf("Config:       %v\n", tree.Config())
	fmt.Printf("Slots:        %d of %d\n", tree.Size(), tree.Capacity())
	fmt.Printf("LPs:          %d\n", tree.NumberOfLPs())
	fmt.Printf("Total shares: %v\n", total)
	fmt.Printf("Memory:\n%v", tree.GetMemoryFootprint())

	for _, account := range tree.Accounts() {
		shares, err := tree.SharesOf(account)
		if err != nil {
			return err
		}
		fmt.Printf("  %v: %v\n", account, shares)
	}

	if ctx.Bool(slotsFlag.Name) {
		for _, slot := range tree.Slots() {
			occupant := "-"
			if slot.Occupied {
				occupant = slot.Account.String()
			}
			fmt.Printf("  #%-4d %v stake=%v fees=%v descendants=%v lazy=%v\n",
				slot.Index, occupant, slot.Stake, slot.Fees, slot.DescendantStake, slot.LazyFees)
		}
	}
	return nil
}
