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

	"github.com/Fantom-foundation/lptree/common/interrupt"
	"github.com/urfave/cli/v2"
)

var verifyCommand = cli.Command{
	Action: verify,
	Name:   "verify",
	Usage:  "decodes every pool of a store and checks the consistency of its tree",
	Flags: []cli.Flag{
		&storeDirectoryFlag,
		&storeFormatFlag,
	},
}

func verify(ctx *cli.Context) (err error) {
	dir := ctx.String(storeDirectoryFlag.Name)
	log := NewLog()
	log.Printf("Opening store in %v ...", dir)
	store, err := openStore(ctx.String(storeFormatFlag.Name), dir)
	if err != nil {
		return err
	}
	defer closeStore(store, dir, &err)

	ids, err := store.Ids()
	if err != nil {
		return err
	}
	log.Printf("Verifying %d pools ...", len(ids))

	interruptible, stop := interrupt.Register(ctx.Context)
	defer stop()
	progress := log.NewProgressTracker("verified %d pools, %.2f pools/s", 1000)
	failures := 0
	for _, id := range ids {
		if err := interrupt.Check(interruptible); err != nil {
			return err
		}
		// Load decodes the blob, which includes a full consistency check.
		if _, err := store.Load(id); err != nil {
			log.Printf("%v: %v", id, err)
			failures++
		}
		progress.Step(1)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d pools are invalid", failures, len(ids))
	}
	log.Printf("All %d pools are valid", len(ids))
	return nil
}
