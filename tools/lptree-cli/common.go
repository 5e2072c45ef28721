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
	"github.com/Fantom-foundation/lptree/pool/ldb"
	"github.com/Fantom-foundation/lptree/pool/memory"
	"github.com/urfave/cli/v2"
)

var (
	storeDirectoryFlag = cli.StringFlag{
		Name:     "dir",
		Usage:    "the directory of the pool store",
		Required: true,
	}
	storeFormatFlag = cli.StringFlag{
		Name:  "format",
		Usage: "the format of the pool store, 'ldb' or 'memory'",
		Value: "ldb",
	}
	poolIdFlag = cli.Uint64Flag{
		Name:  "pool",
		Usage: "the id of the targeted pool",
		Value: 1,
	}
)

func openStore(format, directory string) (pool.Store, error) {
	switch format {
	case "ldb":
		return ldb.OpenStore(directory)
	case "memory":
		return memory.OpenStore(directory)
	}
	return nil, fmt.Errorf("unknown store format %q", format)
}

// closeStore closes the given store and records a failure in err unless
// an earlier error is already present.
func closeStore(store pool.Store, directory string, err *error) {
	log.Printf("Closing store in %v ...", directory)
	if closeErr := store.Close(); closeErr != nil {
		if *err == nil {
			*err = closeErr
		} else {
			log.Printf("Failure closing store: %v", closeErr)
		}
	}
}
