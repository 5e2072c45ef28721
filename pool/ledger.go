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
	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
)

//go:generate mockgen -source ledger.go -destination ledger_mocks.go -package pool

// Ledger moves fungible balances between accounts. It is the external asset
// transfer service backing the bookkeeping of the liquidity trees.
type Ledger interface {
	// Transfer moves the given value from one account to another. On error,
	// no balance is modified.
	Transfer(from, to common.Address, value amount.Amount) error
}

// PoolAccount is the account holding the funds of the given pool.
func PoolAccount(id PoolId) common.Address {
	idBytes := id.Bytes()
	hash := common.Keccak256([]byte("lptree-pool"), idBytes[:])
	var res common.Address
	copy(res[:], hash[common.HashSize-common.AddressSize:])
	return res
}
