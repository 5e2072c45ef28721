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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var poolsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lptree_pools_created",
	Help: "Number of pools created",
})

var poolsDestroyed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lptree_pools_destroyed",
	Help: "Number of pools destroyed",
})

var liquidityJoins = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lptree_liquidity_joins",
	Help: "Number of stake additions, by the way the slot was obtained",
}, []string{"kind"})

var liquidityExits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lptree_liquidity_exits",
	Help: "Number of stake removals",
}, []string{"kind"})

var feeDeposits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lptree_fee_deposits",
	Help: "Number of fee deposits",
})

var feeWithdrawals = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lptree_fee_withdrawals",
	Help: "Number of fee withdrawals",
})

var ledgerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lptree_ledger_failures",
	Help: "Number of failed ledger transfers",
}, []string{"op"})

var rejectedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lptree_rejected_operations",
	Help: "Number of operations rejected by the liquidity tree",
}, []string{"op"})
