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

import "github.com/Fantom-foundation/lptree/common"

const (
	ErrPoolNotFound = common.ConstError("pool not found")
	ErrPoolExists   = common.ConstError("pool already exists")
	ErrPoolNotEmpty = common.ConstError("pool still holds stake")
	ErrNoStake      = common.ConstError("pool holds no stake")
)
