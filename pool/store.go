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
	"encoding/binary"
	"fmt"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/lptree"
)

//go:generate mockgen -source store.go -destination store_mocks.go -package pool

// PoolId identifies a pool, and thereby its liquidity tree.
type PoolId uint64

func (id PoolId) String() string {
	return fmt.Sprintf("pool-%d", uint64(id))
}

// Bytes returns the big-endian encoding of the id, preserving its order.
func (id PoolId) Bytes() [8]byte {
	var res [8]byte
	binary.BigEndian.PutUint64(res[:], uint64(id))
	return res
}

// PoolIdFromBytes is the inverse of PoolId.Bytes.
func PoolIdFromBytes(data []byte) (PoolId, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid pool id length %d", len(data))
	}
	return PoolId(binary.BigEndian.Uint64(data)), nil
}

// Store persists the liquidity trees of pools. Each tree is stored as a
// single opaque blob keyed by its pool id; partial access is not supported.
// Trees obtained from a store are independent copies: modifications become
// visible to other users of the store only once they are saved.
type Store interface {
	// Load retrieves the tree of the given pool or fails with ErrPoolNotFound.
	Load(PoolId) (*lptree.Tree, error)

	// Save stores the given tree, replacing any tree stored for the pool.
	Save(PoolId, *lptree.Tree) error

	// Delete removes the tree of the given pool. Deleting a missing pool is a no-op.
	Delete(PoolId) error

	// Ids lists the ids of all stored pools in ascending order.
	Ids() ([]PoolId, error)

	common.FlushAndCloser
}
