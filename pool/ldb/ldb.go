// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package ldb

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/lptree"
	"github.com/Fantom-foundation/lptree/pool"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// TableSpace divides the key-value storage into spaces by adding a prefix to the key.
type TableSpace byte

const (
	// TreeKey is the table space of the encoded liquidity trees.
	TreeKey TableSpace = 'L'
)

// DbKey is a table space prefix followed by a big-endian pool id.
type DbKey [9]byte

func ToDBKey(t TableSpace, id pool.PoolId) DbKey {
	var key DbKey
	key[0] = byte(t)
	idBytes := id.Bytes()
	copy(key[1:], idBytes[:])
	return key
}

func (k DbKey) ToBytes() []byte {
	return k[:]
}

// levelDbStore stores each tree as a single value in LevelDB.
type levelDbStore struct {
	db  *leveldb.DB
	mf  *common.MemoryFootprint
	wo  *opt.WriteOptions
	ro  *opt.ReadOptions
	tsp TableSpace
}

// OpenStore opens or creates a LevelDB-backed store in the given directory.
func OpenStore(directory string) (pool.Store, error) {
	return OpenStoreWithOptions(directory, nil)
}

// OpenStoreWithOptions is like OpenStore, allowing to customize LevelDB.
func OpenStoreWithOptions(directory string, options *opt.Options) (pool.Store, error) {
	db, err := leveldb.OpenFile(directory, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB in %s: %w", directory, err)
	}
	mf := common.NewMemoryFootprint(0)
	mf.AddChild("writeBuffer", common.NewMemoryFootprint(uintptr(options.GetWriteBuffer())))
	return &levelDbStore{
		db:  db,
		mf:  mf,
		wo:  &opt.WriteOptions{},
		ro:  &opt.ReadOptions{},
		tsp: TreeKey,
	}, nil
}

func (s *levelDbStore) Load(id pool.PoolId) (*lptree.Tree, error) {
	key := ToDBKey(s.tsp, id)
	blob, err := s.db.Get(key.ToBytes(), s.ro)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", pool.ErrPoolNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	tree, err := lptree.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", id, err)
	}
	return tree, nil
}

func (s *levelDbStore) Save(id pool.PoolId, tree *lptree.Tree) error {
	blob, err := tree.MarshalBinary()
	if err != nil {
		return err
	}
	key := ToDBKey(s.tsp, id)
	return s.db.Put(key.ToBytes(), blob, s.wo)
}

func (s *levelDbStore) Delete(id pool.PoolId) error {
	key := ToDBKey(s.tsp, id)
	return s.db.Delete(key.ToBytes(), s.wo)
}

func (s *levelDbStore) Ids() ([]pool.PoolId, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{byte(s.tsp)}), s.ro)
	defer iter.Release()

	res := []pool.PoolId{}
	for iter.Next() {
		id, err := pool.PoolIdFromBytes(iter.Key()[1:])
		if err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, iter.Error()
}

func (s *levelDbStore) GetMemoryFootprint() *common.MemoryFootprint {
	var stats leveldb.DBStats
	if err := s.db.Stats(&stats); err != nil {
		panic(fmt.Errorf("failed to get LevelDB Stats; %s", err))
	}
	s.mf.AddChild("blockCache", common.NewMemoryFootprint(uintptr(stats.BlockCacheSize)))
	return s.mf
}

// Flush is a no-op, each write is recorded in the LevelDB journal.
func (s *levelDbStore) Flush() error {
	return nil
}

func (s *levelDbStore) Close() error {
	return s.db.Close()
}
