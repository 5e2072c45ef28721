// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.
package memory

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/lptree"
	"github.com/Fantom-foundation/lptree/pool"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const dataFormatVersion = 1

type metadata struct {
	Version  int
	NumPools int
}

// inMemoryStore keeps the encoded trees of all pools in memory and writes
// them to its directory on flush.
type inMemoryStore struct {
	blobs     map[pool.PoolId][]byte
	directory string
	lock      *common.LockFile
}

// OpenStore opens an in-memory store backed by the given directory. Trees
// previously flushed to the directory are loaded. The directory is locked
// until the store is closed.
func OpenStore(directory string) (pool.Store, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, err
	}
	lock, err := common.CreateLockFile(filepath.Join(directory, "~lock"))
	if err != nil {
		return nil, err
	}
	res, err := loadStore(directory)
	if err != nil {
		return nil, errors.Join(err, lock.Release())
	}
	res.lock = lock
	return res, nil
}

func loadStore(directory string) (*inMemoryStore, error) {
	res := &inMemoryStore{
		blobs:     map[pool.PoolId][]byte{},
		directory: directory,
	}

	metafile := filepath.Join(directory, "meta.json")
	if _, err := os.Stat(metafile); errors.Is(err, fs.ErrNotExist) {
		return res, nil
	} else if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(metafile)
	if err != nil {
		return nil, err
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.Version != dataFormatVersion {
		return nil, fmt.Errorf("invalid file format version, got %d, wanted %d", meta.Version, dataFormatVersion)
	}

	file, err := os.Open(filepath.Join(directory, "pools.dat"))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	reader := bufio.NewReader(file)
	var header [12]byte
	for i := 0; i < meta.NumPools; i++ {
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			return nil, err
		}
		id := pool.PoolId(binary.BigEndian.Uint64(header[0:8]))
		blob := make([]byte, binary.BigEndian.Uint32(header[8:12]))
		if _, err := io.ReadFull(reader, blob); err != nil {
			return nil, err
		}
		res.blobs[id] = blob
	}
	return res, nil
}

func (s *inMemoryStore) Load(id pool.PoolId) (*lptree.Tree, error) {
	blob, found := s.blobs[id]
	if !found {
		return nil, fmt.Errorf("%w: %v", pool.ErrPoolNotFound, id)
	}
	tree, err := lptree.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", id, err)
	}
	return tree, nil
}

func (s *inMemoryStore) Save(id pool.PoolId, tree *lptree.Tree) error {
	blob, err := tree.MarshalBinary()
	if err != nil {
		return err
	}
	s.blobs[id] = blob
	return nil
}

func (s *inMemoryStore) Delete(id pool.PoolId) error {
	delete(s.blobs, id)
	return nil
}

func (s *inMemoryStore) Ids() ([]pool.PoolId, error) {
	ids := maps.Keys(s.blobs)
	slices.Sort(ids)
	return ids, nil
}

func (s *inMemoryStore) GetMemoryFootprint() *common.MemoryFootprint {
	entrySize := unsafe.Sizeof(pool.PoolId(0)) + unsafe.Sizeof([]byte{})
	size := uintptr(0)
	for _, blob := range s.blobs {
		size += uintptr(cap(blob))
	}
	res := common.NewMemoryFootprint(unsafe.Sizeof(*s))
	res.AddChild("index", common.NewMemoryFootprint(entrySize*uintptr(len(s.blobs))))
	res.AddChild("blobs", common.NewMemoryFootprint(size))
	return res
}

func (s *inMemoryStore) Flush() error {
	if err := os.MkdirAll(s.directory, 0700); err != nil {
		return err
	}

	// Pools are written before the metadata, which only refers to
	// complete pool files.
	ids, err := s.Ids()
	if err != nil {
		return err
	}
	file, err := os.Create(filepath.Join(s.directory, "pools.dat"))
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	var header [12]byte
	for _, id := range ids {
		blob := s.blobs[id]
		binary.BigEndian.PutUint64(header[0:8], uint64(id))
		binary.BigEndian.PutUint32(header[8:12], uint32(len(blob)))
		if _, err := writer.Write(header[:]); err != nil {
			file.Close()
			return err
		}
		if _, err := writer.Write(blob); err != nil {
			file.Close()
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	meta, err := json.Marshal(metadata{
		Version:  dataFormatVersion,
		NumPools: len(ids),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.directory, "meta.json"), meta, 0600)
}

func (s *inMemoryStore) Close() error {
	return errors.Join(s.Flush(), s.lock.Release())
}
