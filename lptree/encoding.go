// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package lptree

import (
	"encoding/binary"
	"fmt"

	"github.com/Fantom-foundation/lptree/common"
	"github.com/Fantom-foundation/lptree/common/amount"
)

// The binary format of a tree is
//
//	version           1 byte
//	max depth         1 byte
//	#nodes            4 byte
//	#abandoned        4 byte
//	nodes             #nodes x nodeEncodingSize
//	abandoned         #abandoned x 4 byte
//	keccak256         32 byte of everything above
//
// All integers are big-endian. The account index is not stored, it is
// restored from the occupied nodes.
const (
	encodingVersion  = 1
	headerSize       = 1 + 1 + 4 + 4
	nodeEncodingSize = 1 + common.AddressSize + 4*amount.BytesLength
	indexSize        = 4
)

// MarshalBinary encodes the full tree into a single blob.
func (t *Tree) MarshalBinary() ([]byte, error) {
	size := headerSize + len(t.nodes)*nodeEncodingSize + len(t.abandoned)*indexSize + common.HashSize
	res := make([]byte, 0, size)
	res = append(res, encodingVersion, byte(t.config.MaxDepth))
	res = binary.BigEndian.AppendUint32(res, uint32(len(t.nodes)))
	res = binary.BigEndian.AppendUint32(res, uint32(len(t.abandoned)))
	for i := range t.nodes {
		res = t.nodes[i].appendTo(res)
	}
	for _, index := range t.abandoned {
		res = binary.BigEndian.AppendUint32(res, uint32(index))
	}
	hash := common.Keccak256(res)
	return append(res, hash[:]...), nil
}

// UnmarshalBinary replaces the content of this tree by the decoded blob. The
// decoded tree is checked for consistency; on failure, the tree is left
// unmodified.
func (t *Tree) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize+common.HashSize {
		return fmt.Errorf("%w: blob of %d bytes too short", ErrCorruptedEncoding, len(data))
	}
	content, checksum := data[:len(data)-common.HashSize], data[len(data)-common.HashSize:]
	if hash := common.Keccak256(content); hash != common.Hash(checksum) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptedEncoding)
	}
	if content[0] != encodingVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptedEncoding, content[0])
	}
	config := Config{MaxDepth: int(content[1])}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedEncoding, err)
	}
	numNodes := int(binary.BigEndian.Uint32(content[2:]))
	numAbandoned := int(binary.BigEndian.Uint32(content[6:]))
	if numNodes < 1 || numNodes > config.Capacity() || numAbandoned > numNodes {
		return fmt.Errorf("%w: invalid sizes, %d nodes, %d abandoned, capacity %d", ErrCorruptedEncoding, numNodes, numAbandoned, config.Capacity())
	}
	if want := headerSize + numNodes*nodeEncodingSize + numAbandoned*indexSize; len(content) != want {
		return fmt.Errorf("%w: invalid length, wanted %d bytes, got %d", ErrCorruptedEncoding, want, len(content))
	}

	res := &Tree{
		config:    config,
		nodes:     make([]node, numNodes),
		accounts:  make(map[common.Address]int, numNodes),
		abandoned: make([]int, numAbandoned),
	}
	pos := headerSize
	for i := range res.nodes {
		if err := res.nodes[i].readFrom(content[pos : pos+nodeEncodingSize]); err != nil {
			return fmt.Errorf("%w: node %d: %w", ErrCorruptedEncoding, i, err)
		}
		pos += nodeEncodingSize
		if n := &res.nodes[i]; n.occupied {
			if _, found := res.accounts[n.account]; found {
				return fmt.Errorf("%w: account %v occupies multiple slots", ErrCorruptedEncoding, n.account)
			}
			res.accounts[n.account] = i
		}
	}
	for i := range res.abandoned {
		res.abandoned[i] = int(binary.BigEndian.Uint32(content[pos:]))
		pos += indexSize
	}
	if err := res.Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedEncoding, err)
	}
	*t = *res
	return nil
}

// Decode creates a tree from a blob produced by MarshalBinary.
func Decode(data []byte) (*Tree, error) {
	res := &Tree{}
	if err := res.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return res, nil
}

func (n *node) appendTo(trg []byte) []byte {
	flag := byte(0)
	if n.occupied {
		flag = 1
	}
	trg = append(trg, flag)
	trg = append(trg, n.account[:]...)
	for _, value := range []amount.Amount{n.stake, n.fees, n.descendantStake, n.lazyFees} {
		bytes := value.Bytes32()
		trg = append(trg, bytes[:]...)
	}
	return trg
}

func (n *node) readFrom(src []byte) error {
	switch src[0] {
	case 0:
		n.occupied = false
	case 1:
		n.occupied = true
	default:
		return fmt.Errorf("invalid occupation flag %d", src[0])
	}
	copy(n.account[:], src[1:1+common.AddressSize])
	if !n.occupied && n.account != (common.Address{}) {
		return fmt.Errorf("abandoned slot with account %v", n.account)
	}
	pos := 1 + common.AddressSize
	for _, value := range []*amount.Amount{&n.stake, &n.fees, &n.descendantStake, &n.lazyFees} {
		*value = amount.NewFromBytes(src[pos : pos+amount.BytesLength]...)
		pos += amount.BytesLength
	}
	return nil
}
