// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"encoding/hex"
	"fmt"
)

// AddressSize is the number of bytes of an account address.
const AddressSize = 20

// HashSize is the number of bytes of a Keccak256 hash.
const HashSize = 32

// Address identifies an account, e.g. a liquidity provider or a pool.
type Address [AddressSize]byte

// Hash is a 32-byte Keccak256 digest.
type Hash [HashSize]byte

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// AddressFromHex parses an address given as 40 hex digits, optionally prefixed
// by 0x.
func AddressFromHex(str string) (Address, error) {
	var res Address
	if len(str) >= 2 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X') {
		str = str[2:]
	}
	if len(str) != 2*AddressSize {
		return res, fmt.Errorf("invalid address length, wanted %d hex digits, got %d", 2*AddressSize, len(str))
	}
	if _, err := hex.Decode(res[:], []byte(str)); err != nil {
		return res, fmt.Errorf("invalid address %q: %w", str, err)
	}
	return res, nil
}
