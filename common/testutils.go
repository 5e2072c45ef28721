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
	"encoding/binary"
	"testing"
)

func AssertArraysEqual[V comparable](t *testing.T, first, second []V) {
	t.Helper()
	if len(first) != len(second) {
		t.Errorf("array sizes differ, %d != %d", len(first), len(second))
		return
	}
	for i := 0; i < len(first); i++ {
		if first[i] != second[i] {
			t.Errorf("assertValues failed: %v != %v", first[i], second[i])
		}
	}
}

// AddressFromNumber creates a distinct address for each number, intended for tests.
func AddressFromNumber(num int) (address Address) {
	addr := binary.BigEndian.AppendUint32([]byte{}, uint32(num))
	copy(address[:], addr)
	return
}
