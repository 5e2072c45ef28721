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

import "fmt"

const (
	// DefaultMaxDepth is the depth used by DefaultConfig, providing 1023 slots.
	DefaultMaxDepth = 9

	// MaxSupportedDepth limits the depth such that every index fits into the
	// 32-bit indexes used by the binary encoding.
	MaxSupportedDepth = 30
)

// Config defines the shape limits of a liquidity tree.
type Config struct {
	// MaxDepth is the maximum depth of the tree, the root being at depth 0.
	MaxDepth int
}

func DefaultConfig() Config {
	return Config{MaxDepth: DefaultMaxDepth}
}

// Capacity is the maximum number of slots, 2^(MaxDepth+1) - 1.
func (c Config) Capacity() int {
	return 1<<(c.MaxDepth+1) - 1
}

func (c Config) Validate() error {
	if c.MaxDepth < 0 || c.MaxDepth > MaxSupportedDepth {
		return fmt.Errorf("%w: %d not in range [0,%d]", ErrInvalidDepth, c.MaxDepth, MaxSupportedDepth)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("depth=%d/capacity=%d", c.MaxDepth, c.Capacity())
}
