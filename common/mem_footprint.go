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
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// MemoryFootprint describes the memory consumption of a data structure as a
// tree of named components.
type MemoryFootprint struct {
	value    uintptr
	children map[string]*MemoryFootprint
}

// MemoryFootprintProvider is implemented by types able to report their
// memory usage.
type MemoryFootprintProvider interface {
	GetMemoryFootprint() *MemoryFootprint
}

func NewMemoryFootprint(value uintptr) *MemoryFootprint {
	return &MemoryFootprint{
		value:    value,
		children: make(map[string]*MemoryFootprint),
	}
}

func (mf *MemoryFootprint) AddChild(name string, child *MemoryFootprint) {
	if child == nil {
		return
	}
	mf.children[name] = child
}

func (mf *MemoryFootprint) GetChild(name string) *MemoryFootprint {
	return mf.children[name]
}

func (mf *MemoryFootprint) Value() uintptr {
	return mf.value
}

// Total sums up the values of this footprint and all its children. Shared
// children are only counted once.
func (mf *MemoryFootprint) Total() uintptr {
	includedObjects := make(map[*MemoryFootprint]bool)
	return includeObjectIntoTotal(mf, includedObjects)
}

func includeObjectIntoTotal(mf *MemoryFootprint, includedObjects map[*MemoryFootprint]bool) (total uintptr) {
	if _, exists := includedObjects[mf]; exists {
		return 0
	}
	includedObjects[mf] = true
	total = mf.value
	for _, child := range mf.children {
		total += includeObjectIntoTotal(child, includedObjects)
	}
	return total
}

func (mf *MemoryFootprint) String() string {
	var sb strings.Builder
	mf.toStringBuilder(&sb, ".", map[*MemoryFootprint]bool{})
	return sb.String()
}

// toStringBuilder prints children before their parent, ordered by name.
func (mf *MemoryFootprint) toStringBuilder(sb *strings.Builder, path string, visited map[*MemoryFootprint]bool) {
	if visited[mf] {
		return
	}
	visited[mf] = true
	names := maps.Keys(mf.children)
	slices.Sort(names)
	for _, name := range names {
		mf.children[name].toStringBuilder(sb, path+"/"+name, visited)
	}
	fmt.Fprintf(sb, "%s %s\n", memoryAmountToString(mf.Total()), path)
}

func memoryAmountToString(bytes uintptr) string {
	const unit = 1024
	const prefixes = " KMGTPE"
	value, exp := float64(bytes), 0
	for value >= unit && exp+1 < len(prefixes) {
		value /= unit
		exp++
	}
	return fmt.Sprintf("%6.1f %cB", value, prefixes[exp])
}
