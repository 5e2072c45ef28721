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
	"os"
)

// LockFile marks the exclusive ownership of a resource, typically a data
// directory, by the existence of a file. The file is created atomically and
// removed on release. Locks not released by a process remain in place after
// the process ends.
type LockFile struct {
	path string
	file *os.File
}

// CreateLockFile creates the file at the given path and holds it. It fails
// if the file already exists.
func CreateLockFile(path string) (*LockFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}
	return &LockFile{path: path, file: file}, nil
}

// Valid is true until the lock is released.
func (l *LockFile) Valid() bool {
	return l != nil && l.file != nil
}

// Release closes and removes the lock file. Each lock may only be released once.
func (l *LockFile) Release() error {
	if !l.Valid() {
		return fmt.Errorf("unable to release invalid lock")
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to release file lock: %w", err)
	}
	l.file = nil
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("failed to release file lock: %w", err)
	}
	return nil
}
