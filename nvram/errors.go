// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nvram

import (
	"errors"
	"fmt"
)

var (
	// ErrLiveAccessGranted is returned by Storage once the live cells have
	// already been handed out.
	ErrLiveAccessGranted = errors.New("nvram: live access already granted")

	// ErrIndexOutOfRange is returned when a cell index is outside the bank.
	ErrIndexOutOfRange = errors.New("nvram: cell index out of range")

	// ErrClosed is returned by operations on a bank whose medium was closed.
	ErrClosed = errors.New("nvram: bank is closed")
)

// MediumError reports a failure of the underlying storage medium.
type MediumError struct {
	Op    string // "read", "write", "dump", "clear", "sync", "open"
	Index int    // cell index, -1 for whole-bank operations
	Err   error
}

func (e *MediumError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("nvram: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("nvram: %s cell %d: %v", e.Op, e.Index, e.Err)
}

func (e *MediumError) Unwrap() error {
	return e.Err
}
