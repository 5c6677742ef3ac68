// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nvram

// State is the lifecycle position of a bank instance.
// DumpStorage is valid in every state and never changes it.
type State int

const (
	StateUninitialized State = iota
	StateCleared
	StateLiveAccessGranted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCleared:
		return "cleared"
	case StateLiveAccessGranted:
		return "live-access-granted"
	default:
		return "unknown"
	}
}
