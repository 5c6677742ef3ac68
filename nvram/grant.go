// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nvram

import "sync/atomic"

// Grant is a one-shot flag guarding live access to a bank.
// The zero value is ready to use. A Grant must not be copied after first use.
type Grant struct {
	taken atomic.Bool
}

// Acquire takes the grant. Exactly one call succeeds over the lifetime of g,
// even when callers race; every other call returns ErrLiveAccessGranted.
func (g *Grant) Acquire() error {
	if !g.taken.CompareAndSwap(false, true) {
		return ErrLiveAccessGranted
	}
	return nil
}

// Granted reports whether the grant has been taken.
func (g *Grant) Granted() bool {
	return g.taken.Load()
}
