// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package region

import "github.com/ffutop/nvram/nvram"

// Cell is one cell of a Bank. Cells are only reachable through Bank.Storage.
type Cell[T nvram.Word] struct {
	bank  *Bank[T]
	index int
}

var _ nvram.Cell[uint32] = (*Cell[uint32])(nil)

// Index returns the position of the cell in its bank.
func (c *Cell[T]) Index() int {
	return c.index
}

// Read returns the stored value.
func (c *Cell[T]) Read() (T, error) {
	return c.bank.read(c.index)
}

// Write persists v. It costs one physical write on the medium.
func (c *Cell[T]) Write(v T) error {
	return c.bank.write(c.index, v)
}
