// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import "fmt"

// Layout describes a region as CellCount consecutive cells of CellSize bytes.
//
// Cell i occupies bytes [i*CellSize, (i+1)*CellSize) of a flat image.
type Layout struct {
	CellCount int
	CellSize  int
}

// Size returns the size of the flat image in bytes.
func (l Layout) Size() int {
	return l.CellCount * l.CellSize
}

// Offset returns the byte offset of cell index in the flat image.
func (l Layout) Offset(index int) int {
	return index * l.CellSize
}

// Validate checks the layout is usable.
func (l Layout) Validate() error {
	if l.CellCount <= 0 {
		return fmt.Errorf("cell count must be greater than 0, got %d", l.CellCount)
	}
	if l.CellSize <= 0 {
		return fmt.Errorf("cell size must be greater than 0, got %d", l.CellSize)
	}
	return nil
}

func (l Layout) check(index int, p []byte) error {
	if index < 0 || index >= l.CellCount {
		return fmt.Errorf("cell index %d out of range [0, %d)", index, l.CellCount)
	}
	if len(p) != l.CellSize {
		return fmt.Errorf("cell image is %d bytes, want %d", len(p), l.CellSize)
	}
	return nil
}

// cell returns the slice of a flat image backing cell index.
func (l Layout) cell(data []byte, index int) []byte {
	off := l.Offset(index)
	return data[off : off+l.CellSize]
}
