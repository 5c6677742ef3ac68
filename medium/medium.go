// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package medium provides the physical backends a storage bank is built on.
// A medium only moves fixed-size cell images; it knows nothing about the
// value type stored in them.
package medium

// Medium defines the interface for a cell-addressed persistent region.
type Medium interface {
	// Open prepares the medium for the given layout. Cells never written
	// before read back as zero bytes.
	Open(layout Layout) error

	// ReadCell copies the image of cell index into p (len(p) == CellSize).
	ReadCell(index int, p []byte) error

	// WriteCell stores p as the image of cell index and persists it before
	// returning (a physical write cycle on the backing store).
	WriteCell(index int, p []byte) error

	// Sync flushes any buffered state to the backing store.
	Sync() error

	// Close releases the medium. It is safe to call on an unopened medium.
	Close() error
}
