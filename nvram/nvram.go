// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package nvram defines the contract between firmware and a non-volatile
// RAM driver: a Cell holds one typed value, a Bank owns a fixed number of
// cells belonging to one physical region.
//
// A Bank offers three access modes. Storage grants the live cell slice,
// at most once per instance. DumpStorage copies every value out for
// integrity checks without touching the grant. ClearStorage resets the
// whole bank to a documented cleared value.
package nvram

// Word is the set of value types a cell may hold. All members have a fixed
// size and no references, so a copy never aliases the stored value.
type Word interface {
	~bool |
		~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Cell is one addressable unit of non-volatile memory.
//
// Identity is positional: a cell is known by its index in the owning bank.
// Implementations must be safe to move between goroutines and must document
// the physical cost of Write (latency, wear).
type Cell[T Word] interface {
	// Read returns the stored value. It never mutates state.
	Read() (T, error)

	// Write persists v, replacing the previous value. A following Read
	// returns a value equal to v unless the medium was changed externally.
	Write(v T) error
}

// Bank is a fixed-size collection of cells of one kind over one NVRAM region.
//
// CellCount never changes for the lifetime of a bank and equals the length
// of every slice the bank hands out.
type Bank[C Cell[T], T Word] interface {
	// CellCount returns the number of cells in the bank.
	CellCount() int

	// Storage grants exclusive live access to the cells. It succeeds at most
	// once per bank instance; later calls return ErrLiveAccessGranted.
	Storage() ([]C, error)

	// DumpStorage returns a copy of every stored value. It may be called at
	// any time, any number of times, and does not consume the Storage grant.
	// It is meant for validation, not for ongoing traffic.
	DumpStorage() ([]T, error)

	// ClearStorage resets every cell to the implementation's cleared value.
	// Intended for device initialization, before Storage is called.
	ClearStorage() error
}

// MustStorage returns the live cells of b and panics if the grant was already
// taken. A second grant is a programming error, not a condition to recover from.
func MustStorage[C Cell[T], T Word](b Bank[C, T]) []C {
	cells, err := b.Storage()
	if err != nil {
		panic(err)
	}
	return cells
}
