// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package region implements nvram.Bank over a medium.Medium.
//
// Cell values are stored as fixed-width images in the configured byte
// order. The cleared value is the zero value of T unless Config says
// otherwise. Each Write and each cell of a ClearStorage costs one physical
// write on the medium; DumpStorage reads every cell.
//
// A Bank and its cells may be used from several goroutines: cell access is
// serialized by the bank, and a dump holds the bank's read lock for its
// whole pass, so it never observes a half-written cell or a half-done clear.
package region

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/nvram/medium"
	"github.com/ffutop/nvram/nvram"
)

// Config configures a Bank.
type Config[T nvram.Word] struct {
	Name         string           // used in logs
	CellCount    int              // fixed for the lifetime of the bank
	ClearedValue T                // value written by ClearStorage
	ByteOrder    binary.ByteOrder // defaults to little-endian
	Logger       *slog.Logger     // defaults to slog.Default()
}

// Bank is a fixed-size bank of cells over one medium.
type Bank[T nvram.Word] struct {
	name    string
	medium  medium.Medium
	layout  medium.Layout
	order   binary.ByteOrder
	cleared T
	logger  *slog.Logger

	grant nvram.Grant
	cells []*Cell[T]

	mu      sync.RWMutex
	state   nvram.State
	closed  bool
	scratch []byte // cell image buffer, guarded by mu (write lock)
}

var _ nvram.Bank[*Cell[uint32], uint32] = (*Bank[uint32])(nil)

// Open opens m with a layout of cfg.CellCount cells of T and returns the bank.
// The bank owns m from then on and closes it in Close.
func Open[T nvram.Word](m medium.Medium, cfg Config[T]) (*Bank[T], error) {
	if m == nil {
		return nil, fmt.Errorf("medium is required")
	}
	layout := medium.Layout{CellCount: cfg.CellCount, CellSize: nvram.WordSize[T]()}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if err := m.Open(layout); err != nil {
		return nil, &nvram.MediumError{Op: "open", Index: -1, Err: err}
	}

	b := &Bank[T]{
		name:    cfg.Name,
		medium:  m,
		layout:  layout,
		order:   cfg.ByteOrder,
		cleared: cfg.ClearedValue,
		logger:  cfg.Logger,
		scratch: make([]byte, layout.CellSize),
	}
	if b.order == nil {
		b.order = binary.LittleEndian
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("bank", b.name)

	b.cells = make([]*Cell[T], layout.CellCount)
	for i := range b.cells {
		b.cells[i] = &Cell[T]{bank: b, index: i}
	}

	b.logger.Debug("Opened NVRAM bank", "cells", layout.CellCount, "cell_size", layout.CellSize)
	return b, nil
}

// Name returns the bank name.
func (b *Bank[T]) Name() string {
	return b.name
}

// CellCount returns the number of cells in the bank.
func (b *Bank[T]) CellCount() int {
	return b.layout.CellCount
}

// ClearedValue returns the value ClearStorage writes to every cell.
func (b *Bank[T]) ClearedValue() T {
	return b.cleared
}

// State returns the lifecycle state of the bank.
func (b *Bank[T]) State() nvram.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Storage grants the live cells, once. The returned slice has CellCount
// entries in index order; callers must not resize it.
func (b *Bank[T]) Storage() ([]*Cell[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nvram.ErrClosed
	}
	if err := b.grant.Acquire(); err != nil {
		b.logger.Error("Rejected second live access grant")
		return nil, err
	}
	b.state = nvram.StateLiveAccessGranted

	b.logger.Debug("Granted live access")
	return b.cells, nil
}

// DumpStorage returns a snapshot of all cell values.
func (b *Bank[T]) DumpStorage() ([]T, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, nvram.ErrClosed
	}

	values := make([]T, b.layout.CellCount)
	buf := make([]byte, b.layout.CellSize)
	for i := range values {
		if err := b.medium.ReadCell(i, buf); err != nil {
			b.logger.Error("Failed to dump cell", "index", i, "err", err)
			return nil, &nvram.MediumError{Op: "dump", Index: i, Err: err}
		}
		v, err := nvram.DecodeWord[T](b.order, buf)
		if err != nil {
			return nil, &nvram.MediumError{Op: "dump", Index: i, Err: err}
		}
		values[i] = v
	}
	return values, nil
}

// ClearStorage writes the cleared value to every cell and syncs the medium.
func (b *Bank[T]) ClearStorage() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nvram.ErrClosed
	}

	if err := nvram.EncodeWord(b.order, b.scratch, b.cleared); err != nil {
		return &nvram.MediumError{Op: "clear", Index: -1, Err: err}
	}
	for i := 0; i < b.layout.CellCount; i++ {
		if err := b.medium.WriteCell(i, b.scratch); err != nil {
			b.logger.Error("Failed to clear cell", "index", i, "err", err)
			return &nvram.MediumError{Op: "clear", Index: i, Err: err}
		}
	}
	if err := b.medium.Sync(); err != nil {
		b.logger.Error("Failed to sync after clear", "err", err)
		return &nvram.MediumError{Op: "sync", Index: -1, Err: err}
	}

	if b.state == nvram.StateUninitialized {
		b.state = nvram.StateCleared
	}
	b.logger.Debug("Cleared NVRAM bank", "cleared_value", b.cleared)
	return nil
}

// Sync flushes the medium.
func (b *Bank[T]) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nvram.ErrClosed
	}
	if err := b.medium.Sync(); err != nil {
		return &nvram.MediumError{Op: "sync", Index: -1, Err: err}
	}
	return nil
}

// Close closes the medium. Later operations return nvram.ErrClosed.
func (b *Bank[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.medium.Close()
}

func (b *Bank[T]) read(index int) (T, error) {
	var zero T

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return zero, nvram.ErrClosed
	}

	buf := make([]byte, b.layout.CellSize)
	if err := b.medium.ReadCell(index, buf); err != nil {
		b.logger.Error("Failed to read cell", "index", index, "err", err)
		return zero, &nvram.MediumError{Op: "read", Index: index, Err: err}
	}
	v, err := nvram.DecodeWord[T](b.order, buf)
	if err != nil {
		return zero, &nvram.MediumError{Op: "read", Index: index, Err: err}
	}
	return v, nil
}

func (b *Bank[T]) write(index int, v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nvram.ErrClosed
	}

	if err := nvram.EncodeWord(b.order, b.scratch, v); err != nil {
		return &nvram.MediumError{Op: "write", Index: index, Err: err}
	}
	if err := b.medium.WriteCell(index, b.scratch); err != nil {
		b.logger.Error("Failed to write cell", "index", index, "err", err)
		return &nvram.MediumError{Op: "write", Index: index, Err: err}
	}
	return nil
}
