// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import "fmt"

// Memory is a volatile medium backed by a byte slice, standing in for
// battery-backed SRAM. Its contents survive only as long as the value.
type Memory struct {
	layout Layout
	data   []byte
}

func NewMemory() *Memory {
	return &Memory{}
}

func (ms *Memory) Open(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	ms.layout = layout
	ms.data = make([]byte, layout.Size())
	return nil
}

func (ms *Memory) ReadCell(index int, p []byte) error {
	if ms.data == nil {
		return fmt.Errorf("memory medium is not open")
	}
	if err := ms.layout.check(index, p); err != nil {
		return err
	}
	copy(p, ms.layout.cell(ms.data, index))
	return nil
}

func (ms *Memory) WriteCell(index int, p []byte) error {
	if ms.data == nil {
		return fmt.Errorf("memory medium is not open")
	}
	if err := ms.layout.check(index, p); err != nil {
		return err
	}
	copy(ms.layout.cell(ms.data, index), p)
	return nil
}

func (ms *Memory) Sync() error {
	// No-op
	return nil
}

func (ms *Memory) Close() error {
	ms.data = nil
	return nil
}
