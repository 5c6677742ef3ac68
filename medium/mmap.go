// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Mmap implements a medium using a memory-mapped file, the host-side
// analogue of a flash-backed region mapped into the address space.
// Cell writes land in the mapping and are flushed with msync.
type Mmap struct {
	path   string
	layout Layout
	file   *os.File
	data   mmap.MMap
}

// NewMmap creates a new Mmap medium.
func NewMmap(path string) *Mmap {
	return &Mmap{
		path: path,
	}
}

// Open maps the file, creating or resizing it to the layout size.
func (ms *Mmap) Open(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}

	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	if fi.Size() != int64(layout.Size()) {
		if err := f.Truncate(int64(layout.Size())); err != nil {
			f.Close()
			return fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("mmap failed: %w", err)
	}

	ms.file = f
	ms.layout = layout
	ms.data = data
	return nil
}

func (ms *Mmap) ReadCell(index int, p []byte) error {
	if ms.data == nil {
		return fmt.Errorf("mmap medium is not open")
	}
	if err := ms.layout.check(index, p); err != nil {
		return err
	}
	copy(p, ms.layout.cell(ms.data, index))
	return nil
}

// WriteCell stores the image in the mapping and flushes it to disk.
func (ms *Mmap) WriteCell(index int, p []byte) error {
	if ms.data == nil {
		return fmt.Errorf("mmap medium is not open")
	}
	if err := ms.layout.check(index, p); err != nil {
		return err
	}
	copy(ms.layout.cell(ms.data, index), p)
	if err := ms.data.Flush(); err != nil {
		return fmt.Errorf("failed to flush mmap: %w", err)
	}
	return nil
}

// Sync flushes the mmap to disk.
func (ms *Mmap) Sync() error {
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	return ms.data.Flush()
}

// Close unmaps and closes the file.
func (ms *Mmap) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
