// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import (
	"fmt"
	"io"
	"os"
)

// File implements a medium using file operations, emulating an EEPROM: the
// whole image is cached in memory and every cell write goes to the file at
// the cell's offset followed by an fsync.
//
// The file holds the flat image described by Layout and nothing else.
type File struct {
	path   string
	layout Layout
	file   *os.File
	data   []byte
}

// NewFile creates a new File medium.
func NewFile(path string) *File {
	return &File{
		path: path,
	}
}

// Open opens the file, creating or resizing it to the layout size.
func (ms *File) Open(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}

	// Open file, creating if necessary
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	if fi.Size() != int64(layout.Size()) {
		if err := f.Truncate(int64(layout.Size())); err != nil {
			f.Close()
			return fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read file: %w", err)
	}

	ms.file = f
	ms.layout = layout
	ms.data = data
	return nil
}

func (ms *File) ReadCell(index int, p []byte) error {
	if ms.file == nil {
		return fmt.Errorf("file medium is not open")
	}
	if err := ms.layout.check(index, p); err != nil {
		return err
	}
	copy(p, ms.layout.cell(ms.data, index))
	return nil
}

// WriteCell writes the cell image at its offset and syncs the file.
func (ms *File) WriteCell(index int, p []byte) error {
	if ms.file == nil {
		return fmt.Errorf("file medium is not open")
	}
	if err := ms.layout.check(index, p); err != nil {
		return err
	}
	if _, err := ms.file.WriteAt(p, int64(ms.layout.Offset(index))); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	copy(ms.layout.cell(ms.data, index), p)
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Sync writes the whole cached image back and flushes it to disk.
func (ms *File) Sync() error {
	if ms.data == nil || ms.file == nil {
		return nil
	}
	if _, err := ms.file.WriteAt(ms.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *File) Close() error {
	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	ms.data = nil
	return err
}
