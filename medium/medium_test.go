// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLayout(t *testing.T) {
	l := Layout{CellCount: 4, CellSize: 8}
	if l.Size() != 32 {
		t.Errorf("Size() = %d, want 32", l.Size())
	}
	if l.Offset(3) != 24 {
		t.Errorf("Offset(3) = %d, want 24", l.Offset(3))
	}
	if err := l.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	tests := []struct {
		name   string
		layout Layout
	}{
		{"ZeroCells", Layout{CellCount: 0, CellSize: 4}},
		{"ZeroSize", Layout{CellCount: 4, CellSize: 0}},
		{"Negative", Layout{CellCount: -1, CellSize: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.layout.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type factory func(dir string) Medium

func hostMedia() map[string]factory {
	return map[string]factory{
		"memory": func(string) Medium { return NewMemory() },
		"file":   func(dir string) Medium { return NewFile(filepath.Join(dir, "cells.bin")) },
		"mmap":   func(dir string) Medium { return NewMmap(filepath.Join(dir, "cells.mmap")) },
		"sqlite": func(dir string) Medium { return NewSQLite(filepath.Join(dir, "cells.db"), "bank") },
		"bolt":   func(dir string) Medium { return NewBolt(filepath.Join(dir, "cells.bolt"), "bank") },
	}
}

func TestMedium_ReadWrite(t *testing.T) {
	layout := Layout{CellCount: 3, CellSize: 2}
	for name, newMedium := range hostMedia() {
		t.Run(name, func(t *testing.T) {
			m := newMedium(t.TempDir())
			if err := m.Open(layout); err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer m.Close()

			// Never-written cells read back as zero.
			buf := []byte{0xEE, 0xEE}
			if err := m.ReadCell(1, buf); err != nil {
				t.Fatalf("ReadCell failed: %v", err)
			}
			if !bytes.Equal(buf, []byte{0, 0}) {
				t.Errorf("fresh cell = %X, want 0000", buf)
			}

			if err := m.WriteCell(1, []byte{0xCA, 0xFE}); err != nil {
				t.Fatalf("WriteCell failed: %v", err)
			}
			if err := m.ReadCell(1, buf); err != nil {
				t.Fatalf("ReadCell failed: %v", err)
			}
			if !bytes.Equal(buf, []byte{0xCA, 0xFE}) {
				t.Errorf("cell 1 = %X, want CAFE", buf)
			}
			if err := m.ReadCell(0, buf); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf, []byte{0, 0}) {
				t.Errorf("neighbour cell 0 = %X, want 0000", buf)
			}
			if err := m.Sync(); err != nil {
				t.Errorf("Sync failed: %v", err)
			}
		})
	}
}

func TestMedium_Bounds(t *testing.T) {
	layout := Layout{CellCount: 2, CellSize: 4}
	for name, newMedium := range hostMedia() {
		t.Run(name, func(t *testing.T) {
			m := newMedium(t.TempDir())
			if err := m.Open(layout); err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer m.Close()

			if err := m.WriteCell(2, make([]byte, 4)); err == nil {
				t.Error("expected error for index past the end")
			}
			if err := m.ReadCell(-1, make([]byte, 4)); err == nil {
				t.Error("expected error for negative index")
			}
			if err := m.WriteCell(0, make([]byte, 3)); err == nil {
				t.Error("expected error for short cell image")
			}
		})
	}
}

func TestMedium_NotOpen(t *testing.T) {
	for name, newMedium := range hostMedia() {
		t.Run(name, func(t *testing.T) {
			m := newMedium(t.TempDir())
			if err := m.ReadCell(0, make([]byte, 1)); err == nil {
				t.Error("expected error reading an unopened medium")
			}
			if err := m.Close(); err != nil {
				t.Errorf("Close on unopened medium = %v", err)
			}
		})
	}
}

func TestMedium_Reopen(t *testing.T) {
	layout := Layout{CellCount: 4, CellSize: 4}
	for name, newMedium := range hostMedia() {
		if name == "memory" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			m := newMedium(dir)
			if err := m.Open(layout); err != nil {
				t.Fatal(err)
			}
			if err := m.WriteCell(3, []byte{1, 2, 3, 4}); err != nil {
				t.Fatal(err)
			}
			if err := m.Close(); err != nil {
				t.Fatal(err)
			}

			m = newMedium(dir)
			if err := m.Open(layout); err != nil {
				t.Fatal(err)
			}
			defer m.Close()
			buf := make([]byte, 4)
			if err := m.ReadCell(3, buf); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
				t.Errorf("cell 3 after reopen = %X, want 01020304", buf)
			}
		})
	}
}

func TestMedium_Shrink(t *testing.T) {
	// Reopening with fewer cells drops the tail; growing again reads zeros.
	for name, newMedium := range hostMedia() {
		if name == "memory" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			open := func(count int) Medium {
				m := newMedium(dir)
				if err := m.Open(Layout{CellCount: count, CellSize: 1}); err != nil {
					t.Fatal(err)
				}
				return m
			}

			m := open(4)
			if err := m.WriteCell(3, []byte{9}); err != nil {
				t.Fatal(err)
			}
			m.Close()
			open(2).Close()

			m = open(4)
			defer m.Close()
			buf := make([]byte, 1)
			if err := m.ReadCell(3, buf); err != nil {
				t.Fatal(err)
			}
			if buf[0] != 0 {
				t.Errorf("cell 3 after shrink and grow = %d, want 0", buf[0])
			}
		})
	}
}

func TestFile_Size(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells.bin")
	m := NewFile(path)
	if err := m.Open(Layout{CellCount: 10, CellSize: 4}); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 40 {
		t.Errorf("file size = %d, want 40", fi.Size())
	}
}

func TestSQL_BanksShareTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	layout := Layout{CellCount: 2, CellSize: 1}

	a := NewSQLite(path, "a")
	if err := a.Open(layout); err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b := NewSQLite(path, "b")
	if err := b.Open(layout); err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.WriteCell(0, []byte{1}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 1)
	if err := b.ReadCell(0, buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0 {
		t.Errorf("bank b sees bank a's cell: %d", buf[0])
	}
}

func TestSQL_RequiresBank(t *testing.T) {
	m := NewSQLite(filepath.Join(t.TempDir(), "x.db"), " ")
	if err := m.Open(Layout{CellCount: 1, CellSize: 1}); err == nil {
		t.Error("expected error for empty bank name")
	}
}
