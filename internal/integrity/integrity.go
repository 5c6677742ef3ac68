// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package integrity seals a bank with a checksum held in its last cell.
//
// The seal is the CRC-16/MODBUS of the little-endian images of every cell
// but the last. Seal writes it through live cells; Verify recomputes it from
// a dump, which makes it usable at boot before live access is granted.
package integrity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ffutop/nvram/modbus/crc"
	"github.com/ffutop/nvram/nvram"
)

// ErrChecksumMismatch is returned by Verify when the stored seal does not
// match the contents of the bank.
var ErrChecksumMismatch = errors.New("integrity: checksum mismatch")

// Integer is the set of cell types wide enough to hold a seal.
type Integer interface {
	~int16 | ~int32 | ~int64 | ~uint16 | ~uint32 | ~uint64
}

// Sum returns the checksum of values.
func Sum[T Integer](values []T) (uint16, error) {
	var c crc.CRC
	c.Reset()
	buf := make([]byte, nvram.WordSize[T]())
	for _, v := range values {
		if err := nvram.EncodeWord(binary.LittleEndian, buf, v); err != nil {
			return 0, err
		}
		c.PushBytes(buf)
	}
	return c.Value(), nil
}

// Seal computes the checksum of cells[:len(cells)-1] and writes it to the
// last cell.
func Seal[C nvram.Cell[T], T Integer](cells []C) (uint16, error) {
	if len(cells) < 2 {
		return 0, fmt.Errorf("sealing needs at least 2 cells, have %d", len(cells))
	}
	values := make([]T, len(cells)-1)
	for i := range values {
		v, err := cells[i].Read()
		if err != nil {
			return 0, fmt.Errorf("failed to read cell %d: %w", i, err)
		}
		values[i] = v
	}
	sum, err := Sum(values)
	if err != nil {
		return 0, err
	}
	if err := cells[len(cells)-1].Write(T(sum)); err != nil {
		return 0, fmt.Errorf("failed to write seal: %w", err)
	}
	return sum, nil
}

// Verify checks the seal of bank against a dump of its contents.
func Verify[C nvram.Cell[T], T Integer](bank nvram.Bank[C, T]) error {
	dump, err := bank.DumpStorage()
	if err != nil {
		return fmt.Errorf("failed to dump bank: %w", err)
	}
	return VerifyDump(dump)
}

// VerifyDump checks the seal held in the last element of dump.
func VerifyDump[T Integer](dump []T) error {
	if len(dump) < 2 {
		return fmt.Errorf("verifying needs at least 2 cells, have %d", len(dump))
	}
	sum, err := Sum(dump[:len(dump)-1])
	if err != nil {
		return err
	}
	if stored := dump[len(dump)-1]; stored != T(sum) {
		return fmt.Errorf("%w: stored 0x%04X, computed 0x%04X", ErrChecksumMismatch, uint64(stored), sum)
	}
	return nil
}
