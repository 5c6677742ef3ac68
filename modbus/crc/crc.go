// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements CRC-16/MODBUS (poly 0xA001 reflected, init 0xFFFF).
package crc

import "sync"

// CRC is a running CRC-16/MODBUS checksum.
type CRC struct {
	high byte
	low  byte
}

var (
	tableOnce sync.Once
	tableHigh [256]byte
	tableLow  [256]byte
)

func initTables() {
	for i := 0; i < 256; i++ {
		v := uint16(i)
		for j := 0; j < 8; j++ {
			if v&1 != 0 {
				v = (v >> 1) ^ 0xA001
			} else {
				v >>= 1
			}
		}
		tableLow[i] = byte(v)
		tableHigh[i] = byte(v >> 8)
	}
}

// Reset sets the checksum to its initial value.
func (crc *CRC) Reset() *CRC {
	tableOnce.Do(initTables)
	crc.high = 0xFF
	crc.low = 0xFF
	return crc
}

// PushBytes feeds b into the checksum.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	var idx byte
	for _, b := range bs {
		idx = crc.low ^ b
		crc.low = crc.high ^ tableLow[idx]
		crc.high = tableHigh[idx]
	}
	return crc
}

// Value returns the checksum. On the wire it is sent low byte first.
func (crc *CRC) Value() uint16 {
	return uint16(crc.high)<<8 | uint16(crc.low)
}

// Checksum returns the CRC-16/MODBUS of data.
func Checksum(data []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(data).Value()
}
