// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ffutop/nvram/modbus"
)

const (
	mbapPrefixSize = 6 // transaction, protocol and length fields
	tcpMinSize     = 8
	tcpMaxSize     = 260
)

// ApplicationDataUnit is a Modbus TCP frame: the MBAP header and a PDU.
type ApplicationDataUnit struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16 // unit identifier + PDU, set by Encode
	SlaveID       byte
	Pdu           modbus.ProtocolDataUnit
}

// Decode parses a complete frame. The Length field must cover exactly the
// bytes after it.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	if len(raw) < tcpMinSize {
		return nil, fmt.Errorf("modbus: frame length %d does not meet minimum %d", len(raw), tcpMinSize)
	}
	if len(raw) > tcpMaxSize {
		return nil, fmt.Errorf("modbus: frame length %d exceeds maximum %d", len(raw), tcpMaxSize)
	}
	adu := &ApplicationDataUnit{
		TransactionID: binary.BigEndian.Uint16(raw[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(raw[2:4]),
		Length:        binary.BigEndian.Uint16(raw[4:6]),
		SlaveID:       raw[6],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: raw[7],
			Data:         raw[8:],
		},
	}
	if adu.ProtocolID != 0 {
		return nil, fmt.Errorf("modbus: unsupported protocol id %d", adu.ProtocolID)
	}
	if int(adu.Length) != len(raw)-mbapPrefixSize {
		return nil, fmt.Errorf("modbus: header length %d does not match %d trailing bytes", adu.Length, len(raw)-mbapPrefixSize)
	}
	return adu, nil
}

// Encode serializes the frame, filling in Length from the PDU.
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	size := tcpMinSize + len(adu.Pdu.Data)
	if size > tcpMaxSize {
		return nil, fmt.Errorf("modbus: frame length %d must not be bigger than %d", size, tcpMaxSize)
	}
	adu.Length = uint16(size - mbapPrefixSize)

	raw := make([]byte, 0, size)
	raw = binary.BigEndian.AppendUint16(raw, adu.TransactionID)
	raw = binary.BigEndian.AppendUint16(raw, adu.ProtocolID)
	raw = binary.BigEndian.AppendUint16(raw, adu.Length)
	raw = append(raw, adu.SlaveID, adu.Pdu.FunctionCode)
	raw = append(raw, adu.Pdu.Data...)
	return raw, nil
}

// Verify checks that resp answers req.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if resp.TransactionID != req.TransactionID {
		return fmt.Errorf("modbus: response transaction id %d does not match request %d", resp.TransactionID, req.TransactionID)
	}
	if resp.SlaveID != req.SlaveID {
		return fmt.Errorf("modbus: response unit id %d does not match request %d", resp.SlaveID, req.SlaveID)
	}
	return nil
}

// readFrame reads one frame from a stream, using the MBAP length field to
// find its end.
func readFrame(r io.Reader) ([]byte, error) {
	frame := make([]byte, mbapPrefixSize, tcpMaxSize)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(frame[4:6]))
	if length < tcpMinSize-mbapPrefixSize || length > tcpMaxSize-mbapPrefixSize {
		return nil, fmt.Errorf("modbus: invalid length %d in frame header", length)
	}
	frame = frame[:mbapPrefixSize+length]
	if _, err := io.ReadFull(r, frame[mbapPrefixSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}
