// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave serves an NVRAM bank as a Modbus register map.
//
// Holding registers are backed by the live cells, so a Slave takes the
// bank's one-time Storage grant. Input registers are backed by DumpStorage
// and are read-only. Each cell spans medium.RegistersPerCell(WordSize)
// big-endian registers; requests must start and end on cell boundaries.
package slave

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/ffutop/nvram/medium"
	"github.com/ffutop/nvram/modbus"
	"github.com/ffutop/nvram/nvram"
)

// Slave implements the Modbus protocol logic on top of a Bank.
type Slave[C nvram.Cell[T], T nvram.Word] struct {
	bank  nvram.Bank[C, T]
	cells []C
	regs  int // registers per cell
	size  int // bytes per cell
}

// New takes live access to bank and returns a Slave serving it.
func New[C nvram.Cell[T], T nvram.Word](bank nvram.Bank[C, T]) (*Slave[C, T], error) {
	cells, err := bank.Storage()
	if err != nil {
		return nil, fmt.Errorf("failed to take live access: %w", err)
	}
	size := nvram.WordSize[T]()
	return &Slave[C, T]{
		bank:  bank,
		cells: cells,
		regs:  medium.RegistersPerCell(size),
		size:  size,
	}, nil
}

// Handle adapts Process to transport.RequestHandler.
func (s *Slave[C, T]) Handle(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return s.Process(pdu)
}

// Process executes the Modbus Function Code against the bank.
func (s *Slave[C, T]) Process(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleRead(req, s.readLive)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleRead(req, s.readSnapshot)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

// cellRange maps a register range to a cell range, or returns false if the
// range is not cell-aligned or lies outside the bank.
func (s *Slave[C, T]) cellRange(address, quantity uint16) (first, count int, ok bool) {
	if int(address)%s.regs != 0 || int(quantity)%s.regs != 0 {
		return 0, 0, false
	}
	first = int(address) / s.regs
	count = int(quantity) / s.regs
	if count == 0 || first+count > len(s.cells) {
		return 0, 0, false
	}
	return first, count, true
}

func (s *Slave[C, T]) readLive(first, count int) ([]T, error) {
	values := make([]T, count)
	for i := range values {
		v, err := s.cells[first+i].Read()
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (s *Slave[C, T]) readSnapshot(first, count int) ([]T, error) {
	dump, err := s.bank.DumpStorage()
	if err != nil {
		return nil, err
	}
	return dump[first : first+count], nil
}

func (s *Slave[C, T]) handleRead(req modbus.ProtocolDataUnit, read func(first, count int) ([]T, error)) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	first, count, ok := s.cellRange(address, quantity)
	if !ok {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	values, err := read(first, count)
	if err != nil {
		slog.Error("Failed to read cells", "first", first, "count", count, "err", err)
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeServerDeviceFailure), nil
	}

	width := s.regs * 2
	respData := make([]byte, 1+count*width)
	respData[0] = byte(count * width)
	for i, v := range values {
		slot := respData[1+i*width : 1+(i+1)*width]
		if err := nvram.EncodeWord(binary.BigEndian, slot[width-s.size:], v); err != nil {
			return modbus.ProtocolDataUnit{}, err
		}
	}

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (s *Slave[C, T]) handleWriteSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])

	// Only cells that fit one register can be written one register at a time.
	first, _, ok := s.cellRange(address, 1)
	if !ok {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	values, ok := s.decodeSlots(req.Data[2:4])
	if !ok {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if err := s.writeCells(first, values); err != nil {
		slog.Error("Failed to write cell", "index", first, "err", err)
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeServerDeviceFailure), nil
	}

	return req, nil // Echo request
}

func (s *Slave[C, T]) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 6 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > modbus.MaxWriteRegisters {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if int(byteCount) != len(req.Data)-5 || int(byteCount) != int(quantity)*2 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	first, _, ok := s.cellRange(address, quantity)
	if !ok {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	values, ok := s.decodeSlots(req.Data[5:])
	if !ok {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if err := s.writeCells(first, values); err != nil {
		slog.Error("Failed to write cells", "first", first, "err", err)
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeServerDeviceFailure), nil
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

// decodeSlots decodes consecutive register slots into cell values. A slot
// whose pad bytes are not zero, or whose value does not encode back to the
// same bytes (a bool other than 0 or 1), does not fit the cell.
func (s *Slave[C, T]) decodeSlots(data []byte) ([]T, bool) {
	width := s.regs * 2
	pad := width - s.size
	values := make([]T, len(data)/width)
	image := make([]byte, s.size)
	for i := range values {
		slot := data[i*width : (i+1)*width]
		for _, b := range slot[:pad] {
			if b != 0 {
				return nil, false
			}
		}
		v, err := nvram.DecodeWord[T](binary.BigEndian, slot[pad:])
		if err != nil {
			return nil, false
		}
		if err := nvram.EncodeWord(binary.BigEndian, image, v); err != nil || !bytes.Equal(image, slot[pad:]) {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func (s *Slave[C, T]) writeCells(first int, values []T) error {
	for i, v := range values {
		if err := s.cells[first+i].Write(v); err != nil {
			return err
		}
	}
	return nil
}
