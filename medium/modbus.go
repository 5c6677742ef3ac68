// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package medium

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ffutop/nvram/modbus"
	"github.com/ffutop/nvram/transport"
)

// Modbus implements a medium on the holding registers of a remote device.
//
// Cell i starts at register BaseAddress + i*RegistersPerCell. A cell image
// is sent as register data with the image right-aligned, so a one-byte
// cell occupies the low byte of its register.
type Modbus struct {
	client  transport.Downstream
	slaveID byte
	base    uint16
	timeout time.Duration

	layout Layout
	regs   int
	opened bool
}

// NewModbus creates a new Modbus medium. The medium takes ownership of client.
func NewModbus(client transport.Downstream, slaveID byte, baseAddress uint16, timeout time.Duration) *Modbus {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Modbus{
		client:  client,
		slaveID: slaveID,
		base:    baseAddress,
		timeout: timeout,
	}
}

// RegistersPerCell returns the number of 16-bit registers a cell of size bytes spans.
func RegistersPerCell(size int) int {
	return (size + 1) / 2
}

func (m *Modbus) Open(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	regs := RegistersPerCell(layout.CellSize)
	if regs > modbus.MaxWriteRegisters {
		return fmt.Errorf("cell of %d bytes does not fit one request", layout.CellSize)
	}
	if int(m.base)+layout.CellCount*regs > modbus.MaxAddress+1 {
		return fmt.Errorf("%d cells at register %d exceed the address space", layout.CellCount, m.base)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	m.layout = layout
	m.regs = regs
	m.opened = true
	return nil
}

func (m *Modbus) address(index int) uint16 {
	return m.base + uint16(index*m.regs)
}

func (m *Modbus) ReadCell(index int, p []byte) error {
	if !m.opened {
		return fmt.Errorf("modbus medium is not open")
	}
	if err := m.layout.check(index, p); err != nil {
		return err
	}

	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], m.address(index))
	binary.BigEndian.PutUint16(req[2:4], uint16(m.regs))
	resp, err := m.send(modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: req})
	if err != nil {
		return err
	}

	want := m.regs * 2
	if len(resp.Data) != 1+want || int(resp.Data[0]) != want {
		return fmt.Errorf("modbus: read response carries %d bytes, want %d", len(resp.Data)-1, want)
	}
	copy(p, resp.Data[1+want-len(p):])
	return nil
}

func (m *Modbus) WriteCell(index int, p []byte) error {
	if !m.opened {
		return fmt.Errorf("modbus medium is not open")
	}
	if err := m.layout.check(index, p); err != nil {
		return err
	}

	n := m.regs * 2
	req := make([]byte, 5+n)
	binary.BigEndian.PutUint16(req[0:2], m.address(index))
	binary.BigEndian.PutUint16(req[2:4], uint16(m.regs))
	req[4] = byte(n)
	copy(req[5+n-len(p):], p)

	resp, err := m.send(modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteMultipleRegisters, Data: req})
	if err != nil {
		return err
	}
	if len(resp.Data) != 4 || binary.BigEndian.Uint16(resp.Data[0:2]) != m.address(index) {
		return fmt.Errorf("modbus: unexpected write response % X", resp.Data)
	}
	return nil
}

func (m *Modbus) send(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	resp, err := m.client.Send(ctx, m.slaveID, req)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if err := modbus.CheckResponse(req, resp); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return resp, nil
}

// Sync is a no-op: the device commits each write request.
func (m *Modbus) Sync() error {
	return nil
}

func (m *Modbus) Close() error {
	m.opened = false
	return m.client.Close()
}
