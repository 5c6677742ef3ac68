// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ffutop/nvram/medium"
	"github.com/ffutop/nvram/modbus"
	"github.com/ffutop/nvram/nvram"
	"github.com/ffutop/nvram/region"
	rtuovertcp "github.com/ffutop/nvram/transport/rtu-over-tcp"
	"github.com/ffutop/nvram/transport/tcp"
)

func newBank[T nvram.Word](t *testing.T, cells int) *region.Bank[T] {
	t.Helper()
	bank, err := region.Open(medium.NewMemory(), region.Config[T]{Name: "test", CellCount: cells})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bank.Close() })
	return bank
}

func newSlave[T nvram.Word](t *testing.T, bank *region.Bank[T]) *Slave[*region.Cell[T], T] {
	t.Helper()
	s, err := New[*region.Cell[T], T](bank)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func request(fc byte, words ...uint16) modbus.ProtocolDataUnit {
	var data []byte
	for _, w := range words {
		data = binary.BigEndian.AppendUint16(data, w)
	}
	return modbus.ProtocolDataUnit{FunctionCode: fc, Data: data}
}

func writeMultiple(address uint16, values ...uint16) modbus.ProtocolDataUnit {
	data := binary.BigEndian.AppendUint16(nil, address)
	data = binary.BigEndian.AppendUint16(data, uint16(len(values)))
	data = append(data, byte(len(values)*2))
	for _, v := range values {
		data = binary.BigEndian.AppendUint16(data, v)
	}
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteMultipleRegisters, Data: data}
}

func TestNew_TakesGrant(t *testing.T) {
	bank := newBank[uint16](t, 4)
	newSlave(t, bank)

	if _, err := bank.Storage(); !errors.Is(err, nvram.ErrLiveAccessGranted) {
		t.Fatalf("Storage after New: got %v, want ErrLiveAccessGranted", err)
	}
	if _, err := New[*region.Cell[uint16], uint16](bank); !errors.Is(err, nvram.ErrLiveAccessGranted) {
		t.Fatalf("second New: got %v, want ErrLiveAccessGranted", err)
	}
}

func TestProcess_Uint16(t *testing.T) {
	bank := newBank[uint16](t, 4)
	s := newSlave(t, bank)

	resp, err := s.Process(writeMultiple(1, 0x1234, 0xABCD))
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsException() {
		t.Fatalf("unexpected exception: %x", resp.Data)
	}

	resp, err = s.Process(request(modbus.FuncCodeWriteSingleRegister, 3, 0x00FF))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x00, 0x03, 0x00, 0xFF}, resp.Data); diff != "" {
		t.Errorf("0x06 should echo the request (-want +got):\n%s", diff)
	}

	dump, err := bank.DumpStorage()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{0, 0x1234, 0xABCD, 0x00FF}, dump); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}

	for _, fc := range []byte{modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters} {
		resp, err = s.Process(request(fc, 0, 4))
		if err != nil {
			t.Fatal(err)
		}
		want := []byte{8, 0x00, 0x00, 0x12, 0x34, 0xAB, 0xCD, 0x00, 0xFF}
		if diff := cmp.Diff(want, resp.Data); diff != "" {
			t.Errorf("fc 0x%02X read mismatch (-want +got):\n%s", fc, diff)
		}
	}
}

func TestProcess_Uint32(t *testing.T) {
	bank := newBank[uint32](t, 4)
	s := newSlave(t, bank)

	resp, err := s.Process(writeMultiple(2, 0xDEAD, 0xBEEF))
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsException() {
		t.Fatalf("unexpected exception: %x", resp.Data)
	}

	dump, err := bank.DumpStorage()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0, 0xDEADBEEF, 0, 0}, dump); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}

	resp, err = s.Process(request(modbus.FuncCodeReadInputRegisters, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{4, 0xDE, 0xAD, 0xBE, 0xEF}, resp.Data); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_ByteCell(t *testing.T) {
	bank := newBank[uint8](t, 2)
	s := newSlave(t, bank)

	resp, err := s.Process(request(modbus.FuncCodeWriteSingleRegister, 1, 0x007F))
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsException() {
		t.Fatalf("unexpected exception: %x", resp.Data)
	}

	resp, err = s.Process(request(modbus.FuncCodeReadHoldingRegisters, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{4, 0x00, 0x00, 0x00, 0x7F}, resp.Data); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_ValueDoesNotFit(t *testing.T) {
	tests := []struct {
		name string
		req  modbus.ProtocolDataUnit
	}{
		{"single register", request(modbus.FuncCodeWriteSingleRegister, 0, 0x1234)},
		{"multiple registers", writeMultiple(0, 0x0012, 0x0100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := newBank[uint8](t, 2)
			s := newSlave(t, bank)

			resp, err := s.Process(tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if !resp.IsException() || resp.Data[0] != modbus.ExceptionCodeIllegalDataValue {
				t.Fatalf("expected illegal data value, got %x %x", resp.FunctionCode, resp.Data)
			}

			dump, err := bank.DumpStorage()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]uint8{0, 0}, dump); diff != "" {
				t.Errorf("rejected write changed the bank (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcess_BoolCell(t *testing.T) {
	bank := newBank[bool](t, 2)
	s := newSlave(t, bank)

	resp, err := s.Process(request(modbus.FuncCodeWriteSingleRegister, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsException() {
		t.Fatalf("unexpected exception: %x", resp.Data)
	}

	resp, err = s.Process(request(modbus.FuncCodeWriteSingleRegister, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsException() || resp.Data[0] != modbus.ExceptionCodeIllegalDataValue {
		t.Fatalf("expected illegal data value, got %x %x", resp.FunctionCode, resp.Data)
	}

	dump, err := bank.DumpStorage()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]bool{false, true}, dump); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_Exceptions(t *testing.T) {
	bank := newBank[uint32](t, 4)
	s := newSlave(t, bank)

	tests := []struct {
		name string
		req  modbus.ProtocolDataUnit
		code byte
	}{
		{"unsupported function", request(modbus.FuncCodeReadCoils, 0, 1), modbus.ExceptionCodeIllegalFunction},
		{"short read", modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeReadHoldingRegisters, Data: []byte{0}}, modbus.ExceptionCodeIllegalDataValue},
		{"zero quantity", request(modbus.FuncCodeReadHoldingRegisters, 0, 0), modbus.ExceptionCodeIllegalDataValue},
		{"too many registers", request(modbus.FuncCodeReadInputRegisters, 0, 126), modbus.ExceptionCodeIllegalDataValue},
		{"unaligned address", request(modbus.FuncCodeReadHoldingRegisters, 1, 2), modbus.ExceptionCodeIllegalDataAddress},
		{"partial cell", request(modbus.FuncCodeReadHoldingRegisters, 0, 3), modbus.ExceptionCodeIllegalDataAddress},
		{"past the end", request(modbus.FuncCodeReadHoldingRegisters, 6, 4), modbus.ExceptionCodeIllegalDataAddress},
		{"single register on wide cell", request(modbus.FuncCodeWriteSingleRegister, 0, 1), modbus.ExceptionCodeIllegalDataAddress},
		{"byte count mismatch", modbus.ProtocolDataUnit{
			FunctionCode: modbus.FuncCodeWriteMultipleRegisters,
			Data:         []byte{0, 0, 0, 2, 3, 0, 0, 0},
		}, modbus.ExceptionCodeIllegalDataValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Process(tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if !resp.IsException() {
				t.Fatalf("expected exception, got %x", resp.Data)
			}
			if resp.FunctionCode != tt.req.FunctionCode|0x80 {
				t.Errorf("function code: got 0x%02X, want 0x%02X", resp.FunctionCode, tt.req.FunctionCode|0x80)
			}
			if resp.Data[0] != tt.code {
				t.Errorf("exception code: got 0x%02X, want 0x%02X", resp.Data[0], tt.code)
			}
		})
	}

	dump, err := bank.DumpStorage()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0, 0, 0, 0}, dump); diff != "" {
		t.Errorf("rejected requests changed the bank (-want +got):\n%s", diff)
	}
}

func TestProcess_ClosedBank(t *testing.T) {
	bank := newBank[uint16](t, 2)
	s := newSlave(t, bank)
	bank.Close()

	resp, err := s.Process(request(modbus.FuncCodeReadInputRegisters, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsException() || resp.Data[0] != modbus.ExceptionCodeServerDeviceFailure {
		t.Fatalf("expected server device failure, got %x %x", resp.FunctionCode, resp.Data)
	}
}

// A bank served over Modbus TCP and opened remotely through the Modbus medium
// behaves like a local bank.
func TestEndToEnd_TCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	local := newBank[uint32](t, 4)
	s := newSlave(t, local)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := tcp.NewServer(addr)
	go server.Start(ctx, s.Handle)

	// Wait for the listener
	for i := 0; i < 50; i++ {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	remote, err := region.Open(
		medium.NewModbus(tcp.NewClient(addr), 1, 0, time.Second),
		region.Config[uint32]{Name: "remote", CellCount: 4, ByteOrder: binary.BigEndian},
	)
	if err != nil {
		t.Fatal(err)
	}
	defer remote.Close()

	if err := remote.ClearStorage(); err != nil {
		t.Fatal(err)
	}
	dump, err := remote.DumpStorage()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{0, 0, 0, 0}, dump); diff != "" {
		t.Fatalf("cleared dump mismatch (-want +got):\n%s", diff)
	}

	cells, err := remote.Storage()
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range cells {
		if err := c.Write(uint32(i+1) * 10); err != nil {
			t.Fatal(err)
		}
	}

	want := []uint32{10, 20, 30, 40}
	for name, b := range map[string]*region.Bank[uint32]{"remote": remote, "local": local} {
		dump, err := b.DumpStorage()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, dump); diff != "" {
			t.Errorf("%s dump mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestEndToEnd_RTUOverTCP_IllegalFunction(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	s := newSlave(t, newBank[uint16](t, 2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rtuovertcp.NewServer(addr).Start(ctx, s.Handle)

	client := rtuovertcp.NewClient(addr)
	client.Timeout = time.Second
	defer client.Close()

	// Wait for the listener
	for i := 0; i < 50; i++ {
		if err = client.Connect(ctx); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}

	resp, err := client.Send(ctx, 1, request(modbus.FuncCodeReadCoils, 0, 8))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsException() || resp.Data[0] != modbus.ExceptionCodeIllegalFunction {
		t.Fatalf("expected illegal function, got %x %x", resp.FunctionCode, resp.Data)
	}

	// The connection survives the rejected request.
	resp, err = client.Send(ctx, 1, request(modbus.FuncCodeReadHoldingRegisters, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{4, 0, 0, 0, 0}, resp.Data); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
}
