// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/grid-x/serial"

	"github.com/ffutop/nvram/internal/config"
	"github.com/ffutop/nvram/modbus"
	rtupacket "github.com/ffutop/nvram/modbus/rtu"
	"github.com/ffutop/nvram/transport"
)

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, waiting for requests from an external Master.
type Server struct {
	Config config.SerialConfig

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// Start opens the serial port and serves requests until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	sc := serialConfig(s.Config)
	port, err := serial.Open(&sc)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	defer s.Close()
	slog.Info("Modbus RTU server listening", "device", s.Config.Device)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s.scanLoop(ctx, port, handler)
}

// scanLoop reads request frames from port and answers each one in turn.
// Requests are handled sequentially since the bus is half duplex.
func (s *Server) scanLoop(ctx context.Context, port io.ReadWriter, handler transport.RequestHandler) error {
	buf := make([]byte, rtupacket.MaxSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Read 1 byte to unblock
		n, err := port.Read(buf[:1])
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}

		// Read up to the byte count of Write Multiple Registers
		current := 1
		for current < 7 {
			n, err := port.Read(buf[current:7])
			if err != nil || n == 0 {
				break
			}
			current += n
		}

		expectedLen, err := rtupacket.CalculateRequestLength(buf[:current])
		if err != nil {
			slog.Debug("Discarding RTU frame", "err", err)
			continue
		}
		if expectedLen > len(buf) {
			slog.Debug("Discarding oversized RTU frame", "length", expectedLen)
			continue
		}

		for current < expectedLen {
			n, err := port.Read(buf[current:expectedLen])
			if err != nil || n == 0 {
				break
			}
			current += n
		}
		if current < expectedLen {
			continue
		}

		adu, err := Decode(buf[:expectedLen])
		if err != nil {
			slog.Debug("Discarding RTU frame", "err", err)
			continue
		}
		// Decode aliases buf
		pdu := modbus.ProtocolDataUnit{
			FunctionCode: adu.Pdu.FunctionCode,
			Data:         append([]byte(nil), adu.Pdu.Data...),
		}

		respPdu, err := handler(ctx, adu.SlaveID, pdu)
		if err != nil {
			slog.Error("Handler failed", "err", err)
			respPdu = modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeServerDeviceFailure)
		}

		resp := &ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: respPdu}
		raw, err := resp.Encode()
		if err != nil {
			slog.Error("Failed to encode RTU response", "err", err)
			continue
		}
		if _, err := port.Write(raw); err != nil {
			slog.Error("Failed to write RTU response", "err", err)
		}
	}
}

// Close closes the serial port.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
