// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ffutop/nvram/internal/config"
	"github.com/ffutop/nvram/modbus"
	"github.com/ffutop/nvram/transport"
	"github.com/ffutop/nvram/transport/rtu"
	rtuovertcp "github.com/ffutop/nvram/transport/rtu-over-tcp"
	"github.com/ffutop/nvram/transport/tcp"
)

// ParseSlaveIDs parses a string of slave IDs (e.g. "1,2,5-10") into a slice of bytes.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				if i < 0 || i > 255 {
					return nil, fmt.Errorf("id out of range: %d", i)
				}
				ids = append(ids, byte(i))
			}
		} else {
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			if id < 0 || id > 255 {
				return nil, fmt.Errorf("id out of range: %d", id)
			}
			ids = append(ids, byte(id))
		}
	}
	return ids, nil
}

// Filter restricts handler to the given slave IDs. Requests for any other
// ID are answered with a gateway path unavailable exception. With no IDs
// every request is passed through.
func Filter(ids []byte, handler transport.RequestHandler) transport.RequestHandler {
	if len(ids) == 0 {
		return handler
	}
	var accept [256]bool
	for _, id := range ids {
		accept[id] = true
	}
	return func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		if !accept[slaveID] {
			slog.Warn("Request for unserved slave ID", "slaveID", slaveID)
			return modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeGatewayPathUnavailable), nil
		}
		return handler(ctx, slaveID, pdu)
	}
}

// NewUpstream creates the server described by cfg.
func NewUpstream(cfg config.ServeConfig) (transport.Upstream, error) {
	switch cfg.Type {
	case "tcp":
		return tcp.NewServer(cfg.Tcp.Address), nil
	case "rtu":
		return rtu.NewServer(cfg.Serial), nil
	case "rtu-over-tcp":
		return rtuovertcp.NewServer(cfg.Tcp.Address), nil
	default:
		return nil, fmt.Errorf("unknown serve type %q", cfg.Type)
	}
}

// Serve exposes sess on us until ctx is done. It takes the bank's live access.
func Serve(ctx context.Context, sess Session, us transport.Upstream, slaveIDs string) error {
	ids, err := ParseSlaveIDs(slaveIDs)
	if err != nil {
		return fmt.Errorf("invalid slave_ids: %w", err)
	}
	handler, err := sess.Handler()
	if err != nil {
		return fmt.Errorf("failed to serve bank %q: %w", sess.Name(), err)
	}

	slog.Info("Serving bank", "bank", sess.Name(), "cells", sess.CellCount(), "type", sess.ValueType())

	// The upstream closes itself once ctx is done.
	return us.Start(ctx, Filter(ids, handler))
}
