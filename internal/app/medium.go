// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package app

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/nvram/internal/config"
	"github.com/ffutop/nvram/medium"
	"github.com/ffutop/nvram/transport"
	"github.com/ffutop/nvram/transport/rtu"
	rtuovertcp "github.com/ffutop/nvram/transport/rtu-over-tcp"
	"github.com/ffutop/nvram/transport/tcp"
)

// NewMedium creates the medium described by cfg. It is not opened yet.
func NewMedium(cfg config.BankConfig) (medium.Medium, error) {
	mc := cfg.Medium
	switch mc.Type {
	case "memory":
		slog.Info("Using memory medium (non-persistent)", "bank", cfg.Name)
		return medium.NewMemory(), nil
	case "file":
		slog.Info("Using file medium", "bank", cfg.Name, "path", mc.Path)
		return medium.NewFile(mc.Path), nil
	case "mmap":
		slog.Info("Using MMAP medium", "bank", cfg.Name, "path", mc.Path)
		return medium.NewMmap(mc.Path), nil
	case "sqlite":
		slog.Info("Using SQLite medium", "bank", cfg.Name, "path", mc.Path)
		return medium.NewSQLite(mc.Path, cfg.Name), nil
	case "bolt":
		slog.Info("Using BoltDB medium", "bank", cfg.Name, "path", mc.Path)
		return medium.NewBolt(mc.Path, cfg.Name), nil
	case "modbus":
		var client transport.Downstream
		switch mc.Modbus.Type {
		case "tcp":
			slog.Info("Using Modbus TCP medium", "bank", cfg.Name, "addr", mc.Modbus.Tcp.Address, "slaveID", mc.Modbus.SlaveID)
			client = tcp.NewClient(mc.Modbus.Tcp.Address)
		case "rtu-over-tcp":
			slog.Info("Using Modbus RTU over TCP medium", "bank", cfg.Name, "addr", mc.Modbus.Tcp.Address, "slaveID", mc.Modbus.SlaveID)
			client = rtuovertcp.NewClient(mc.Modbus.Tcp.Address)
		case "rtu":
			slog.Info("Using Modbus RTU medium", "bank", cfg.Name, "device", mc.Modbus.Serial.Device, "slaveID", mc.Modbus.SlaveID)
			client = rtu.NewClient(mc.Modbus.Serial)
		default:
			return nil, fmt.Errorf("unknown modbus type %q", mc.Modbus.Type)
		}
		return medium.NewModbus(client, mc.Modbus.SlaveID, mc.Modbus.BaseAddress, mc.Modbus.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown medium type %q", mc.Type)
	}
}
