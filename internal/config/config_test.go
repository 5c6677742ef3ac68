// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
banks:
  - name: "boot"
    cell_count: 16
    value_type: "UINT16"
    cleared_value: "65535"
    medium:
      type: "mmap"
      path: "/tmp/boot.bin"
  - name: "remote"
    cell_count: 4
    medium:
      type: "modbus"
      modbus:
        type: "rtu"
        base_address: 100
        serial:
          device: "/dev/ttyUSB0"
          parity: "e"
serve:
  bank: "boot"
  slave_ids: "1,5-7"
log:
  level: "debug"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Serve.Tcp.Address != "0.0.0.0:502" {
		t.Errorf("Serve.Tcp.Address = %q, want default", cfg.Serve.Tcp.Address)
	}
	if cfg.Serve.Type != "tcp" || cfg.Serve.SlaveIDs != "1,5-7" {
		t.Errorf("unexpected serve config: %+v", cfg.Serve)
	}
	if len(cfg.Banks) != 2 {
		t.Fatalf("expected 2 banks, got %d", len(cfg.Banks))
	}

	boot, err := cfg.Bank("boot")
	if err != nil {
		t.Fatal(err)
	}
	if boot.ValueType != "uint16" || boot.CellCount != 16 || boot.ClearedValue != "65535" {
		t.Errorf("unexpected boot bank: %+v", boot)
	}
	if boot.ByteOrder != "little" {
		t.Errorf("boot ByteOrder = %q, want little", boot.ByteOrder)
	}

	remote, err := cfg.Bank("remote")
	if err != nil {
		t.Fatal(err)
	}
	if remote.ValueType != "uint32" {
		t.Errorf("remote ValueType = %q, want uint32 default", remote.ValueType)
	}
	if remote.ByteOrder != "big" {
		t.Errorf("remote ByteOrder = %q, want big", remote.ByteOrder)
	}
	m := remote.Medium.Modbus
	if m.SlaveID != 1 || m.BaseAddress != 100 || m.Timeout != time.Second {
		t.Errorf("unexpected modbus config: %+v", m)
	}
	if m.Serial.Parity != "E" || m.Serial.BaudRate != 19200 || m.Serial.Timeout != 500*time.Millisecond {
		t.Errorf("serial fixups not applied: %+v", m.Serial)
	}

	if _, err := cfg.Bank("missing"); err == nil {
		t.Error("expected error for unknown bank")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "MissingName",
			content: "banks:\n  - cell_count: 4\n",
			wantErr: "name is required",
		},
		{
			name:    "ZeroCells",
			content: "banks:\n  - name: a\n",
			wantErr: "cell_count",
		},
		{
			name:    "FileWithoutPath",
			content: "banks:\n  - name: a\n    cell_count: 4\n    medium:\n      type: file\n",
			wantErr: "requires a path",
		},
		{
			name:    "UnknownMedium",
			content: "banks:\n  - name: a\n    cell_count: 4\n    medium:\n      type: tape\n",
			wantErr: "unknown medium",
		},
		{
			name:    "Duplicate",
			content: "banks:\n  - name: a\n    cell_count: 4\n  - name: a\n    cell_count: 2\n",
			wantErr: "more than once",
		},
		{
			name:    "ByteOrder",
			content: "banks:\n  - name: a\n    cell_count: 4\n    byte_order: middle\n",
			wantErr: "byte_order",
		},
		{
			name:    "ServeType",
			content: "serve:\n  type: ascii\n",
			wantErr: "unknown serve type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
