// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Banks []BankConfig `mapstructure:"banks"`
	Serve ServeConfig  `mapstructure:"serve"`
	Log   LogConfig    `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// BankConfig defines one NVRAM bank
type BankConfig struct {
	Name         string       `mapstructure:"name"`
	CellCount    int          `mapstructure:"cell_count"`
	ValueType    string       `mapstructure:"value_type"`    // bool, int8..int64, uint8..uint64, float32, float64
	ClearedValue string       `mapstructure:"cleared_value"` // parsed as ValueType, empty means zero
	ByteOrder    string       `mapstructure:"byte_order"`    // "little", "big"
	Medium       MediumConfig `mapstructure:"medium"`
}

// MediumConfig defines the storage medium backing a bank
type MediumConfig struct {
	Type   string       `mapstructure:"type"`   // "memory", "file", "mmap", "sqlite", "bolt", "modbus"
	Path   string       `mapstructure:"path"`   // File path for "file", "mmap", "sqlite", "bolt"
	Modbus ModbusConfig `mapstructure:"modbus"` // Used if Type is "modbus"
}

// ModbusConfig defines a remote device exposing NVRAM as holding registers
type ModbusConfig struct {
	Type        string        `mapstructure:"type"`         // "tcp", "rtu", "rtu-over-tcp"
	SlaveID     byte          `mapstructure:"slave_id"`     // Unit identifier of the device
	BaseAddress uint16        `mapstructure:"base_address"` // Register of cell 0
	Timeout     time.Duration `mapstructure:"timeout"`      // Per-request timeout
	Tcp         TcpConfig     `mapstructure:"tcp"`          // Used if Type is "tcp" or "rtu-over-tcp"
	Serial      SerialConfig  `mapstructure:"serial"`       // Used if Type is "rtu"
}

// ServeConfig defines the Modbus endpoint exposing a bank
type ServeConfig struct {
	Bank     string       `mapstructure:"bank"`
	Type     string       `mapstructure:"type"`      // "tcp", "rtu", "rtu-over-tcp"
	SlaveIDs string       `mapstructure:"slave_ids"` // e.g. "1,5-10"; empty accepts any
	Tcp      TcpConfig    `mapstructure:"tcp"`       // Used if Type is "tcp" or "rtu-over-tcp"
	Serial   SerialConfig `mapstructure:"serial"`    // Used if Type is "rtu"
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502" or "192.168.1.100:502"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device    string        `mapstructure:"device"`
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/nvram/")
		v.AddConfigPath("$HOME/.nvram")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("serve.type", "tcp")
	v.SetDefault("serve.tcp.address", "0.0.0.0:502")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	seen := make(map[string]struct{})
	for i := range config.Banks {
		bank := &config.Banks[i]
		fixupBank(bank)
		if err := validateBank(bank); err != nil {
			return nil, fmt.Errorf("bank %d (%q): %w", i, bank.Name, err)
		}
		if _, dup := seen[bank.Name]; dup {
			return nil, fmt.Errorf("bank %q is defined more than once", bank.Name)
		}
		seen[bank.Name] = struct{}{}
	}

	config.Serve.Type = strings.ToLower(strings.TrimSpace(config.Serve.Type))
	switch config.Serve.Type {
	case "tcp", "rtu-over-tcp":
	case "rtu":
		fixupSerial(&config.Serve.Serial)
	default:
		return nil, fmt.Errorf("unknown serve type %q", config.Serve.Type)
	}

	return &config, nil
}

// Bank returns the bank named name.
func (c *Config) Bank(name string) (BankConfig, error) {
	for _, b := range c.Banks {
		if b.Name == name {
			return b, nil
		}
	}
	return BankConfig{}, fmt.Errorf("bank %q is not configured", name)
}

func fixupBank(b *BankConfig) {
	b.ValueType = strings.ToLower(strings.TrimSpace(b.ValueType))
	if b.ValueType == "" {
		b.ValueType = "uint32"
	}
	b.ByteOrder = strings.ToLower(strings.TrimSpace(b.ByteOrder))
	b.Medium.Type = strings.ToLower(strings.TrimSpace(b.Medium.Type))
	if b.Medium.Type == "" {
		b.Medium.Type = "memory"
	}
	if b.ByteOrder == "" {
		// Register images read naturally when big-endian.
		if b.Medium.Type == "modbus" {
			b.ByteOrder = "big"
		} else {
			b.ByteOrder = "little"
		}
	}
	if b.Medium.Type == "modbus" {
		m := &b.Medium.Modbus
		m.Type = strings.ToLower(strings.TrimSpace(m.Type))
		if m.Type == "" {
			m.Type = "tcp"
		}
		if m.SlaveID == 0 {
			m.SlaveID = 1
		}
		if m.Timeout == 0 {
			m.Timeout = time.Second
		}
		fixupSerial(&m.Serial)
	}
}

func validateBank(b *BankConfig) error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if b.CellCount <= 0 {
		return fmt.Errorf("cell_count must be greater than 0")
	}
	switch b.ByteOrder {
	case "little", "big":
	default:
		return fmt.Errorf("unknown byte_order %q", b.ByteOrder)
	}
	switch b.Medium.Type {
	case "memory", "modbus":
	case "file", "mmap", "sqlite", "bolt":
		if strings.TrimSpace(b.Medium.Path) == "" {
			return fmt.Errorf("medium %q requires a path", b.Medium.Type)
		}
	default:
		return fmt.Errorf("unknown medium type %q", b.Medium.Type)
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 19200
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
}
